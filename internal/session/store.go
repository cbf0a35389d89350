// Package session はセッションレコードの状態機械と永続化を提供する。
//
// セッションレコードは検証済みアイデンティティとローカルな生存期間を
// 結び付けるクライアント保持のデータであり、サーバ側のセッションテーブルは
// 持たない。レコードの読み書きはすべてManagerを経由する。
package session

import (
	"context"
	"errors"
)

// ErrNotFound はセッションレコードが存在しないことを示す。
var ErrNotFound = errors.New("session: record not found")

// ErrCorrupt は永続化されたレコードが解釈できないことを示す。
// 署名不一致・デコード失敗をまとめて表す。Managerはこれを
// 「レコード不存在」として回復する（パージして続行）。
var ErrCorrupt = errors.New("session: record corrupt")

// Store はセッションレコードのバッキングストアのインターフェース。
// レコードはシリアライズ済みバイト列として預かる。解釈はManagerが行う。
type Store interface {
	// Load は保存されたレコードを返す。
	// 存在しない場合はErrNotFound、解釈不能な場合はErrCorruptを返す。
	Load(ctx context.Context) ([]byte, error)

	// Save はレコードを保存する。
	Save(ctx context.Context, data []byte) error

	// Delete はレコードを破棄する。存在しない場合もエラーにしない。
	Delete(ctx context.Context) error
}
