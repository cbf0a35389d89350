// Package docstore はドキュメントストアへの狭いインターフェースと
// そのMongoDB実装を提供する。
//
// ストアはコレクション単位のキー付きドキュメント保存と等値クエリのみを
// サポートする。参照整合性・トランザクションは提供しない。複数コレクションに
// またがる更新はベストエフォートであり、呼び出し側が責任を持つ。
package docstore

import (
	"context"
	"errors"
)

// 本システムが扱うコレクション名。
const (
	CollectionUsers        = "users"
	CollectionApplications = "applications"
	CollectionEmailEvents  = "emailEvents"
)

// ErrNotFound は指定キーのドキュメントが存在しないことを示す。
var ErrNotFound = errors.New("docstore: document not found")

// Store はドキュメントストアの操作インターフェース。
// outにはbsonタグ付き構造体（QueryByEqualsの場合はそのスライス）への
// ポインタを渡す。
type Store interface {
	// GetByKey は指定キーのドキュメントを取得してoutにデコードする。
	// 存在しない場合はErrNotFoundを返す。
	GetByKey(ctx context.Context, collection, key string, out any) error

	// QueryByEquals はfield == value のドキュメント列をoutにデコードする。
	// 並び順は保証しない（呼び出し側も依存しない）。
	QueryByEquals(ctx context.Context, collection, field string, value any, out any) error

	// Create は指定キーでドキュメントを作成する。
	Create(ctx context.Context, collection, key string, doc any) error

	// UpdatePartial は指定キーのドキュメントにフィールド群を部分適用する。
	// 同じフィールド値の再適用は冪等。対象が存在しない場合はErrNotFoundを返す。
	UpdatePartial(ctx context.Context, collection, key string, fields map[string]any) error

	// Delete は指定キーのドキュメントを削除する。
	Delete(ctx context.Context, collection, key string) error
}
