// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizerService はユーザーが入力する自由記述フィールド
// （企業名・ポジション・メモなど）をサニタイズし、保存データに
// HTMLが混入して後段の画面やエクスポート成果物でXSSとなることを防ぐ。
// bluemondayのStrictPolicyをベースに、タグを一切許可しない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService はユーザー入力テキストのサニタイズ機能の
// インターフェースを定義する。応募レコードの保存前に使用される。
type InputSanitizerService interface {
	// Sanitize は入力テキストからすべてのHTMLタグを除去し、
	// 前後の空白を取り除いて返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはいかなるタグ・属性も許可しないため、
// scriptやイベント属性を含む入力はテキスト部分だけが残る。
func NewInputSanitizer() *inputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力テキストからHTMLを除去して返す。
func (s *inputSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
