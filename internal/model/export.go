package model

import "time"

// SectionResult はエクスポートの1セクションの取得結果を表す。
// 依存コレクションの読み取り失敗はエクスポート全体を失敗させず、
// そのセクションを空配列に縮退させる。縮退はログだけでなく
// 型として表現し、テストから直接検証できるようにする。
type SectionResult struct {
	Degraded bool
	Reason   string
}

// ExportSections はエクスポートバンドルの各セクションの取得結果を保持する。
// 成果物のJSONには含めない（JSON化されるのはデータ本体のみ）。
type ExportSections struct {
	Applications SectionResult
	EmailEvents  SectionResult
}

// ExportBundle はアカウントの全データを集約したエクスポート成果物。
// リクエストごとに生成され、キャッシュされない。
type ExportBundle struct {
	User         Account       `json:"user"`
	Applications []Application `json:"applications"`
	EmailEvents  []EmailEvent  `json:"emailEvents"`
	ExportDate   time.Time     `json:"exportDate"`

	// Sections は縮退情報。成果物には含まれない。
	Sections ExportSections `json:"-"`
}

// CascadeResult はカスケード対象ドキュメント1件へのマーク適用結果を表す。
// 失敗してもロールバックは行わず、リトライ時の冪等な再マークで自己修復する。
type CascadeResult struct {
	Collection string
	Key        string
	Err        error
}

// FailedCount は失敗した件数を返す。
func FailedCount(results []CascadeResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
