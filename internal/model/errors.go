package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, lifecycle, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidToken        = "INVALID_TOKEN"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeLifecycleFailed     = "LIFECYCLE_FAILED"
	ErrCodeExportFailed        = "EXPORT_FAILED"
	ErrCodeApplicationNotFound = "APPLICATION_NOT_FOUND"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeCSRFFailed          = "CSRF_VALIDATION_FAILED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証ヘッダー欠落・不正エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidTokenError はトークン検証失敗エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "認証トークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewLifecycleFailedError は削除予約処理の失敗エラーを生成する。
// 部分的に適用済みのマークは取り消さない。マークは冪等なので
// リトライで自己修復できる旨をユーザーに案内する。
func NewLifecycleFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLifecycleFailed,
		Message:  "アカウント削除の予約処理に失敗しました。",
		Category: "lifecycle",
		Action:   "しばらく待ってから再度お試しください。再実行しても問題ありません。",
	}
}

// NewExportFailedError はデータエクスポートの失敗エラーを生成する。
func NewExportFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeExportFailed,
		Message:  "アカウントデータのエクスポートに失敗しました。",
		Category: "lifecycle",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewApplicationNotFoundError は応募レコード未検出エラーを生成する。
// 他ユーザーの所有レコードへのアクセスも存在しないものとして扱う。
func NewApplicationNotFoundError(applicationID string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された応募が見つかりません: %s", applicationID),
		Category: "validation",
		Action:   "応募IDを確認してください。",
	}
}

// NewInvalidStatusError は無効な応募ステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な応募ステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには applied、interviewing、offered、rejected、accepted のいずれかを指定してください。",
	}
}

// NewCSRFValidationError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}
