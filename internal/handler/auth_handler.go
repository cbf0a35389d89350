package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/jacobsladder/internal/middleware"
	"github.com/hitoshi/jacobsladder/internal/model"
)

// TokenVerifier は認証ハンドラーが必要とするトークン検証インターフェース。
type TokenVerifier interface {
	// VerifyToken はIDトークンを検証し、ユーザー識別子を返す。
	VerifyToken(ctx context.Context, token string) (string, error)
}

// SessionBinding は認証イベントとセッション状態を同期させる束縛レイヤーの
// インターフェース。サインイン通知でセッションを初期化し、サインアウト
// 通知でクリアする。session.Reconcilerが実装する。
type SessionBinding interface {
	OnSignedIn(ctx context.Context, identity string) error
	OnSignedOut(ctx context.Context) error
	Current(ctx context.Context) (*model.SessionRecord, error)
}

// SessionBindingFactory はリクエストごとのSessionBindingを生成する。
// レスポンスライターへのCookie書き込みを伴うため、w/rの両方を受け取る。
type SessionBindingFactory func(w http.ResponseWriter, r *http.Request) SessionBinding

// AuthHandler はセッション確立・破棄のHTTPハンドラー。
type AuthHandler struct {
	verifier TokenVerifier
	sessions SessionBindingFactory
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(verifier TokenVerifier, sessions SessionBindingFactory) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		sessions: sessions,
	}
}

// sessionResponse はセッション情報のAPIレスポンス。
type sessionResponse struct {
	User         string    `json:"user"`
	LastActivity time.Time `json:"lastActivity"`
}

// CreateSession はIDトークンを検証し、新しいセッションを確立する。
// 既存セッションの有無に関わらず新しいセッションIDで上書きする。
// POST /auth/session
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.ParseBearer(r)
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	uid, err := h.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return
	}

	sess := h.sessions(w, r)
	if err := sess.OnSignedIn(r.Context(), uid); err != nil {
		handleServiceError(w, err)
		return
	}

	rec, err := sess.Current(r.Context())
	if err != nil || rec == nil {
		handleServiceError(w, model.NewLifecycleFailedError())
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		User:         rec.Identity,
		LastActivity: rec.LastActivity,
	})
}

// DeleteSession は現在のセッションを破棄する。
// セッションが存在しない場合も成功として扱う（冪等）。
// DELETE /auth/session
func (h *AuthHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions(w, r)
	if err := sess.OnSignedOut(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッションに紐づくユーザー情報を返す。
// 有効なセッションがなければ401を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions(w, r)

	rec, err := sess.Current(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if rec == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		User:         rec.Identity,
		LastActivity: rec.LastActivity,
	})
}
