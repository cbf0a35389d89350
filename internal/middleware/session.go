// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jacobsladder/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionReader はセッションレコードの読み取りに必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionReader interface {
	Get(ctx context.Context) (*model.SessionRecord, error)
}

// SessionFactory はリクエストに束縛されたSessionReaderを生成する。
// Cookieバックのセッションはリクエスト・レスポンスの両方に
// アクセスする必要があるため、リクエストごとに構築する。
type SessionFactory func(w http.ResponseWriter, r *http.Request) SessionReader

// NewSessionMiddleware はセッションCookieを検証するミドルウェアを返す。
// 有効なセッションのアイデンティティをリクエストコンテキストに注入する。
// 期限切れ・破損レコードのパージはManager側で行われる（遅延失効）。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(factory SessionFactory) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mgr := factory(w, r)

			rec, err := mgr.Get(r.Context())
			if err != nil {
				slog.Error("failed to read session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if rec == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, rec.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
