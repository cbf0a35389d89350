package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/jacobsladder/internal/model"
)

// bearerTokenContextKey はリクエストコンテキストにbearerトークンを格納するためのキー。
var bearerTokenContextKey = contextKey("bearer_token")

// ParseBearer はAuthorizationヘッダーからbearerトークンを取り出す。
// ヘッダーが欠落しているか "Bearer <token>" の形になっていない場合は
// 空文字列とfalseを返す。プレフィックスは大文字小文字を区別しない。
func ParseBearer(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// NewBearerMiddleware はAuthorizationヘッダーの形式を検査し、
// bearerトークンをリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーが欠落・不正な場合は401を返し、後段には到達させない。
// トークン自体の検証はサービス層がIdentity Gatewayに委ねる。
func NewBearerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := ParseBearer(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), bearerTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext はリクエストコンテキストからbearerトークンを取得する。
// bearerミドルウェアを通過したリクエストでのみ有効。
func TokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(bearerTokenContextKey).(string)
	if !ok || token == "" {
		return "", fmt.Errorf("bearer token not found in context")
	}
	return token, nil
}
