package identity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSConfig はJWKSGatewayの設定を保持する。
type JWKSConfig struct {
	// JWKSURL はプロバイダの公開鍵セットのURL。
	JWKSURL string
	// Issuer は受け入れるissクレーム。
	Issuer string
	// Audience は受け入れるaudクレーム。空の場合は検証しない。
	Audience string
	// AdminURL はユーザー無効化に使う管理APIのベースURL。
	AdminURL string
	// AdminToken は管理APIのサービス資格情報。
	AdminToken string
	// RefreshInterval はJWKSのバックグラウンド更新間隔。ゼロの場合は1時間。
	RefreshInterval time.Duration
}

// JWKSGateway はGatewayのJWKSベース実装。
// プロバイダが公開するJWKSに対してbearer JWTの署名を検証し、
// subクレームをユーザー識別子として返す。
// 起動時に1回だけ構築し、リクエストごとに再初期化してはならない。
type JWKSGateway struct {
	cfg    JWKSConfig
	jwks   *keyfunc.JWKS
	client *http.Client
}

// NewJWKSGateway はプロバイダのJWKSを取得してJWKSGatewayを生成する。
// JWKSはバックグラウンドで定期更新される。
func NewJWKSGateway(ctx context.Context, cfg JWKSConfig, client *http.Client) (*JWKSGateway, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	interval := cfg.RefreshInterval
	if interval == 0 {
		interval = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Ctx:    ctx,
		Client: client,
		RefreshErrorHandler: func(err error) {
			slog.Warn("jwks refresh failed", slog.String("error", err.Error()))
		},
		RefreshInterval:   interval,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch identity provider jwks: %w", err)
	}

	return &JWKSGateway{
		cfg:    cfg,
		jwks:   jwks,
		client: client,
	}, nil
}

// Close はJWKSのバックグラウンド更新を停止する。
func (g *JWKSGateway) Close() {
	g.jwks.EndBackground()
}

// VerifyToken はbearer JWTを検証してsubクレームを返す。
func (g *JWKSGateway) VerifyToken(ctx context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(g.cfg.Issuer),
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
	}
	if g.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(g.cfg.Audience))
	}

	parsed, err := jwt.Parse(token, g.jwks.Keyfunc, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	return sub, nil
}

// DisableUser はプロバイダの管理APIでアカウントを無効化する。
func (g *JWKSGateway) DisableUser(ctx context.Context, identity string) error {
	url := fmt.Sprintf("%s/users/%s", strings.TrimRight(g.cfg.AdminURL, "/"), identity)

	body := bytes.NewBufferString(`{"disabled":true}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, body)
	if err != nil {
		return fmt.Errorf("failed to build disable request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.AdminToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to disable user %s: %w", identity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// レスポンスボディは診断ログにのみ残し、呼び出し元には返さない
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("identity provider rejected disable request",
			slog.String("identity", identity),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(detail)),
		)
		return fmt.Errorf("identity provider returned status %d for disable of %s", resp.StatusCode, identity)
	}

	return nil
}
