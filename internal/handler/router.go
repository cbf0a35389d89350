package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jacobsladder/internal/middleware"
)

// Pinger はヘルスチェックが必要とするストア疎通確認インターフェース。
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	SessionFactory    middleware.SessionFactory
	StatusRecorder    middleware.HTTPStatusRecorder

	// 認証・セッション
	Verifier        TokenVerifier
	SessionBindings SessionBindingFactory

	// アカウントライフサイクル
	AccountService   AccountServiceInterface
	LifecycleMetrics LifecycleLatencyRecorder

	// 応募管理
	ApplicationService ApplicationServiceInterface

	// CSRF保護（セッションCookie認証のルートグループに適用）
	CSRF middleware.CSRFConfig

	// 運用エンドポイント
	Store          Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// アカウントライフサイクル（/api/account/*）はトークン検証より前に
// IP単位のレート制限を適用する。応募管理（/api/applications/*）は
// CSRF検証→セッション認証→ユーザー単位のレート制限の順に適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))

	authHandler := NewAuthHandler(deps.Verifier, deps.SessionBindings)
	accountHandler := NewAccountHandler(deps.AccountService, deps.LifecycleMetrics)
	appHandler := NewApplicationHandler(deps.ApplicationService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.Store))

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// セッション確立・破棄
	r.Route("/auth", func(r chi.Router) {
		r.Post("/session", authHandler.CreateSession)
		r.Delete("/session", authHandler.DeleteSession)
		r.Get("/me", authHandler.Me)
	})

	// --- アカウントライフサイクル ---
	// レート制限はトークン検証より前に適用する。超過した呼び出し元は
	// いかなる状態変更にも到達しない。
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.LifecycleMiddleware())
		r.Use(middleware.NewBearerMiddleware())

		r.Route("/api/account", func(r chi.Router) {
			r.Delete("/", accountHandler.ScheduleDeletion)
			r.Get("/export", accountHandler.ExportData)
		})
	})

	// CSRFトークン取得（セッション確立前でも呼べる）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// --- 応募管理 ---
	// ミドルウェアスタック: CSRF → Session → RateLimit(General)
	// セッションCookieで認証される状態変更メソッドだけがCSRF検証の対象。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(middleware.NewSessionMiddleware(deps.SessionFactory))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/applications", func(r chi.Router) {
			r.Post("/", appHandler.Create)
			r.Get("/", appHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", appHandler.Get)
				r.Patch("/", appHandler.Update)
				r.Delete("/", appHandler.Delete)
			})
		})
	})

	return r
}

// healthHandler はストアへの疎通確認を含むヘルスチェックハンドラーを返す。
func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
