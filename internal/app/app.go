package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/jacobsladder/internal/account"
	"github.com/hitoshi/jacobsladder/internal/application"
	"github.com/hitoshi/jacobsladder/internal/config"
	"github.com/hitoshi/jacobsladder/internal/docstore"
	"github.com/hitoshi/jacobsladder/internal/handler"
	"github.com/hitoshi/jacobsladder/internal/identity"
	"github.com/hitoshi/jacobsladder/internal/logger"
	"github.com/hitoshi/jacobsladder/internal/metrics"
	"github.com/hitoshi/jacobsladder/internal/middleware"
	"github.com/hitoshi/jacobsladder/internal/security"
	"github.com/hitoshi/jacobsladder/internal/session"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ドキュメントストア接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// 1. ドキュメントストア接続
	store, err := docstore.Open(startupCtx, docstore.MongoConfig{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	})
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := store.Close(closeCtx); err != nil {
			slog.Error("failed to close document store", slog.String("error", err.Error()))
		}
	}()

	slog.Info("document store connection established")

	// 2. Identity Gatewayの初期化（JWKSの取得を含むため起動時に1回だけ行う）
	gateway, err := identity.NewJWKSGateway(startupCtx, identity.JWKSConfig{
		JWKSURL:    cfg.IdentityJWKSURL,
		Issuer:     cfg.IdentityIssuer,
		Audience:   cfg.IdentityAudience,
		AdminURL:   cfg.IdentityAdminURL,
		AdminToken: cfg.IdentityAdminToken,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize identity gateway: %w", err)
	}
	defer gateway.Close()

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	sanitizer := security.NewInputSanitizer()

	accountService := account.NewService(store, gateway, account.Config{
		GracePeriod: cfg.DeletionGracePeriod,
	}).WithMetrics(collector)

	applicationService := application.NewService(store, sanitizer)

	// 5. セッションファクトリの構築
	// セッションレコードは署名付きCookieとしてクライアント側に預けるため、
	// ManagerとCookieStoreはリクエストごとに生成する。
	cookieCfg := session.CookieConfig{
		Secret: []byte(cfg.SessionSecret),
		Secure: cfg.CookieSecure,
		MaxAge: cfg.SessionTTL,
	}
	sessionCfg := session.Config{
		TTL:             cfg.SessionTTL,
		RefreshInterval: cfg.SessionRefreshInterval,
	}

	sessionFactory := func(w http.ResponseWriter, r *http.Request) middleware.SessionReader {
		return session.NewManager(session.NewCookieStore(w, r, cookieCfg), sessionCfg)
	}

	// 認証ハンドラーはManagerを直接触らず、束縛レイヤー経由で
	// サインイン・サインアウトをセッション状態に同期させる。
	// レコードはクライアント保持のCookieでリクエストごとに再構築されるため、
	// 定期スイープ（Reconciler.Run）はサーバー側では起動しない。有効性は
	// セッションミドルウェアがリクエストごとに遅延検査する。
	sessionBindings := func(w http.ResponseWriter, r *http.Request) handler.SessionBinding {
		mgr := session.NewManager(session.NewCookieStore(w, r, cookieCfg), sessionCfg)
		return session.NewReconciler(mgr, cfg.SessionSweepInterval, nil)
	}

	// 6. レート制限の構築（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitLifecycle > 0 {
		rateLimiterCfg.LifecycleRate = rate.Limit(float64(cfg.RateLimitLifecycle) / 60.0)
		rateLimiterCfg.LifecycleBurst = cfg.RateLimitLifecycle
	}
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		SessionFactory:    sessionFactory,
		StatusRecorder:    collector,

		Verifier:        gateway,
		SessionBindings: sessionBindings,

		AccountService:   accountService,
		LifecycleMetrics: collector,

		ApplicationService: applicationService,

		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
		},

		Store:          store,
		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はドキュメントストアのマイグレーションを実行する。
// インデックス定義を含むすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running document store migrations",
		slog.String("mongo_uri", maskMongoURI(cfg.MongoURI)),
	)

	if err := docstore.RunMigrations(cfg.MongoURI); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("document store migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskMongoURI は接続URIの認証情報をマスクする。
func maskMongoURI(uri string) string {
	if len(uri) > 20 {
		return uri[:12] + "***@..."
	}
	return "***"
}
