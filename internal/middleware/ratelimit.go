package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/jacobsladder/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	LifecycleRate   rate.Limit    // ライフサイクル操作のレート（req/sec）。10/60
	LifecycleBurst  int           // ライフサイクル操作のバーストサイズ
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 要件: ライフサイクル操作 10 req/min/IP、API全般 120 req/min/user
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		LifecycleRate:   rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		LifecycleBurst:  10,
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		CleanupInterval: 5 * time.Minute,
	}
}

// callerLimiter は呼び出し元ごとのレートリミッターとアクセス時刻を保持する。
type callerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter は呼び出し元ごとのレート制限を管理する。
// ライフサイクル操作（削除予約・エクスポート）はクライアントIP単位で、
// API全般は認証済みユーザー単位で制限する。
// ライフサイクル側は認証より前段に位置するため、IPでしか識別できない。
type RateLimiter struct {
	config RateLimiterConfig

	lifecycleMu       sync.RWMutex
	lifecycleLimiters map[string]*callerLimiter

	generalMu       sync.RWMutex
	generalLimiters map[string]*callerLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:            config,
		lifecycleLimiters: make(map[string]*callerLimiter),
		generalLimiters:   make(map[string]*callerLimiter),
		stopCh:            make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// LifecycleMiddleware はライフサイクル操作専用のレート制限ミドルウェアを返す。
// トークン検証を含む他の処理より前に適用し、超過した呼び出し元は
// いかなる状態変更にも到達させない。
func (rl *RateLimiter) LifecycleMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			limiter := rl.getOrCreateLimiter(&rl.lifecycleMu, rl.lifecycleLimiters,
				ip, rl.config.LifecycleRate, rl.config.LifecycleBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.LifecycleRate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "lifecycle"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにユーザーIDが含まれている必要がある
// （SessionMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			limiter := rl.getOrCreateLimiter(&rl.generalMu, rl.generalLimiters,
				userID, rl.config.GeneralRate, rl.config.GeneralBurst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LifecycleLimiterCount は現在管理されているライフサイクルリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LifecycleLimiterCount() int {
	rl.lifecycleMu.RLock()
	defer rl.lifecycleMu.RUnlock()
	return len(rl.lifecycleLimiters)
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// getOrCreateLimiter は呼び出し元のリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateLimiter(mu *sync.RWMutex, limiters map[string]*callerLimiter, key string, r rate.Limit, burst int) *rate.Limiter {
	mu.RLock()
	cl, exists := limiters[key]
	mu.RUnlock()

	if exists {
		mu.Lock()
		cl.lastAccess = time.Now()
		mu.Unlock()
		return cl.limiter
	}

	mu.Lock()
	defer mu.Unlock()

	// ダブルチェック
	if cl, exists := limiters[key]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(r, burst)
	limiters[key] = &callerLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.lifecycleMu.Lock()
	for key, cl := range rl.lifecycleLimiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.lifecycleLimiters, key)
		}
	}
	rl.lifecycleMu.Unlock()

	rl.generalMu.Lock()
	for key, cl := range rl.generalLimiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.generalLimiters, key)
		}
	}
	rl.generalMu.Unlock()
}

// clientIP はリクエストの送信元IPを解決する。
// リバースプロキシ配下を想定してX-Forwarded-Forの先頭エントリを優先し、
// なければRemoteAddrのホスト部を使う。
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     model.ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
