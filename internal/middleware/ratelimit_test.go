package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/jacobsladder/internal/model"
)

// --- GeneralMiddleware (API全般) のテスト ---

func TestGeneralMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	cfg := RateLimiterConfig{
		LifecycleRate:   1, // 未使用
		LifecycleBurst:  10,
		GeneralRate:     2, // 2 req/sec
		GeneralBurst:    5, // バースト5
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.GeneralMiddleware()

	handlerCallCount := 0
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestGeneralMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	cfg := RateLimiterConfig{
		LifecycleRate:   1,
		LifecycleBurst:  10,
		GeneralRate:     1, // 1 req/sec
		GeneralBurst:    2, // バースト2
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.GeneralMiddleware()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バースト分（2回）は通る
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), "user-rate-limit"))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	// 3回目はレート制限に引っかかる
	req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-rate-limit"))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}

	// Retry-Afterヘッダーとエラーコードの検証
	retryAfter := w.Result().Header.Get("Retry-After")
	if retryAfter == "" {
		t.Error("Retry-After header should be set")
	} else if sec, err := strconv.Atoi(retryAfter); err != nil || sec < 1 {
		t.Errorf("Retry-After = %q, want integer >= 1", retryAfter)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

func TestGeneralMiddleware_LimitsPerUser(t *testing.T) {
	cfg := RateLimiterConfig{
		LifecycleRate:   1,
		LifecycleBurst:  10,
		GeneralRate:     1,
		GeneralBurst:    1,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.GeneralMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// user-aのバーストを使い切る
	req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-a"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-a"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("user-a second request: status = %d, want 429", w.Result().StatusCode)
	}

	// 別ユーザーは影響を受けない
	req = httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-b"))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("user-b request: status = %d, want 200", w.Result().StatusCode)
	}
}

func TestGeneralMiddleware_MissingUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called without user ID")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- LifecycleMiddleware (ライフサイクル操作) のテスト ---

func TestLifecycleMiddleware_LimitsPerClientIP(t *testing.T) {
	cfg := RateLimiterConfig{
		LifecycleRate:   1,
		LifecycleBurst:  2,
		GeneralRate:     1,
		GeneralBurst:    10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.LifecycleMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// 同一IPからのバースト分（2回）は通る
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/api/account", nil)
		req.RemoteAddr = "203.0.113.1:54321"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Result().StatusCode)
		}
	}

	// 3回目は弾かれ、ハンドラーには到達しない
	req := httptest.NewRequest(http.MethodDelete, "/api/account", nil)
	req.RemoteAddr = "203.0.113.1:54321"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Result().StatusCode)
	}
	if handlerCallCount != 2 {
		t.Errorf("handler call count = %d, want 2 (throttled request must not reach handler)", handlerCallCount)
	}

	// 別IPは影響を受けない
	req = httptest.NewRequest(http.MethodDelete, "/api/account", nil)
	req.RemoteAddr = "198.51.100.2:54321"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", w.Result().StatusCode)
	}
}

func TestLifecycleMiddleware_UsesXForwardedForWhenPresent(t *testing.T) {
	cfg := RateLimiterConfig{
		LifecycleRate:   1,
		LifecycleBurst:  1,
		GeneralRate:     1,
		GeneralBurst:    10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.LifecycleMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// X-Forwarded-Forの先頭エントリで識別される
	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodDelete, "/api/account", nil)
		req.RemoteAddr = "10.0.0.1:1234" // プロキシのアドレス
		req.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Result().StatusCode
	}

	if got := send("203.0.113.1, 10.0.0.1"); got != http.StatusOK {
		t.Errorf("first request: status = %d, want 200", got)
	}
	if got := send("203.0.113.1, 10.0.0.1"); got != http.StatusTooManyRequests {
		t.Errorf("same client: status = %d, want 429", got)
	}
	if got := send("198.51.100.9, 10.0.0.1"); got != http.StatusOK {
		t.Errorf("different client behind same proxy: status = %d, want 200", got)
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	cfg := RateLimiterConfig{
		LifecycleRate:   1,
		LifecycleBurst:  1,
		GeneralRate:     1,
		GeneralBurst:    1,
		CleanupInterval: 10 * time.Millisecond,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.LifecycleMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/account", nil)
	req.RemoteAddr = "203.0.113.1:54321"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if rl.LifecycleLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, want 1", rl.LifecycleLimiterCount())
	}

	// CleanupIntervalの2倍を超えてアクセスのないエントリは回収される
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rl.LifecycleLimiterCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("stale limiter entry was not cleaned up")
}

// clientIP単体の挙動。
func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr only", "203.0.113.1:54321", "", "203.0.113.1"},
		{"xff single", "10.0.0.1:1234", "203.0.113.7", "203.0.113.7"},
		{"xff chain takes first", "10.0.0.1:1234", "203.0.113.7, 10.0.0.1, 10.0.0.2", "203.0.113.7"},
		{"xff with spaces", "10.0.0.1:1234", "  203.0.113.7  , 10.0.0.1", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
