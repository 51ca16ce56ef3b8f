package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/sports-federation/federation-portal/internal/config"
)

// ---------------------------------------------------------------------------
// LoginRateLimitConfig
// ---------------------------------------------------------------------------

func TestLoginRateLimitConfig(t *testing.T) {
	cfg := LoginRateLimitConfig(config.RateLimitingConfig{})
	if cfg.RequestsPerMinute != 10 {
		t.Errorf("RequestsPerMinute = %d, want 10", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 5 {
		t.Errorf("BurstSize = %d, want 5", cfg.BurstSize)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}

	cfg = LoginRateLimitConfig(config.RateLimitingConfig{RequestsPerMinute: 30, Burst: 10})
	if cfg.RequestsPerMinute != 30 || cfg.BurstSize != 10 {
		t.Errorf("config = %+v, want 30 rpm burst 10", cfg)
	}
}

// ---------------------------------------------------------------------------
// RateLimiter.Allow
// ---------------------------------------------------------------------------

func newTestLimiter(rpm, burst int) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour, // Don't clean up during tests
	})
}

func allowed(rl *RateLimiter, key string) bool {
	d, _ := rl.Allow(context.Background(), key)
	return d.Allowed
}

func TestRateLimiter_AllowsUpToBurstSize(t *testing.T) {
	burst := 3
	rl := newTestLimiter(600, burst)
	defer rl.Stop()

	count := 0
	for i := 0; i < burst+2; i++ {
		if allowed(rl, "burst-test") {
			count++
		}
	}
	if count != burst {
		t.Errorf("allowed %d requests at burst=%d, want exactly %d", count, burst, burst)
	}
}

func TestRateLimiter_DeniedReportsRetryAfter(t *testing.T) {
	rl := newTestLimiter(60, 1) // 1 token/sec
	defer rl.Stop()

	allowed(rl, "retry")
	d, err := rl.Allow(context.Background(), "retry")
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if d.Allowed {
		t.Fatal("second request should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want (0, 1s]", d.RetryAfter)
	}
}

func TestRateLimiter_TokensRefillOverTime(t *testing.T) {
	rl := newTestLimiter(600, 2) // 10 tokens/sec
	defer rl.Stop()

	for allowed(rl, "refill-test") {
	}

	time.Sleep(120 * time.Millisecond)

	if !allowed(rl, "refill-test") {
		t.Error("Allow() = false after token refill wait, want true")
	}
}

func TestRateLimiter_DifferentKeysAreIndependent(t *testing.T) {
	rl := newTestLimiter(60, 2)
	defer rl.Stop()

	for allowed(rl, "key-a") {
	}
	if !allowed(rl, "key-b") {
		t.Error("Allow() = false for independent key-b after exhausting key-a")
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := newTestLimiter(60, 5)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 600,
		BurstSize:         10,
		CleanupInterval:   10 * time.Millisecond,
	})
	defer rl.Stop()

	allowed(rl, "stale-client")

	rl.mu.Lock()
	if entry, ok := rl.entries["stale-client"]; ok {
		entry.lastUpdate = time.Now().Add(-11 * time.Minute)
	}
	rl.mu.Unlock()

	time.Sleep(60 * time.Millisecond)

	rl.mu.RLock()
	_, stillPresent := rl.entries["stale-client"]
	rl.mu.RUnlock()

	if stillPresent {
		t.Error("expected stale-client entry to be evicted by cleanup goroutine")
	}
}

// ---------------------------------------------------------------------------
// getRateLimitKey
// ---------------------------------------------------------------------------

func TestGetRateLimitKey(t *testing.T) {
	newCtx := func() *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		req, _ := http.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		c.Request = req
		return c
	}

	c := newCtx()
	c.Set(UserIDKey, "user-123")
	if key := getRateLimitKey(c); key != "user:user-123" {
		t.Errorf("key = %q, want user:user-123", key)
	}

	c = newCtx()
	if key := getRateLimitKey(c); key != "ip:192.168.1.1" {
		t.Errorf("key = %q, want ip:192.168.1.1", key)
	}

	c = newCtx()
	c.Set(UserIDKey, "")
	if key := getRateLimitKey(c); key != "ip:192.168.1.1" {
		t.Errorf("key = %q, want ip fallback for empty user id", key)
	}
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}

func (erroringLimiter) Limit() int { return 10 }

func newRateLimitRouter(limiter Limiter) *gin.Engine {
	r := gin.New()
	r.POST("/login", RateLimitMiddleware(limiter), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func sendFrom(r *gin.Engine, remote string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = remote
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_Allowed(t *testing.T) {
	rl := newTestLimiter(120, 10)
	defer rl.Stop()

	w := sendFrom(newRateLimitRouter(rl), "10.0.0.1:1234")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "120" {
		t.Errorf("X-RateLimit-Limit = %q, want 120", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9", got)
	}
}

func TestRateLimitMiddleware_Blocked(t *testing.T) {
	rl := newTestLimiter(1, 1)
	defer rl.Stop()
	r := newRateLimitRouter(rl)

	if w := sendFrom(r, "10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}

	w := sendFrom(r, "10.0.0.2:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	retry, _ := strconv.Atoi(w.Header().Get("Retry-After"))
	if retry < 1 || retry > 60 {
		t.Errorf("Retry-After = %d, want 1..60", retry)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["success"] != false || body["message"] == "" {
		t.Errorf("body = %v, want {success:false,message}", body)
	}

	// A different client is unaffected.
	if w := sendFrom(r, "10.0.0.3:1234"); w.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_LimiterErrorFailsOpen(t *testing.T) {
	w := sendFrom(newRateLimitRouter(erroringLimiter{}), "10.0.0.5:1234")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when limiter errors", w.Code)
	}
}

// ---------------------------------------------------------------------------
// RedisRateLimiter (requires a live redis)
// ---------------------------------------------------------------------------

func TestRedisRateLimiter(t *testing.T) {
	addr := os.Getenv("FED_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FED_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	rl := NewRedisRateLimiter(client, RateLimitConfig{RequestsPerMinute: 2, BurstSize: 2})
	rl.prefix = "login_rate_test:" + strconv.FormatInt(time.Now().UnixNano(), 10) + ":"

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := rl.Allow(ctx, "ip:1.2.3.4")
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	d, err := rl.Allow(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 {
		t.Errorf("third request = %+v, want denied with RetryAfter", d)
	}
	if rl.Limit() != 2 {
		t.Errorf("Limit() = %d, want 2", rl.Limit())
	}
}
