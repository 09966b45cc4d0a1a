package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/allure/event-admin/internal/config"
	"github.com/allure/event-admin/internal/model"
	"github.com/allure/event-admin/internal/utils"
)

const secret = "test-secret"

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func serve(e *echo.Echo, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) model.Envelope {
	t.Helper()
	var env model.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestJWTAuthAndRole(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"id": UserID(c), "email": Email(c), "role": Role(c)})
	}, JWTAuth(secret), RequireRole(model.RoleAdmin, model.RoleManager))
	e.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		JWTAuth(secret), RequireRole(model.RoleAdmin))

	manager, err := utils.NewAccessToken(secret, 42, "gerente@allure.com.br", model.RoleManager, 15, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := utils.NewAccessToken(secret, 42, "gerente@allure.com.br", model.RoleManager, 15, time.Now().Add(-time.Hour))

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"missing token", "/me", "", http.StatusUnauthorized},
		{"garbage token", "/me", "abc.def.ghi", http.StatusUnauthorized},
		{"expired token", "/me", expired.Token, http.StatusUnauthorized},
		{"manager on me", "/me", manager.Token, http.StatusOK},
		{"manager on admin", "/admin", manager.Token, http.StatusForbidden},
	}
	for _, tc := range tests {
		rec := serve(e, http.MethodGet, tc.path, tc.token)
		if rec.Code != tc.status {
			t.Fatalf("%s: status %d, want %d (%s)", tc.name, rec.Code, tc.status, rec.Body.String())
		}
		if tc.status >= 400 {
			if env := decodeEnvelope(t, rec); env.Success || env.Error == "" {
				t.Fatalf("%s: expected error envelope, got %+v", tc.name, env)
			}
		}
	}

	rec := serve(e, http.MethodGet, "/me", manager.Token)
	var got map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["id"] != "42" || got["email"] != "gerente@allure.com.br" || got["role"] != model.RoleManager {
		t.Fatalf("unexpected identity %v", got)
	}
}

func TestWhen_Disabled(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.GET("/open", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	}, When(false, JWTAuth(secret)))

	rec := serve(e, http.MethodGet, "/open", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "guest" {
		t.Fatalf("expected pass-through as guest, got %d %q", rec.Code, rec.Body.String())
	}
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "events-cache",
		MaxBodyBytes: 1 << 20,
	}
}

func TestRedisCache_HitMissAndPurge(t *testing.T) {
	t.Parallel()
	rdb := newRedis(t)
	cfg := cacheConfig()

	calls := 0
	e := echo.New()
	e.GET("/api/events/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, model.Envelope{Success: true, Data: c.Param("id")})
	}, NewRedisCache(cfg, rdb))
	e.GET("/api/events/missing", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusNotFound, model.Envelope{Success: false, Error: "Evento não encontrado"})
	}, NewRedisCache(cfg, rdb))
	e.POST("/api/events", func(c echo.Context) error {
		return c.JSON(http.StatusCreated, model.Envelope{Success: true})
	}, PurgeOnWrite(cfg, rdb))

	first := serve(e, http.MethodGet, "/api/events/1", "")
	second := serve(e, http.MethodGet, "/api/events/1", "")
	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("expected MISS then HIT, got %q %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if first.Body.String() != second.Body.String() || calls != 1 {
		t.Fatalf("cached body differs or handler ran %d times", calls)
	}

	if rec := serve(e, http.MethodGet, "/api/events/2", ""); rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("distinct ids must not share a cache entry")
	}

	serve(e, http.MethodGet, "/api/events/missing", "")
	if rec := serve(e, http.MethodGet, "/api/events/missing", ""); rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("non-200 responses must not be cached")
	}

	if rec := serve(e, http.MethodPost, "/api/events", ""); rec.Code != http.StatusCreated {
		t.Fatalf("unexpected write status %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/events/1", ""); rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("write must purge cached reads")
	}
}

func TestRedisCache_DisabledWithoutRedis(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, NewRedisCache(cacheConfig(), nil))
	if rec := serve(e, http.MethodGet, "/x", ""); rec.Header().Get("X-Cache") != "" {
		t.Fatalf("expected no cache header without redis")
	}
}

func TestCacheEntryAndKey(t *testing.T) {
	t.Parallel()

	raw, err := cacheEntry{Status: 200, ContentType: "application/json", Body: []byte(`{"a":1}`)}.marshal()
	if err != nil {
		t.Fatal(err)
	}
	e, ok := unmarshalEntry(raw)
	if !ok || e.Status != 200 || e.ContentType != "application/json" || string(e.Body) != `{"a":1}` {
		t.Fatalf("unexpected entry %+v %v", e, ok)
	}
	if _, ok := unmarshalEntry([]byte("garbage")); ok {
		t.Fatalf("garbage must not decode")
	}

	cfg := cacheConfig()
	a := cacheKey(cfg, httptest.NewRequest(http.MethodGet, "/api/events?x=1", nil))
	b := cacheKey(cfg, httptest.NewRequest(http.MethodGet, "/api/events?x=2", nil))
	if a == b || !strings.HasPrefix(a, "events-cache:") {
		t.Fatalf("route_query keys must include the query: %q %q", a, b)
	}
	cfg.KeyStrategy = "route"
	if cacheKey(cfg, httptest.NewRequest(http.MethodGet, "/api/events?x=1", nil)) != cacheKey(cfg, httptest.NewRequest(http.MethodGet, "/api/events?x=2", nil)) {
		t.Fatalf("route keys must ignore the query")
	}
}

func TestRateKey(t *testing.T) {
	t.Parallel()

	e := echo.New()
	tests := []struct {
		strategy string
		want     string
	}{
		{"ip", "rl:ip:192.0.2.1"},
		{"user", "rl:user:7"},
		{"ip_user", "rl:ip:192.0.2.1:user:7"},
		{"user_route", "rl:user:7:route:POST /api/ai/extract-from-text"},
		{"", "rl:ip:192.0.2.1:user:7:route:POST /api/ai/extract-from-text"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/ai/extract-from-text", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath("/api/ai/extract-from-text")
		c.Set(CtxUserID, "7")
		if got := rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: tc.strategy}, c); got != tc.want {
			t.Fatalf("strategy %q: got %q, want %q", tc.strategy, got, tc.want)
		}
	}
}

func TestLimiter_Take(t *testing.T) {
	t.Parallel()
	lim := NewLimiter(config.RateLimitConfig{
		Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour,
	}, newRedis(t))

	first, err := lim.Take(context.Background(), "bucket")
	if err != nil || !first.Allowed || first.Remaining != 0 {
		t.Fatalf("first take = %+v, %v", first, err)
	}
	second, err := lim.Take(context.Background(), "bucket")
	if err != nil || second.Allowed || second.RetryAfter <= 0 || second.RetryAfter > time.Minute {
		t.Fatalf("second take = %+v, %v", second, err)
	}
}

func TestTokenBucket(t *testing.T) {
	t.Parallel()
	rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 2 * time.Hour, KeyStrategy: "ip", Prefix: "rl-ai",
	}

	e := echo.New()
	e.POST("/api/ai/extract-from-text", func(c echo.Context) error {
		return c.JSON(http.StatusOK, model.Envelope{Success: true})
	}, NewTokenBucket(cfg, rdb))

	for i := 0; i < 2; i++ {
		if rec := serve(e, http.MethodPost, "/api/ai/extract-from-text", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected status %d", i, rec.Code)
		}
	}
	rec := serve(e, http.MethodPost, "/api/ai/extract-from-text", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing rate limit headers: %v", rec.Header())
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Error == "" {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}
