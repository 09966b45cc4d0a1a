package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/allure/event-admin/internal/config"
	"github.com/allure/event-admin/internal/model"
)

// takeScript refills the bucket stored at KEYS[1] by whole intervals and
// takes one token.  Reply: {allowed, tokens left, ms until next refill}.
var takeScript = redis.NewScript(`
local now, cap, step, every, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 't', 'ts')
local tokens, stamp = tonumber(b[1]), tonumber(b[2])
if not tokens or not stamp then
  tokens, stamp = cap, now
end
if every > 0 and step > 0 and now > stamp then
  local n = math.floor((now - stamp) / every)
  if n > 0 then
    tokens = math.min(cap, tokens + n * step)
    stamp = stamp + n * every
  end
end
local ok, wait = 0, 0
if tokens >= 1 then
  ok, tokens = 1, tokens - 1
else
  wait = math.max(0, every - (now - stamp))
end
redis.call('HSET', KEYS[1], 't', tokens, 'ts', stamp)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, tokens, wait}
`)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter is a token bucket kept in Redis so every server instance shares
// the same budget.
type Limiter struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

func NewLimiter(cfg config.RateLimitConfig, rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg}
}

// Take spends one token from the bucket named key.
func (l *Limiter) Take(ctx context.Context, key string) (Decision, error) {
	ttl := int64(l.cfg.TTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	res, err := takeScript.Run(ctx, l.rdb, []string{key},
		time.Now().UnixMilli(), l.cfg.Capacity, l.cfg.RefillTokens, l.cfg.RefillInterval.Milliseconds(), ttl,
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected reply %v", res)
	}
	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket answers 429 once a client has spent its budget on the
// routes it wraps.  Redis failures let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	lim := NewLimiter(cfg, rdb)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			d, err := lim.Take(c.Request().Context(), key)
			if err != nil {
				c.Logger().Warnf("[ratelimit] %s: %v", key, err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if d.Allowed {
				return next(c)
			}

			secs := int((d.RetryAfter + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			return c.JSON(http.StatusTooManyRequests, model.Envelope{
				Success: false,
				Error:   "Muitas requisições",
				Message: fmt.Sprintf("Limite de requisições atingido. Tente novamente em %ds.", secs),
			})
		}
	}
}

// rateKey names the bucket: the prefix followed by the parts selected by
// KeyStrategy, e.g. "rl-ai:user:7" or "rl-ai:ip:10.0.0.1:route:POST /api/ai/extract-from-text".
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	parts := map[string]string{
		"ip":    ip,
		"user":  UserID(c),
		"route": c.Request().Method + " " + c.Path(),
	}

	strategy := strings.ToLower(cfg.KeyStrategy)
	var use []string
	switch strategy {
	case "ip", "user", "route":
		use = []string{strategy}
	case "ip_user", "ip_route", "user_route":
		use = strings.SplitN(strategy, "_", 2)
	default:
		use = []string{"ip", "user", "route"}
	}

	key := cfg.Prefix
	for _, p := range use {
		key += ":" + p + ":" + parts[p]
	}
	return key
}
