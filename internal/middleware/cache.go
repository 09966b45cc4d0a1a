package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/allure/event-admin/internal/config"
)

// cacheEntry is what a cached listing looks like in Redis.  Only the
// content type is kept from the headers; request ids and cache markers are
// per response.
type cacheEntry struct {
	Status      int    `json:"s"`
	ContentType string `json:"ct"`
	Body        []byte `json:"b"`
}

func (e cacheEntry) marshal() ([]byte, error) { return json.Marshal(e) }

func unmarshalEntry(raw []byte) (cacheEntry, bool) {
	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil || e.Status == 0 {
		return cacheEntry{}, false
	}
	return e, true
}

// teeWriter forwards the response and keeps a copy of the body up to limit
// bytes.  overflow is set once the body outgrows the limit.
type teeWriter struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	limit    int
	overflow bool
}

func (w *teeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.limit > 0 && w.body.Len()+len(b) > w.limit {
			w.overflow = true
			w.body.Reset()
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// cacheKey hashes the concrete request path (never the route pattern, so
// /api/events/1 and /api/events/2 differ) plus the parts KeyStrategy asks for.
func cacheKey(cfg config.CacheConfig, r *http.Request) string {
	strategy := strings.ToLower(cfg.KeyStrategy)
	var sb strings.Builder
	if strings.HasPrefix(strategy, "method_") {
		sb.WriteString(r.Method)
		sb.WriteByte(' ')
	}
	sb.WriteString(r.URL.Path)
	if strategy == "" || strings.HasSuffix(strategy, "_query") {
		sb.WriteByte('?')
		sb.WriteString(r.URL.RawQuery)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:16])
}

// NewRedisCache serves repeated event reads from Redis.  Only 200 answers
// that fit in MaxBodyBytes are stored; X-Cache tells HIT from MISS.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !cfg.Methods[strings.ToUpper(req.Method)] {
				return next(c)
			}
			key := cacheKey(cfg, req)
			res := c.Response()

			if raw, err := rdb.Get(req.Context(), key).Bytes(); err == nil {
				if e, ok := unmarshalEntry(raw); ok {
					res.Header().Set("X-Cache", "HIT")
					return c.Blob(e.Status, e.ContentType, e.Body)
				}
			} else if !errors.Is(err, redis.Nil) {
				c.Logger().Warnf("[cache] get %s: %v", key, err)
			}

			tee := &teeWriter{ResponseWriter: res.Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			res.Writer = tee
			res.Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if tee.status != http.StatusOK || tee.overflow {
				return nil
			}

			raw, err := cacheEntry{
				Status:      tee.status,
				ContentType: res.Header().Get(echo.HeaderContentType),
				Body:        tee.body.Bytes(),
			}.marshal()
			if err == nil {
				// the request context may already be cancelled once the
				// client has its answer
				err = rdb.Set(context.Background(), key, raw, ttl).Err()
			}
			if err != nil {
				c.Logger().Warnf("[cache] set %s: %v", key, err)
			}
			return nil
		}
	}
}

// Purge deletes every cached response under prefix and returns how many
// entries went away.
func Purge(ctx context.Context, rdb *redis.Client, prefix string) (int64, error) {
	if rdb == nil {
		return 0, nil
	}
	var deleted int64
	iter := rdb.Scan(ctx, 0, prefix+":*", 200).Iterator()
	batch := make([]string, 0, 200)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := rdb.Del(ctx, batch...).Result()
		deleted += n
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, flush()
}

// PurgeOnWrite empties the event cache after a successful write so the
// next listing reflects it.
func PurgeOnWrite(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				return err
			}
			if st := c.Response().Status; st < 200 || st >= 300 {
				return nil
			}
			n, err := Purge(c.Request().Context(), rdb, cfg.Prefix)
			if err != nil {
				c.Logger().Warnf("[cache] purge %s: %v", cfg.Prefix, err)
				return nil
			}
			c.Logger().Debugf("[cache] purged %d entries after %s %s", n, c.Request().Method, c.Request().URL.Path)
			return nil
		}
	}
}
