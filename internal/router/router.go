package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/allure/event-admin/internal/config"
	"github.com/allure/event-admin/internal/handler"
	"github.com/allure/event-admin/internal/middleware"
	"github.com/allure/event-admin/internal/model"
)

// bodyLimit leaves room for the multipart envelope around a 10MB image.
const bodyLimit = "11M"

// Deps bundles everything the routes need.  Redis may be nil, in which case
// the cache and rate limiter pass requests through.
type Deps struct {
	Events *handler.EventHandler
	AI     *handler.AIHandler
	Auth   *handler.AuthHandler
	Health *handler.HealthHandler

	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig

	JWTSecret   string
	AuthEnabled bool
	CORSOrigins []string
	Dev         bool
	Logger      *log.Logger
}

// New builds the Echo instance with the global middleware stack and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(d.Dev)
	if d.Logger != nil {
		e.Logger = d.Logger
	}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: corsOrigins(d.CORSOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echomw.Secure())
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(requestLogger(e.Logger))

	RegisterRoutes(e, d.Health)
	RegisterEvents(e, d)
	RegisterAI(e, d)
	RegisterAuth(e, d.Auth, d.JWTSecret)
	return e
}

func corsOrigins(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}

// requestLogger writes one line per request through the Echo logger.
func requestLogger(l echo.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			line := log.JSON{
				"id":      v.RequestID,
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.Round(time.Microsecond).String(),
			}
			if v.Error != nil {
				line["error"] = v.Error.Error()
				l.Warnj(line)
				return nil
			}
			l.Infoj(line)
			return nil
		},
	})
}

// RegisterRoutes registers the index and the health check.  Neither
// requires authentication.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/", handler.Index)
	e.GET("/health", h.Health)
}

// RegisterEvents registers /api/events.  Reads are public and cached; writes
// require an admin or manager token when auth is enabled and purge the
// cache once they succeed.
func RegisterEvents(e *echo.Echo, d Deps) {
	g := e.Group("/api/events")

	cache := middleware.NewRedisCache(d.Cache, d.Redis)
	g.GET("", d.Events.List, cache)
	g.GET("/date/:date", d.Events.ListByDate, cache)
	g.GET("/status/:status", d.Events.ListByStatus, cache)
	g.GET("/:id", d.Events.Get, cache)

	write := []echo.MiddlewareFunc{
		middleware.When(d.AuthEnabled, middleware.JWTAuth(d.JWTSecret)),
		middleware.When(d.AuthEnabled, middleware.RequireRole(model.RoleAdmin, model.RoleManager)),
		middleware.PurgeOnWrite(d.Cache, d.Redis),
	}
	g.POST("", d.Events.Create, write...)
	g.PUT("/:id", d.Events.Update, write...)
	g.DELETE("/:id", d.Events.Delete, write...)
}

// RegisterAI registers the extraction endpoints behind auth and the Redis
// token bucket.
func RegisterAI(e *echo.Echo, d Deps) {
	g := e.Group("/api/ai",
		middleware.When(d.AuthEnabled, middleware.JWTAuth(d.JWTSecret)),
		middleware.When(d.AuthEnabled, middleware.RequireRole(model.RoleAdmin, model.RoleManager)),
		middleware.NewTokenBucket(d.RateLimit, d.Redis),
	)
	g.POST("/extract-from-image", d.AI.ExtractFromImage)
	g.POST("/extract-from-text", d.AI.ExtractFromText)
}

// RegisterAuth registers the session endpoints.  Login, refresh and logout
// take their credentials from the body; /me needs a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/api/auth")
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me, middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin, model.RoleManager))
}
