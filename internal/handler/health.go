package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger checks that storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports storage reachability for load balancers and
// monitoring.  It answers 200 when SELECT 1 succeeds and 500 otherwise.
type HealthHandler struct {
	DB  Pinger
	Dev bool
}

type healthReport struct {
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	Database     string `json:"database"`
	ResponseTime string `json:"responseTime"`
	Error        string `json:"error,omitempty"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	start := time.Now()
	err := h.DB.Ping(ctx)
	rep := healthReport{
		Status:       "ok",
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Database:     "connected",
		ResponseTime: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		c.Logger().Errorf("[health] database unreachable after %s: %v", rep.ResponseTime, err)
		rep.Status = "error"
		rep.Database = "disconnected"
		rep.Error = "database unreachable"
		if h.Dev {
			rep.Error = err.Error()
		}
		return c.JSON(http.StatusInternalServerError, rep)
	}
	return c.JSON(http.StatusOK, rep)
}

// Index lists the public endpoints.
func Index(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"message": "API Allure Events - Backend funcionando",
		"version": "1.0.0",
		"endpoints": echo.Map{
			"health":          "/health",
			"events":          "/api/events",
			"createEvent":     "POST /api/events",
			"getEvent":        "GET /api/events/:id",
			"updateEvent":     "PUT /api/events/:id",
			"deleteEvent":     "DELETE /api/events/:id",
			"eventsByDate":    "GET /api/events/date/:date",
			"eventsByStatus":  "GET /api/events/status/:status",
			"extractFromText": "POST /api/ai/extract-from-text",
			"extractFromImg":  "POST /api/ai/extract-from-image",
			"login":           "POST /api/auth/login",
		},
	})
}
