package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/allure/event-admin/internal/model"
)

// RequireRole returns a middleware that enforces that the authenticated
// user has one of the given roles.  It assumes JWTAuth ran first and stored
// the role under CtxRole; a missing role is treated like a wrong one and the
// request is aborted with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return c.JSON(http.StatusForbidden, model.Envelope{Success: false, Error: "Acesso negado"})
			}
			return next(c)
		}
	}
}
