package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/allure/event-admin/internal/model"
	"github.com/allure/event-admin/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject, e-mail and role into the request context.
// The provided secret must match the one used when issuing tokens.  Handlers
// read the values through UserID, Email and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header is "Bearer <jwt>".
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, model.Envelope{Success: false, Error: "Token de acesso ausente"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			// ParseAccessToken pins HS256 and checks expiry.
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, model.Envelope{Success: false, Error: "Token inválido ou expirado"})
			}

			c.Set(CtxUserID, claims.Subject)
			c.Set(CtxEmail, claims.Email)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

// When returns mw if enabled and a pass-through otherwise.  It lets the
// router keep one route table whether authentication is on or off.
func When(enabled bool, mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if enabled {
		return mw
	}
	return passThrough
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
