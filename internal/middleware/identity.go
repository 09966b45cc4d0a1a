package middleware

// identity.go holds the accessors for the values JWTAuth stores in the Echo
// context.  They are shared by handlers, the rate limiter and the audit
// trail on event writes.

import "github.com/labstack/echo/v4"

func ctxString(c echo.Context, key string) string {
	if s, ok := c.Get(key).(string); ok {
		return s
	}
	return ""
}

// UserID returns the token subject, or "guest" when the request is not
// authenticated.
func UserID(c echo.Context) string {
	if v := ctxString(c, CtxUserID); v != "" {
		return v
	}
	return "guest"
}

// Email returns the authenticated e-mail or "".
func Email(c echo.Context) string { return ctxString(c, CtxEmail) }

// Role returns the authenticated role or "".
func Role(c echo.Context) string { return ctxString(c, CtxRole) }
