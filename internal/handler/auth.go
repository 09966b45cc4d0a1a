package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/allure/event-admin/internal/middleware"
	"github.com/allure/event-admin/internal/service"
	"github.com/allure/event-admin/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth   service.Authenticator
	Secret string
	Dev    bool
}

func NewAuthHandler(auth service.Authenticator, secret string, dev bool) *AuthHandler {
	return &AuthHandler{Auth: auth, Secret: secret, Dev: dev}
}

// ----- DTOs -----

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
	Legacy       string `json:"refresh_token"`
}

func (r refreshReq) token() string {
	if t := strings.TrimSpace(r.RefreshToken); t != "" {
		return t
	}
	return strings.TrimSpace(r.Legacy)
}

func (h *AuthHandler) authErr(c echo.Context, err error, msg string) error {
	if errors.Is(err, service.ErrInvalidCredentials) {
		return fail(c, http.StatusUnauthorized, "Credenciais inválidas")
	}
	return internal(c, h.Dev, msg, err)
}

// Login: verify and return a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req service.Credentials
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Corpo da requisição inválido")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "E-mail e senha são obrigatórios")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Auth.Authenticate(ctx, req)
	if err != nil {
		return h.authErr(c, err, "Erro interno ao autenticar")
	}
	return ok(c, http.StatusOK, "Login realizado com sucesso", sess)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.token() == "" {
		return fail(c, http.StatusBadRequest, "refreshToken é obrigatório")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Auth.Refresh(ctx, req.token())
	if err != nil {
		return h.authErr(c, err, "Erro interno ao renovar sessão")
	}
	return ok(c, http.StatusOK, "", sess)
}

// Logout revokes the refresh token in the body.  Without one, a valid
// bearer token revokes every session of its user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw := req.token(); raw != "" {
		if err := h.Auth.Logout(ctx, raw); err != nil {
			return h.authErr(c, err, "Erro interno ao encerrar sessão")
		}
		return ok(c, http.StatusOK, "Sessão encerrada", nil)
	}

	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return fail(c, http.StatusBadRequest, "refreshToken ou token de acesso é obrigatório")
	}
	claims, err := utils.ParseAccessToken(h.Secret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
	if err != nil {
		return fail(c, http.StatusUnauthorized, "Token inválido ou expirado")
	}
	uid, err := claims.UserID()
	if err != nil {
		return fail(c, http.StatusUnauthorized, "Token inválido ou expirado")
	}
	if err := h.Auth.LogoutAll(ctx, uid); err != nil {
		return internal(c, h.Dev, "Erro interno ao encerrar sessão", err)
	}
	return ok(c, http.StatusOK, "Todas as sessões foram encerradas", nil)
}

// Me returns the identity carried by the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	return ok(c, http.StatusOK, "", echo.Map{
		"id":    middleware.UserID(c),
		"email": middleware.Email(c),
		"role":  middleware.Role(c),
	})
}
