package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/allure/event-admin/internal/middleware"
	"github.com/allure/event-admin/internal/model"
	"github.com/allure/event-admin/internal/repository"
	"github.com/allure/event-admin/internal/service"
)

// EventService is implemented by *service.EventService.
type EventService interface {
	Create(ctx context.Context, ev model.Event, actor string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	Get(ctx context.Context, id uint64) (*model.Event, error)
	ListByDate(ctx context.Context, date string) ([]model.Event, error)
	ListByStatus(ctx context.Context, status string) ([]model.Event, error)
	Update(ctx context.Context, id uint64, p model.EventPatch, actor string) (*model.Event, error)
	Delete(ctx context.Context, id uint64, actor string) error
}

// EventHandler serves /api/events.
type EventHandler struct {
	Svc EventService
	Dev bool
}

func NewEventHandler(svc EventService, dev bool) *EventHandler {
	if svc == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{Svc: svc, Dev: dev}
}

const dbTimeout = 5 * time.Second

func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// respondErr maps service errors: validation 400, not found 404, else 500.
func (h *EventHandler) respondErr(c echo.Context, err error, msg string) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return fail(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, repository.ErrEventNotFound):
		return fail(c, http.StatusNotFound, "Evento não encontrado")
	}
	return internal(c, h.Dev, msg, err)
}

// Create handles POST /api/events.
func (h *EventHandler) Create(c echo.Context) error {
	var ev model.Event
	if err := c.Bind(&ev); err != nil {
		return fail(c, http.StatusBadRequest, "Corpo da requisição inválido")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	created, err := h.Svc.Create(ctx, ev, middleware.Email(c))
	if err != nil {
		return h.respondErr(c, err, "Erro interno ao criar evento")
	}
	return ok(c, http.StatusCreated, "Evento criado com sucesso", created)
}

// List handles GET /api/events.
func (h *EventHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	events, err := h.Svc.List(ctx)
	if err != nil {
		return h.respondErr(c, err, "Erro interno ao buscar eventos")
	}
	return ok(c, http.StatusOK, "", events)
}

// Get handles GET /api/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "ID inválido")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	ev, err := h.Svc.Get(ctx, id)
	if err != nil {
		return h.respondErr(c, err, "Erro interno ao buscar evento")
	}
	return ok(c, http.StatusOK, "", ev)
}

// Update handles PUT /api/events/:id.  Only the fields present in the body
// change.
func (h *EventHandler) Update(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "ID inválido")
	}
	var p model.EventPatch
	if err := c.Bind(&p); err != nil {
		return fail(c, http.StatusBadRequest, "Corpo da requisição inválido")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	ev, err := h.Svc.Update(ctx, id, p, middleware.Email(c))
	if err != nil {
		return h.respondErr(c, err, "Erro interno ao atualizar evento")
	}
	return ok(c, http.StatusOK, "Evento atualizado com sucesso", ev)
}

// Delete handles DELETE /api/events/:id.
func (h *EventHandler) Delete(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "ID inválido")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Svc.Delete(ctx, id, middleware.Email(c)); err != nil {
		return h.respondErr(c, err, "Erro interno ao deletar evento")
	}
	return ok(c, http.StatusOK, "Evento deletado com sucesso", nil)
}

// ListByDate handles GET /api/events/date/:date.
func (h *EventHandler) ListByDate(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	events, err := h.Svc.ListByDate(ctx, c.Param("date"))
	if err != nil {
		return h.respondErr(c, err, "Erro interno ao buscar eventos")
	}
	return ok(c, http.StatusOK, "", events)
}

// ListByStatus handles GET /api/events/status/:status.
func (h *EventHandler) ListByStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	events, err := h.Svc.ListByStatus(ctx, c.Param("status"))
	if err != nil {
		return h.respondErr(c, err, "Erro interno ao buscar eventos")
	}
	return ok(c, http.StatusOK, "", events)
}
