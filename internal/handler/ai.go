package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/allure/event-admin/internal/model"
)

// MaxImageBytes caps flyer uploads.
const MaxImageBytes = 10 << 20

// Extractor is implemented by *service.AIService.
type Extractor interface {
	ExtractFromText(ctx context.Context, text string) (*model.Extraction, error)
	ExtractFromImage(ctx context.Context, image []byte, mime string) (*model.Extraction, error)
}

// AIHandler serves the extraction endpoints.  The service enforces its own
// model timeout, so no extra deadline is set here.
type AIHandler struct {
	AI Extractor
}

func NewAIHandler(ai Extractor) *AIHandler { return &AIHandler{AI: ai} }

type textReq struct {
	Text string `json:"text"`
}

// ExtractFromImage handles POST /api/ai/extract-from-image with the
// multipart field "image".
func (h *AIHandler) ExtractFromImage(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return fail(c, http.StatusBadRequest, "Nenhuma imagem foi enviada")
	}
	mime := fh.Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(mime, "image/") {
		return fail(c, http.StatusBadRequest, "Apenas imagens são permitidas")
	}
	if fh.Size > MaxImageBytes {
		return fail(c, http.StatusRequestEntityTooLarge, "Imagem excede o limite de 10MB")
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "Nenhuma imagem foi enviada")
	}
	defer f.Close()
	img, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return fail(c, http.StatusBadRequest, "Falha ao ler a imagem")
	}
	if len(img) > MaxImageBytes {
		return fail(c, http.StatusRequestEntityTooLarge, "Imagem excede o limite de 10MB")
	}

	ex, err := h.AI.ExtractFromImage(c.Request().Context(), img, mime)
	if err != nil {
		return h.aiErr(c, err, "Erro ao processar imagem")
	}
	return ok(c, http.StatusOK, "Dados extraídos com sucesso", ex)
}

// ExtractFromText handles POST /api/ai/extract-from-text.
func (h *AIHandler) ExtractFromText(c echo.Context) error {
	var req textReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return fail(c, http.StatusBadRequest, "Texto não foi fornecido")
	}
	ex, err := h.AI.ExtractFromText(c.Request().Context(), req.Text)
	if err != nil {
		return h.aiErr(c, err, "Erro ao processar texto")
	}
	return ok(c, http.StatusOK, "Dados extraídos com sucesso", ex)
}

// aiErr answers 500 with the service's message; the service errors are
// already worded for staff.
func (h *AIHandler) aiErr(c echo.Context, err error, fallback string) error {
	c.Logger().Errorf("[ai] %s: %v", c.Path(), err)
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) || msg == "" {
		msg = fallback
	}
	return fail(c, http.StatusInternalServerError, msg)
}
