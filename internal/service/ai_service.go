package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/allure/event-admin/internal/catalog"
	"github.com/allure/event-admin/internal/model"
)

// Errors returned before or after the model call.  Handlers map all of them
// to a 500 envelope carrying Error().
var (
	ErrAIKeyMissing     = errors.New("OPENAI_API_KEY não configurada")
	ErrAIKeyPlaceholder = errors.New("OPENAI_API_KEY inválida ou placeholder. Atualize sua variável de ambiente.")
	ErrAIParse          = errors.New("Não foi possível interpretar a resposta da IA.")
)

// placeholderTokens are values copied from sample env files.
var placeholderTokens = []string{"your-api-key-here", "sua_chave_aqui"}

const extractionPrompt = `Você é um assistente especializado em extrair informações de eventos de %s.
Analise o conteúdo e extraia as seguintes informações sobre o evento:
- Nome do evento
- Artista ou atração principal
- Local do evento
- Data (formato dd-mm-yyyy)
- Hora de início (formato HH:mm)
- Hora de término (formato HH:mm)
- Status (disponivel, esgotado, cancelado)
- Endereço do evento
- Descrição
- Ingressos (lista com nome, preço, descrição e categoria quando houver)

Retorne APENAS um objeto JSON válido, sem markdown, sem explicações adicionais, seguindo esta estrutura:
{
  "nome": "nome do evento",
  "artista": "artista principal",
  "local": "nome do local",
  "data": "dd-mm-yyyy",
  "horaInicio": "HH:mm",
  "horaFim": "HH:mm",
  "status": "disponivel",
  "endereco": "endereço completo",
  "descricao": "descrição do evento",
  "ingressos": [
    {"id": "1", "nome": "Mesa 4 lugares", "preco": 100, "descricao": "Ingresso comum", "categoria": "mesa"}
  ]
}

Se alguma informação não estiver disponível, omita o campo ou use string vazia.
Para preços, extraia apenas números (sem R$, sem vírgulas de milhar).
Para datas, converta para o formato dd-mm-yyyy.
Para horários, use formato 24h (HH:mm).`

// AIConfig configures AIService.
type AIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Logger  *log.Logger
}

// AIService turns flyers and announcements into event drafts through a
// chat completion model.
type AIService struct {
	cfg    AIConfig
	client *openai.Client
	logger *log.Logger
}

// NewAIService builds the service.  A missing or placeholder key is not an
// error here; every extraction reports it instead, before any network call.
func NewAIService(cfg AIConfig) *AIService {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New("ai")
	}
	oc := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &AIService{cfg: cfg, client: openai.NewClientWithConfig(oc), logger: cfg.Logger}
}

// CheckKey reports whether the configured API key can be used.
func (s *AIService) CheckKey() error {
	key := strings.TrimSpace(s.cfg.APIKey)
	if key == "" {
		return ErrAIKeyMissing
	}
	lower := strings.ToLower(key)
	for _, tok := range placeholderTokens {
		if strings.Contains(lower, tok) {
			return ErrAIKeyPlaceholder
		}
	}
	return nil
}

// ExtractFromText extracts event data from a free-text announcement.
func (s *AIService) ExtractFromText(ctx context.Context, text string) (*model.Extraction, error) {
	if err := s.CheckKey(); err != nil {
		return nil, err
	}
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(extractionPrompt, "textos")},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
	return s.complete(ctx, "texto", msgs)
}

// ExtractFromImage extracts event data from a flyer.  mime is the image's
// content type, e.g. image/png.
func (s *AIService) ExtractFromImage(ctx context.Context, image []byte, mime string) (*model.Extraction, error) {
	if err := s.CheckKey(); err != nil {
		return nil, err
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(extractionPrompt, "imagens")},
		{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto}},
		}},
	}
	return s.complete(ctx, "imagem", msgs)
}

func (s *AIService) complete(ctx context.Context, what string, msgs []openai.ChatCompletionMessage) (*model.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          s.cfg.Model,
		Messages:       msgs,
		MaxTokens:      1000,
		Temperature:    0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		s.logger.Errorf("ai: %s completion failed: %v", what, err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return nil, fmt.Errorf("Falha ao processar %s com IA: %s", what, apiErr.Message)
		}
		return nil, fmt.Errorf("Falha ao processar %s com IA: %w", what, err)
	}

	content := "{}"
	if len(resp.Choices) > 0 && strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		content = resp.Choices[0].Message.Content
	}
	ex, err := ParseExtraction(content)
	if err != nil {
		preview := content
		if len(preview) > 200 {
			preview = preview[:200]
		}
		s.logger.Errorf("ai: could not parse %s response: %v; preview=%q", what, err, preview)
		return nil, err
	}
	return ex, nil
}

// StripFences removes a surrounding ``` or ```json markdown fence.
func StripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseExtraction decodes a model answer into an Extraction.  Empty strings
// count as "not extracted".  Tickets are normalized into the category
// catalog.
func ParseExtraction(content string) (*model.Extraction, error) {
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(StripFences(content)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, ErrAIParse
	}

	ex := &model.Extraction{
		Nome:        pickString(raw, "nome"),
		Artista:     pickString(raw, "artista"),
		Local:       pickString(raw, "local"),
		Data:        pickString(raw, "data"),
		HoraInicio:  pickString(raw, "horaInicio"),
		HoraTermino: pickString(raw, "horaFim", "horaTermino"),
		Status:      normalizeStatus(pickString(raw, "status")),
		Endereco:    pickString(raw, "endereco"),
		Descricao:   pickString(raw, "descricao"),
		ImagemURL:   pickString(raw, "imagemUrl"),
	}

	if tickets, ok := raw["ingressos"]; ok && tickets != nil {
		if b, err := json.Marshal(tickets); err == nil {
			ex.RawIngressos = b
		}
		res := catalog.NormalizeExtractedTickets(tickets)
		ex.Ingressos = res.Ingressos
		ex.CustomCategories = res.CustomCategories
	}
	return ex, nil
}

func pickString(m map[string]any, keys ...string) *string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return &s
			}
		}
	}
	return nil
}

// normalizeStatus folds "Disponível" and friends onto the closed status
// set.  Unknown labels become a custom status value the form can show.
func normalizeStatus(s *string) *string {
	if s == nil {
		return nil
	}
	key := catalog.NormalizeLabel(*s)
	for _, st := range []model.Status{model.StatusAvailable, model.StatusSoldOut, model.StatusCancelled} {
		if key == string(st) {
			v := string(st)
			return &v
		}
	}
	return s
}
