package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/allure/event-admin/internal/model"
	"github.com/allure/event-admin/internal/repository"
	"github.com/allure/event-admin/internal/service"
)

// textStore keeps ingressos as JSON text, like the events table does.
type textStore struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]model.Event
	texts  map[uint64]string
}

func newTextStore() *textStore {
	return &textStore{nextID: 1, rows: map[uint64]model.Event{}, texts: map[uint64]string{}}
}

func (s *textStore) put(e model.Event) error {
	txt, err := repository.EncodeIngressos(e.Ingressos)
	if err != nil {
		return err
	}
	e.Ingressos = nil
	s.rows[e.ID] = e
	s.texts[e.ID] = txt
	return nil
}

func (s *textStore) load(id uint64) (*model.Event, error) {
	e, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	in, err := repository.DecodeIngressos(s.texts[id])
	if err != nil {
		return nil, err
	}
	e.Ingressos = in
	return &e, nil
}

func (s *textStore) Create(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	return s.put(*e)
}

func (s *textStore) List(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.rows))
	for id := range s.rows {
		e, _ := s.load(id)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *textStore) Get(ctx context.Context, id uint64) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *textStore) Update(ctx context.Context, id uint64, p model.EventPatch) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.Nome != nil {
		e.Nome = *p.Nome
	}
	if p.Ingressos != nil {
		e.Ingressos = p.Ingressos
	}
	if err := s.put(*e); err != nil {
		return nil, err
	}
	return s.load(id)
}

func (s *textStore) Delete(ctx context.Context, id uint64, hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrEventNotFound
	}
	delete(s.rows, id)
	delete(s.texts, id)
	return nil
}

func (s *textStore) ListByDate(ctx context.Context, date string) ([]model.Event, error) {
	return []model.Event{}, nil
}

func (s *textStore) ListByStatus(ctx context.Context, status string) ([]model.Event, error) {
	return []model.Event{}, nil
}

func (s *textStore) Ping(ctx context.Context) error { return nil }

type failingStore struct{ *textStore }

func (failingStore) List(ctx context.Context) ([]model.Event, error) {
	return nil, errors.New("pool exhausted")
}

func quiet() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func newEventServer(store service.EventStore) *echo.Echo {
	e := echo.New()
	e.Logger.SetOutput(io.Discard)
	e.HTTPErrorHandler = HTTPErrorHandler(false)
	h := NewEventHandler(service.NewEventService(store, nil, false, quiet()), false)
	e.POST("/api/events", h.Create)
	e.GET("/api/events", h.List)
	e.GET("/api/events/:id", h.Get)
	e.PUT("/api/events/:id", h.Update)
	e.DELETE("/api/events/:id", h.Delete)
	e.GET("/api/events/date/:date", h.ListByDate)
	e.GET("/api/events/status/:status", h.ListByStatus)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func parse(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return env
}

const showTeste = `{"nome":"Show Teste","artista":"Banda X","data":"24-09-2025","horaInicio":"20:00","status":"disponivel",
"ingressos":{"setores_mesa":[{"id":"1","nome":"Mesa VIP","preco":150,"descricao":"4 pessoas"}]}}`

func TestEvents_CreateThenGetRoundTrip(t *testing.T) {
	t.Parallel()
	e := newEventServer(newTextStore())

	rec := do(e, http.MethodPost, "/api/events", showTeste)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	env := parse(t, rec)
	if !env.Success || env.Message != "Evento criado com sucesso" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var created model.Event
	if err := json.Unmarshal(env.Data, &created); err != nil || created.ID != 1 {
		t.Fatalf("unexpected created event %s (%v)", env.Data, err)
	}

	rec = do(e, http.MethodGet, "/api/events/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	var got model.Event
	_ = json.Unmarshal(parse(t, rec).Data, &got)

	want := model.Ingressos{model.CategoryTables: {{ID: "1", Nome: "Mesa VIP", Preco: 150, Descricao: "4 pessoas"}}}
	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(got.Ingressos)
	if !bytes.Equal(wantJSON, gotJSON) {
		t.Fatalf("ingressos changed in storage: %s", gotJSON)
	}
	if got.Nome != "Show Teste" || got.FusoHorario != "GMT-4" || got.Usuario != "Sistema" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestEvents_Errors(t *testing.T) {
	t.Parallel()
	e := newEventServer(newTextStore())

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		errMsg string
	}{
		{"missing fields", http.MethodPost, "/api/events", `{"nome":"Só nome"}`, 400, "Campos obrigatórios faltando: artista, data, horaInicio"},
		{"bad json", http.MethodPost, "/api/events", `{"nome":`, 400, "Corpo da requisição inválido"},
		{"bad id", http.MethodGet, "/api/events/abc", "", 400, "ID inválido"},
		{"zero id", http.MethodDelete, "/api/events/0", "", 400, "ID inválido"},
		{"missing get", http.MethodGet, "/api/events/99", "", 404, "Evento não encontrado"},
		{"missing put", http.MethodPut, "/api/events/99", `{"status":"esgotado"}`, 404, "Evento não encontrado"},
		{"missing delete", http.MethodDelete, "/api/events/99", "", 404, "Evento não encontrado"},
		{"bad status filter", http.MethodGet, "/api/events/status/lotado", "", 400, ""},
		{"unknown route", http.MethodGet, "/api/nada", "", 404, "Rota não encontrada"},
		{"negative price on create", http.MethodPost, "/api/events", `{"nome":"Show","artista":"Banda","data":"24-09-2025","horaInicio":"20:00","ingressos":{"setores_mesa":[{"id":"1","nome":"Mesa","preco":-150}]}}`, 400, ""},
		{"negative price on update", http.MethodPut, "/api/events/1", `{"ingressos":{"setores_mesa":[{"id":"1","nome":"Mesa","preco":-9}]}}`, 400, ""},
	}
	for _, tc := range tests {
		rec := do(e, tc.method, tc.target, tc.body)
		if rec.Code != tc.status {
			t.Fatalf("%s: status %d, want %d (%s)", tc.name, rec.Code, tc.status, rec.Body.String())
		}
		env := parse(t, rec)
		if env.Success || env.Error == "" {
			t.Fatalf("%s: expected error envelope, got %+v", tc.name, env)
		}
		if tc.errMsg != "" && env.Error != tc.errMsg {
			t.Fatalf("%s: error %q, want %q", tc.name, env.Error, tc.errMsg)
		}
	}
}

func TestEvents_PartialUpdateAndDelete(t *testing.T) {
	t.Parallel()
	e := newEventServer(newTextStore())
	do(e, http.MethodPost, "/api/events", showTeste)

	rec := do(e, http.MethodPut, "/api/events/1", `{"status":"esgotado"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	env := parse(t, rec)
	var got model.Event
	_ = json.Unmarshal(env.Data, &got)
	if env.Message != "Evento atualizado com sucesso" || got.Status != "esgotado" || got.Nome != "Show Teste" || got.Data != "24-09-2025" {
		t.Fatalf("unexpected update result %+v", got)
	}
	if len(got.Ingressos[model.CategoryTables]) != 1 {
		t.Fatalf("ingressos lost on partial update")
	}

	if rec := do(e, http.MethodDelete, "/api/events/1", ""); rec.Code != http.StatusOK || parse(t, rec).Message != "Evento deletado com sucesso" {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodDelete, "/api/events/1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete must be 404, got %d", rec.Code)
	}
}

func TestEvents_StorageFailure(t *testing.T) {
	t.Parallel()
	e := newEventServer(failingStore{textStore: newTextStore()})

	rec := do(e, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	env := parse(t, rec)
	if env.Error != "Erro interno ao buscar eventos" || env.Message != "" {
		t.Fatalf("production responses must not leak details: %+v", env)
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		err    error
		status int
		db     string
	}{
		{nil, http.StatusOK, "connected"},
		{errors.New("dial tcp: refused"), http.StatusInternalServerError, "disconnected"},
	} {
		e := echo.New()
		e.Logger.SetOutput(io.Discard)
		h := &HealthHandler{DB: pinger{tc.err}}
		e.GET("/health", h.Health)
		rec := do(e, http.MethodGet, "/health", "")
		if rec.Code != tc.status {
			t.Fatalf("status %d, want %d", rec.Code, tc.status)
		}
		var rep map[string]string
		_ = json.Unmarshal(rec.Body.Bytes(), &rep)
		if rep["database"] != tc.db || rep["timestamp"] == "" || !strings.HasSuffix(rep["responseTime"], "ms") {
			t.Fatalf("unexpected report %v", rep)
		}
	}
}

type fakeExtractor struct {
	err      error
	gotMime  string
	gotBytes int
}

func (f *fakeExtractor) ExtractFromText(ctx context.Context, text string) (*model.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	nome := strings.Fields(text)[0]
	return &model.Extraction{Nome: &nome}, nil
}

func (f *fakeExtractor) ExtractFromImage(ctx context.Context, image []byte, mime string) (*model.Extraction, error) {
	f.gotMime, f.gotBytes = mime, len(image)
	if f.err != nil {
		return nil, f.err
	}
	nome := "Flyer"
	return &model.Extraction{Nome: &nome}, nil
}

func upload(t *testing.T, e *echo.Echo, field, mime string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="flyer"`)
	h.Set("Content-Type", mime)
	part, _ := mw.CreatePart(h)
	_, _ = part.Write(data)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/ai/extract-from-image", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newAIServer(x Extractor) *echo.Echo {
	e := echo.New()
	e.Logger.SetOutput(io.Discard)
	h := NewAIHandler(x)
	e.POST("/api/ai/extract-from-image", h.ExtractFromImage)
	e.POST("/api/ai/extract-from-text", h.ExtractFromText)
	return e
}

func TestAI_Image(t *testing.T) {
	t.Parallel()
	x := &fakeExtractor{}
	e := newAIServer(x)

	rec := upload(t, e, "image", "image/png", []byte("PNG"))
	if rec.Code != http.StatusOK || parse(t, rec).Message != "Dados extraídos com sucesso" {
		t.Fatalf("unexpected %d %s", rec.Code, rec.Body.String())
	}
	if x.gotMime != "image/png" || x.gotBytes != 3 {
		t.Fatalf("extractor got %q %d", x.gotMime, x.gotBytes)
	}

	if rec := upload(t, e, "file", "image/png", []byte("PNG")); rec.Code != 400 || parse(t, rec).Error != "Nenhuma imagem foi enviada" {
		t.Fatalf("missing field: %d %s", rec.Code, rec.Body.String())
	}
	if rec := upload(t, e, "image", "application/pdf", []byte("%PDF")); rec.Code != 400 || parse(t, rec).Error != "Apenas imagens são permitidas" {
		t.Fatalf("non-image: %d %s", rec.Code, rec.Body.String())
	}
	big := make([]byte, MaxImageBytes+1)
	if rec := upload(t, e, "image", "image/jpeg", big); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized image: %d", rec.Code)
	}
}

func TestAI_Text(t *testing.T) {
	t.Parallel()

	e := newAIServer(&fakeExtractor{})
	if rec := do(e, http.MethodPost, "/api/ai/extract-from-text", `{"text":"   "}`); rec.Code != 400 || parse(t, rec).Error != "Texto não foi fornecido" {
		t.Fatalf("blank text: %d %s", rec.Code, rec.Body.String())
	}
	rec := do(e, http.MethodPost, "/api/ai/extract-from-text", `{"text":"Samba sábado"}`)
	var ex model.Extraction
	_ = json.Unmarshal(parse(t, rec).Data, &ex)
	if rec.Code != 200 || ex.Nome == nil || *ex.Nome != "Samba" {
		t.Fatalf("unexpected %d %s", rec.Code, rec.Body.String())
	}

	e = newAIServer(&fakeExtractor{err: service.ErrAIKeyMissing})
	rec = do(e, http.MethodPost, "/api/ai/extract-from-text", `{"text":"x"}`)
	if rec.Code != 500 || parse(t, rec).Error != service.ErrAIKeyMissing.Error() {
		t.Fatalf("expected key error surfaced, got %d %s", rec.Code, rec.Body.String())
	}
}

type fakeAuth struct {
	loggedOut    string
	loggedOutAll uint64
}

func (f *fakeAuth) Authenticate(ctx context.Context, c service.Credentials) (*service.Session, error) {
	if c.Password != "certa" {
		return nil, service.ErrInvalidCredentials
	}
	return &service.Session{User: service.SessionUser{ID: 1, Email: c.Email, Role: model.RoleAdmin}, AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeAuth) Refresh(ctx context.Context, raw string) (*service.Session, error) {
	if raw != "r" {
		return nil, service.ErrInvalidCredentials
	}
	return &service.Session{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (f *fakeAuth) Logout(ctx context.Context, raw string) error {
	f.loggedOut = raw
	return nil
}

func (f *fakeAuth) LogoutAll(ctx context.Context, id uint64) error {
	f.loggedOutAll = id
	return nil
}

func TestAuthHandler(t *testing.T) {
	t.Parallel()
	fa := &fakeAuth{}
	e := echo.New()
	e.Logger.SetOutput(io.Discard)
	h := NewAuthHandler(fa, "secret", false)
	e.POST("/api/auth/login", h.Login)
	e.POST("/api/auth/refresh", h.Refresh)
	e.POST("/api/auth/logout", h.Logout)

	tests := []struct {
		target, body string
		status       int
	}{
		{"/api/auth/login", `{"email":"a@b.c","password":"certa"}`, 200},
		{"/api/auth/login", `{"email":"a@b.c","password":"errada"}`, 401},
		{"/api/auth/login", `{"email":"","password":""}`, 400},
		{"/api/auth/refresh", `{"refreshToken":"r"}`, 200},
		{"/api/auth/refresh", `{"refresh_token":"r"}`, 200},
		{"/api/auth/refresh", `{"refreshToken":"x"}`, 401},
		{"/api/auth/refresh", `{}`, 400},
		{"/api/auth/logout", `{"refreshToken":"r2"}`, 200},
		{"/api/auth/logout", `{}`, 400},
	}
	for _, tc := range tests {
		if rec := do(e, http.MethodPost, tc.target, tc.body); rec.Code != tc.status {
			t.Fatalf("%s %s: status %d, want %d (%s)", tc.target, tc.body, rec.Code, tc.status, rec.Body.String())
		}
	}
	if fa.loggedOut != "r2" {
		t.Fatalf("expected refresh token to be revoked, got %q", fa.loggedOut)
	}
}
