// Package apiclient talks to the event REST API.  Every call returns the
// server's response envelope; transport and decoding failures are folded
// into an envelope with Success false so callers branch on one shape.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/allure/event-admin/internal/model"
)

// DefaultBaseURL is where a locally started server listens.
const DefaultBaseURL = "http://localhost:3001"

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{Timeout: timeout}}
}

// Response is an envelope whose Data is still undecoded.
type Response struct {
	Status  int
	Success bool
	Message string
	Error   string
	Data    json.RawMessage
}

// Envelope converts the response into the shared envelope type.
func (r *Response) Envelope() model.Envelope {
	env := model.Envelope{Success: r.Success, Message: r.Message, Error: r.Error}
	if len(r.Data) > 0 {
		env.Data = r.Data
	}
	return env
}

// Decode unmarshals Data into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("apiclient: empty data")
	}
	return json.Unmarshal(r.Data, v)
}

func failure(status int, msg string) *Response {
	return &Response{Status: status, Success: false, Error: msg}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) *Response {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return failure(0, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return failure(0, "Erro de conexão: "+err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return failure(resp.StatusCode, err.Error())
	}
	var env struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return failure(resp.StatusCode, fmt.Sprintf("HTTP error! status: %d", resp.StatusCode))
		}
		return failure(resp.StatusCode, "Resposta inválida do servidor")
	}
	out := &Response{Status: resp.StatusCode, Success: env.Success, Message: env.Message, Error: env.Error, Data: env.Data}
	if resp.StatusCode >= 300 {
		out.Success = false
		if out.Error == "" {
			out.Error = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
		}
	}
	return out
}

func (c *Client) doJSON(ctx context.Context, method, path string, v any) *Response {
	if v == nil {
		return c.do(ctx, method, path, nil, "")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return failure(0, err.Error())
	}
	return c.do(ctx, method, path, bytes.NewReader(b), "application/json")
}

func eventPath(id uint64) string {
	return "/api/events/" + strconv.FormatUint(id, 10)
}

func (c *Client) Create(ctx context.Context, e model.Event) *Response {
	return c.doJSON(ctx, http.MethodPost, "/api/events", e)
}

func (c *Client) List(ctx context.Context) *Response {
	return c.doJSON(ctx, http.MethodGet, "/api/events", nil)
}

func (c *Client) Get(ctx context.Context, id uint64) *Response {
	return c.doJSON(ctx, http.MethodGet, eventPath(id), nil)
}

// Update sends a partial update; only non-nil patch fields are transmitted.
func (c *Client) Update(ctx context.Context, id uint64, p model.EventPatch) *Response {
	return c.doJSON(ctx, http.MethodPut, eventPath(id), p)
}

func (c *Client) Delete(ctx context.Context, id uint64) *Response {
	return c.doJSON(ctx, http.MethodDelete, eventPath(id), nil)
}

// ListByDate accepts dd-mm-yyyy or yyyy-mm-dd.
func (c *Client) ListByDate(ctx context.Context, date string) *Response {
	return c.doJSON(ctx, http.MethodGet, "/api/events/date/"+url.PathEscape(date), nil)
}

func (c *Client) ListByStatus(ctx context.Context, status string) *Response {
	return c.doJSON(ctx, http.MethodGet, "/api/events/status/"+url.PathEscape(status), nil)
}

// Health calls GET /health, which answers without an envelope.  The report
// is returned as Data.
func (c *Client) Health(ctx context.Context) *Response {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return failure(0, err.Error())
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return failure(0, "Erro de conexão: "+err.Error())
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	out := &Response{Status: resp.StatusCode, Success: resp.StatusCode == http.StatusOK}
	if json.Valid(raw) {
		out.Data = raw
	}
	if !out.Success {
		out.Error = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
	}
	return out
}

// Login exchanges credentials for a session and keeps its access token for
// subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) *Response {
	r := c.doJSON(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	if r.Success {
		var s struct {
			AccessToken string `json:"accessToken"`
		}
		if err := r.Decode(&s); err == nil {
			c.Token = s.AccessToken
		}
	}
	return r
}

func (c *Client) ExtractFromText(ctx context.Context, text string) *Response {
	return c.doJSON(ctx, http.MethodPost, "/api/ai/extract-from-text", map[string]string{"text": text})
}

// ExtractFromImage uploads an image as the multipart field "image".
func (c *Client) ExtractFromImage(ctx context.Context, filename, contentType string, image io.Reader) *Response {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return failure(0, err.Error())
	}
	if _, err := io.Copy(part, image); err != nil {
		return failure(0, err.Error())
	}
	if err := mw.Close(); err != nil {
		return failure(0, err.Error())
	}
	return c.do(ctx, http.MethodPost, "/api/ai/extract-from-image", &buf, mw.FormDataContentType())
}
