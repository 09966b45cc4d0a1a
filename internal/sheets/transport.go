package sheets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Mode selects how much of the webhook's answer the caller gets to see.
type Mode int

const (
	// ModeOpaque sends the body and discards the answer.  Apps Script
	// redirects every POST and frequently answers with HTML, so the first
	// attempt only proves the request left the process.
	ModeOpaque Mode = iota
	// ModeReadable returns status and body to the caller.
	ModeReadable
)

func (m Mode) String() string {
	if m == ModeReadable {
		return "readable"
	}
	return "opaque"
}

// Response is what a Transport hands back.  When Opaque is set the other
// fields carry no information.
type Response struct {
	Opaque     bool
	StatusCode int
	Status     string
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs one POST of body to the webhook.  An error means the
// request could not be completed at the network level; HTTP error statuses
// are returned as a Response.
type Transport interface {
	Send(ctx context.Context, mode Mode, body []byte) (*Response, error)
}

// HTTPTransport posts to an Apps Script URL over net/http.
type HTTPTransport struct {
	URL    string
	Client *http.Client
	// Readable makes opaque sends return the real response, which sends the
	// client down the direct status/body path on the first attempt.
	Readable bool
}

// NewHTTPTransport builds a transport with a per-attempt timeout.
func NewHTTPTransport(url string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{URL: url, Client: &http.Client{Timeout: timeout}}
}

// maxBody caps how much of an answer is read back.
const maxBody = 1 << 20

func (t *HTTPTransport) Send(ctx context.Context, mode Mode, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	// text/plain keeps the opaque attempt a simple request for Apps Script,
	// which does not answer CORS preflights.
	if mode == ModeOpaque {
		req.Header.Set("Content-Type", "text/plain;charset=utf-8")
	} else {
		req.Header.Set("Content-Type", "application/json")
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s post: %w", mode, err)
	}
	defer resp.Body.Close()

	if mode == ModeOpaque && !t.Readable {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return &Response{Opaque: true}, nil
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s read: %w", mode, err)
	}
	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: b}, nil
}
