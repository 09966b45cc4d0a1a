package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/allure/event-admin/internal/model"
)

// State is where a submission ended up.
type State int

const (
	// StateSimulated: no endpoint configured, nothing was sent.
	StateSimulated State = iota + 1
	// StateSentOpaque: the opaque send went out but its outcome is unknown.
	StateSentOpaque
	// StateConfirmed: the webhook answered and accepted the row.
	StateConfirmed
	// StateFailed: the webhook answered with an error.
	StateFailed
	// StateRecoveredLocally: the webhook was unreachable and the payload
	// went to the recovery log.
	StateRecoveredLocally
)

func (s State) String() string {
	switch s {
	case StateSimulated:
		return "simulated"
	case StateSentOpaque:
		return "sent_opaque"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateRecoveredLocally:
		return "recovered_locally"
	}
	return "unknown"
}

// MarshalText lets State appear by name in JSON output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Failure kinds carried by Result.Kind.
const (
	KindHTTPStatus     = "http_status"
	KindRemoteRejected = "remote_rejected"
	KindNetwork        = "network"
)

// Result is the outcome of Submit.  Success keeps the legacy optimistic
// meaning; State and Kind tell a confirmed row apart from a guess.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	State   State  `json:"state"`
	Kind    string `json:"kind,omitempty"`
}

// Confirmed reports whether the webhook itself acknowledged the row.
func (r Result) Confirmed() bool { return r.State == StateConfirmed }

const (
	msgSimulated  = "Evento cadastrado com sucesso! (Modo simulação)"
	msgConfirmed  = "Evento enviado para Google Sheets com sucesso!"
	msgAccepted   = "Evento enviado para Google Sheets!"
	msgSentOpaque = "Evento enviado para Google Sheets! (Verifique a planilha)"
	msgRecovered  = "Dados salvos localmente (erro de conexão). Verifique o log de recuperação para os dados completos."
	msgUnknown    = "Erro desconhecido do Google Apps Script"
	msgErrPrefix  = "Erro ao conectar com Google Sheets: "
)

// remoteReply is the JSON the Apps Script answers with.
type remoteReply struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	RowID   any             `json:"rowId"`
}

// Client submits events to the webhook.  The zero value is not usable; use
// NewClient.
type Client struct {
	// Endpoint is the script URL.  Empty switches to simulation.
	Endpoint  string
	Transport Transport
	// Timeout bounds a whole submission, retries included.
	Timeout time.Duration
	// SimulatedDelay is waited out before a simulated result.
	SimulatedDelay time.Duration
	// Recovery receives payloads that could not be delivered.
	Recovery *log.Logger
	Logger   *log.Logger
}

// Options configures NewClient.
type Options struct {
	Endpoint       string
	Timeout        time.Duration
	SimulatedDelay time.Duration
	Recovery       *log.Logger
	Logger         *log.Logger
}

// DefaultSimulatedDelay is the pause before a simulated submission resolves.
const DefaultSimulatedDelay = 2 * time.Second

// NewClient returns a client posting over HTTP. A zero SimulatedDelay takes
// DefaultSimulatedDelay; a negative one disables the pause.
func NewClient(o Options) *Client {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	switch {
	case o.SimulatedDelay == 0:
		o.SimulatedDelay = DefaultSimulatedDelay
	case o.SimulatedDelay < 0:
		o.SimulatedDelay = 0
	}
	if o.Logger == nil {
		o.Logger = log.New("sheets")
	}
	if o.Recovery == nil {
		o.Recovery = o.Logger
	}
	return &Client{
		Endpoint:       o.Endpoint,
		Transport:      NewHTTPTransport(o.Endpoint, o.Timeout),
		Timeout:        o.Timeout,
		SimulatedDelay: o.SimulatedDelay,
		Recovery:       o.Recovery,
		Logger:         o.Logger,
	}
}

// NewRecoveryLogger opens (or creates) the recovery log file and returns a
// JSON logger writing to it, plus a closer for the file.
func NewRecoveryLogger(path string) (*log.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("mkdir recovery log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open recovery log: %w", err)
	}
	l := log.New("sheets-recovery")
	l.SetOutput(f)
	l.SetLevel(log.INFO)
	l.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}"}`)
	return l, f.Close, nil
}

// Submit delivers e to the webhook.  It never returns an error: every path
// ends in one of the terminal states.
func (c *Client) Submit(ctx context.Context, e model.Event) Result {
	payload := PrepareSheetData(e)

	if strings.TrimSpace(c.Endpoint) == "" {
		return c.simulate(ctx, payload)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return c.fail(payload, KindRemoteRejected, err.Error())
	}

	resp, err := c.Transport.Send(ctx, ModeOpaque, body)
	if err != nil {
		c.Logger.Warnf("sheets: opaque send failed: %v; retrying readable", err)
		return c.afterOpaqueError(ctx, payload, body)
	}
	if resp.Opaque {
		return c.afterOpaqueSent(ctx, payload, body)
	}
	return c.fromReadable(payload, resp)
}

func (c *Client) simulate(ctx context.Context, payload Payload) Result {
	c.Logger.Warnf("sheets: GOOGLE_SCRIPT_URL not configured, simulating submission of %q", payload.Nome)
	if c.SimulatedDelay > 0 {
		t := time.NewTimer(c.SimulatedDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	return Result{Success: true, Message: msgSimulated, Data: payload, State: StateSimulated}
}

// afterOpaqueError: the opaque send did not leave the process.  One readable
// retry is made; if that fails too the payload is kept for manual recovery.
func (c *Client) afterOpaqueError(ctx context.Context, payload Payload, body []byte) Result {
	resp, err := c.Transport.Send(ctx, ModeReadable, body)
	if err != nil {
		return c.recoverLocally(payload, err)
	}
	return c.fromReadable(payload, resp)
}

// afterOpaqueSent: the opaque send went out.  A readable attempt is used to
// learn the real outcome; when it tells us nothing the opaque send is
// trusted.
func (c *Client) afterOpaqueSent(ctx context.Context, payload Payload, body []byte) Result {
	resp, err := c.Transport.Send(ctx, ModeReadable, body)
	if err != nil {
		c.Logger.Infof("sheets: readable confirm failed: %v", err)
		return c.sentOpaque(payload)
	}
	if resp.Opaque || !resp.OK() {
		return c.sentOpaque(payload)
	}

	var reply remoteReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return c.sentOpaque(payload)
	}
	if reply.Success != nil && !*reply.Success {
		msg := reply.Message
		if msg == "" {
			msg = msgUnknown
		}
		return c.fail(payload, KindRemoteRejected, msg)
	}
	res := Result{Success: true, Message: reply.Message, Data: replyData(reply, payload), State: StateConfirmed}
	if res.Message == "" {
		res.Message = msgConfirmed
	}
	return res
}

// fromReadable handles an answer whose status and body are visible.
func (c *Client) fromReadable(payload Payload, resp *Response) Result {
	if resp.Opaque {
		return c.sentOpaque(payload)
	}
	if !resp.OK() {
		status := resp.Status
		if status == "" {
			status = strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)
		}
		return c.fail(payload, KindHTTPStatus, "Erro HTTP: "+status)
	}

	var reply remoteReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return Result{Success: true, Message: msgAccepted, Data: payload, State: StateConfirmed}
	}
	if reply.Success == nil || !*reply.Success {
		msg := reply.Message
		if msg == "" {
			msg = msgUnknown
		}
		return c.fail(payload, KindRemoteRejected, msg)
	}
	msg := reply.Message
	if msg == "" {
		msg = msgConfirmed
	}
	return Result{Success: true, Message: msg, Data: replyData(reply, payload), State: StateConfirmed}
}

func (c *Client) sentOpaque(payload Payload) Result {
	return Result{Success: true, Message: msgSentOpaque, Data: payload, State: StateSentOpaque}
}

func (c *Client) fail(payload Payload, kind, msg string) Result {
	c.Logger.Errorf("sheets: submission of %q failed (%s): %s", payload.Nome, kind, msg)
	return Result{Success: false, Message: msgErrPrefix + msg, State: StateFailed, Kind: kind}
}

func (c *Client) recoverLocally(payload Payload, cause error) Result {
	c.Logger.Errorf("sheets: webhook unreachable: %v", cause)
	c.Recovery.Warnj(log.JSON{
		"event":   "sheets_recovery",
		"reason":  cause.Error(),
		"payload": payload,
	})
	return Result{Success: true, Message: msgRecovered, Data: payload, State: StateRecoveredLocally, Kind: KindNetwork}
}

// replyData returns the webhook's data (or row id) and falls back to the
// payload that was sent.
func replyData(r remoteReply, payload Payload) any {
	if len(r.Data) > 0 && string(r.Data) != "null" {
		return r.Data
	}
	if r.RowID != nil {
		return map[string]any{"rowId": r.RowID}
	}
	return payload
}
