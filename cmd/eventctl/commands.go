package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/allure/event-admin/internal/apiclient"
	"github.com/allure/event-admin/internal/form"
	"github.com/allure/event-admin/internal/model"
	"github.com/allure/event-admin/internal/service"
	"github.com/allure/event-admin/internal/sheets"
)

// App carries the command environment so commands can run in tests.
type App struct {
	Out    io.Writer
	In     io.Reader
	Logger *log.Logger
}

func (a *App) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.Out, string(b))
	return err
}

// apiOpts are the flags shared by commands talking to the REST API.
type apiOpts struct {
	base     string
	token    string
	email    string
	password string
	timeout  time.Duration
}

func addAPIFlags(fs *flag.FlagSet) *apiOpts {
	o := &apiOpts{}
	fs.StringVar(&o.base, "api", envOr("EVENTCTL_API", apiclient.DefaultBaseURL), "API base URL")
	fs.StringVar(&o.token, "token", os.Getenv("EVENTCTL_TOKEN"), "access token")
	fs.StringVar(&o.email, "email", os.Getenv("EVENTCTL_EMAIL"), "log in with this e-mail when no token is given")
	fs.StringVar(&o.password, "password", os.Getenv("EVENTCTL_PASSWORD"), "password for -email")
	fs.DurationVar(&o.timeout, "timeout", 30*time.Second, "HTTP timeout")
	return o
}

// client returns an API client, logging in first when credentials are set.
func (o *apiOpts) client(ctx context.Context) (*apiclient.Client, error) {
	c := apiclient.New(o.base, o.timeout)
	c.Token = o.token
	if c.Token == "" && o.email != "" {
		if r := c.Login(ctx, o.email, o.password); !r.Success {
			return nil, fmt.Errorf("login: %s", r.Error)
		}
	}
	return c, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// readEvent decodes an event from path, or from stdin when path is "-".
func (a *App) readEvent(path string) (model.Event, error) {
	var r io.Reader = a.In
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return model.Event{}, err
		}
		defer f.Close()
		r = f
	}
	var ev model.Event
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return model.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// newFormFor loads ev into a form, filling the inputs a blank form would
// have defaulted.
func newFormFor(ev model.Event) *form.State {
	if ev.FusoHorario == "" {
		ev.FusoHorario = form.DefaultTimezone
	}
	if ev.Endereco == "" {
		ev.Endereco = form.DefaultAddress
	}
	if ev.Status == "" {
		ev.Status = string(model.StatusAvailable)
	}
	st := form.New()
	st.LoadForEdit(ev)
	return st
}

// patchFrom turns a full event into an update carrying every field.
func patchFrom(e model.Event) model.EventPatch {
	return model.EventPatch{
		Nome:        &e.Nome,
		Artista:     &e.Artista,
		Data:        &e.Data,
		HoraInicio:  &e.HoraInicio,
		HoraTermino: &e.HoraTermino,
		FusoHorario: &e.FusoHorario,
		Status:      &e.Status,
		Endereco:    &e.Endereco,
		Descricao:   &e.Descricao,
		Ingressos:   e.Ingressos,

		StatusPersonalizado: e.StatusPersonalizado,
	}
}

// apiSender saves through the REST API: an update when id is set, a create
// otherwise.
func (a *App) apiSender(c *apiclient.Client, id uint64) func(context.Context, model.Event) error {
	return func(ctx context.Context, e model.Event) error {
		var r *apiclient.Response
		if id > 0 {
			r = c.Update(ctx, id, patchFrom(e))
		} else {
			r = c.Create(ctx, e)
		}
		if err := a.printJSON(r.Envelope()); err != nil {
			return err
		}
		if !r.Success {
			return errors.New(r.Error)
		}
		return nil
	}
}

// sheetsSender posts to the spreadsheet webhook.  Only a remote rejection
// counts as a failure.
func (a *App) sheetsSender(client *sheets.Client) func(context.Context, model.Event) error {
	return func(ctx context.Context, e model.Event) error {
		res := client.Submit(ctx, e)
		if err := a.printJSON(res); err != nil {
			return err
		}
		if res.State == sheets.StateFailed {
			return errors.New(res.Message)
		}
		return nil
	}
}

type sheetsOpts struct {
	url      string
	timeout  time.Duration
	recovery string
}

func addSheetsFlags(fs *flag.FlagSet) *sheetsOpts {
	o := &sheetsOpts{}
	fs.StringVar(&o.url, "script-url", os.Getenv("GOOGLE_SCRIPT_URL"), "Apps Script webhook URL; empty simulates")
	fs.DurationVar(&o.timeout, "sheets-timeout", 15*time.Second, "deadline for one submission")
	fs.StringVar(&o.recovery, "recovery-log", envOr("SHEETS_RECOVERY_LOG", "logs/sheets-recovery.log"), "file receiving undelivered payloads")
	return o
}

func (o *sheetsOpts) client(logger *log.Logger) (*sheets.Client, func(), error) {
	recovery, closeFn, err := sheets.NewRecoveryLogger(o.recovery)
	if err != nil {
		return nil, nil, err
	}
	c := sheets.NewClient(sheets.Options{
		Endpoint:       o.url,
		Timeout:        o.timeout,
		SimulatedDelay: time.Second,
		Recovery:       recovery,
		Logger:         logger,
	})
	return c, func() { _ = closeFn() }, nil
}

// Submit sends an event file through the form.
func (a *App) Submit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	file := fs.String("file", "-", "event JSON file; - reads stdin")
	toSheets := fs.Bool("sheets", false, "send to the spreadsheet webhook instead of the API")
	api := addAPIFlags(fs)
	sh := addSheetsFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ev, err := a.readEvent(*file)
	if err != nil {
		return err
	}
	st := newFormFor(ev)

	if *toSheets {
		client, closeFn, err := sh.client(a.Logger)
		if err != nil {
			return err
		}
		defer closeFn()
		return st.Submit(ctx, a.sheetsSender(client))
	}
	c, err := api.client(ctx)
	if err != nil {
		return err
	}
	return st.Submit(ctx, a.apiSender(c, st.EditingID()))
}

// Extract runs AI extraction and prints the resulting form payload.
func (a *App) Extract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	text := fs.String("text", "", "announcement text")
	image := fs.String("image", "", "flyer image file")
	local := fs.Bool("local", false, "call the language model directly instead of the API")
	submit := fs.Bool("submit", false, "create the event through the API after extraction")
	api := addAPIFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*text == "") == (*image == "") {
		return errors.New("exactly one of -text or -image is required")
	}

	var (
		ex  *model.Extraction
		err error
	)
	if *local {
		ex, err = a.extractLocal(ctx, *text, *image)
	} else {
		ex, err = a.extractRemote(ctx, api, *text, *image)
	}
	if err != nil {
		return err
	}

	st := form.New()
	st.ApplyExtraction(*ex)
	if err := a.printJSON(st.Payload()); err != nil {
		return err
	}
	if verr := st.Validate(); verr != nil {
		a.Logger.Warnf("draft incomplete: %v", verr)
	}
	if !*submit {
		return nil
	}
	c, err := api.client(ctx)
	if err != nil {
		return err
	}
	return st.Submit(ctx, a.apiSender(c, 0))
}

func (a *App) extractLocal(ctx context.Context, text, image string) (*model.Extraction, error) {
	ai := service.NewAIService(service.AIConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Logger:  a.Logger,
	})
	if text != "" {
		return ai.ExtractFromText(ctx, text)
	}
	b, mimeType, err := readImage(image)
	if err != nil {
		return nil, err
	}
	return ai.ExtractFromImage(ctx, b, mimeType)
}

func (a *App) extractRemote(ctx context.Context, api *apiOpts, text, image string) (*model.Extraction, error) {
	c, err := api.client(ctx)
	if err != nil {
		return nil, err
	}
	var r *apiclient.Response
	if text != "" {
		r = c.ExtractFromText(ctx, text)
	} else {
		f, err := os.Open(image)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = c.ExtractFromImage(ctx, filepath.Base(image), imageType(image, nil), f)
	}
	if !r.Success {
		return nil, errors.New(r.Error)
	}
	var ex model.Extraction
	if err := r.Decode(&ex); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &ex, nil
}

func readImage(path string) ([]byte, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return b, imageType(path, b), nil
}

// imageType guesses the MIME type from the extension, then from content.
func imageType(path string, content []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	if len(content) > 0 {
		return http.DetectContentType(content)
	}
	return "application/octet-stream"
}

// multiFlag collects repeated -set values.
type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

// applySets applies "campo=valor" assignments to the form.
func applySets(st *form.State, sets []string) error {
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("-set %q: want campo=valor", kv)
		}
		k = strings.TrimSpace(k)
		if k == "data" {
			v = form.ToInputDate(v)
		}
		if err := st.SetField(k, v); err != nil {
			return fmt.Errorf("-set %s: %w", k, err)
		}
	}
	return nil
}

// Edit loads a stored event, applies changes and saves it.
func (a *App) Edit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	id := fs.Uint64("id", 0, "event id")
	var sets, addCats, dropCats multiFlag
	fs.Var(&sets, "set", "campo=valor; repeatable")
	fs.Var(&addCats, "add-category", "custom ticket category label; repeatable")
	fs.Var(&dropCats, "remove-category", "custom ticket category key; repeatable")
	api := addAPIFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("-id is required")
	}

	c, err := api.client(ctx)
	if err != nil {
		return err
	}
	r := c.Get(ctx, *id)
	if !r.Success {
		return errors.New(r.Error)
	}
	var ev model.Event
	if err := r.Decode(&ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	st := form.New()
	st.LoadForEdit(ev)
	for _, label := range addCats {
		if _, err := st.AddCustomCategory(label); err != nil {
			return fmt.Errorf("add category %q: %w", label, err)
		}
	}
	for _, key := range dropCats {
		if !st.RemoveCustomCategory(key) {
			a.Logger.Warnf("category %q is not a custom category", key)
		}
	}
	if err := applySets(st, sets); err != nil {
		return err
	}
	return st.Submit(ctx, a.apiSender(c, st.EditingID()))
}

// SheetsTest validates the webhook URL and optionally sends a test row.
func (a *App) SheetsTest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sheets-test", flag.ContinueOnError)
	send := fs.Bool("send", false, "submit a test row")
	sh := addSheetsFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	valid := sheets.ValidateScriptURL(sh.url)
	if err := a.printJSON(map[string]any{"url": sh.url, "valid": valid}); err != nil {
		return err
	}
	if !valid {
		return errors.New("GOOGLE_SCRIPT_URL is not an Apps Script deployment")
	}
	if !*send {
		return nil
	}
	client, closeFn, err := sh.client(a.Logger)
	if err != nil {
		return err
	}
	defer closeFn()
	return a.sheetsSender(client)(ctx, testEvent(time.Now()))
}

func testEvent(now time.Time) model.Event {
	return model.Event{
		Nome:        "Teste de Conexão",
		Artista:     "eventctl",
		Data:        now.Format("02-01-2006"),
		HoraInicio:  now.Format("15:04"),
		FusoHorario: form.DefaultTimezone,
		Status:      string(model.StatusAvailable),
		Endereco:    form.DefaultAddress,
		Descricao:   "Linha de teste enviada pelo eventctl",
		Ingressos:   model.Ingressos{},
	}
}

// Health prints the API health report.
func (a *App) Health(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	api := addAPIFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	r := apiclient.New(api.base, api.timeout).Health(ctx)
	if len(r.Data) > 0 {
		if err := a.printJSON(r.Data); err != nil {
			return err
		}
	}
	if !r.Success {
		return errors.New(r.Error)
	}
	return nil
}
