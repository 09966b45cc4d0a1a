package form

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/allure/event-admin/internal/catalog"
	"github.com/allure/event-admin/internal/model"
)

// ErrBusy is returned when a submission is already in flight.
var ErrBusy = errors.New("form: submission already in progress")

// DefaultSubmitTimeout bounds a submission whose context has no deadline.
const DefaultSubmitTimeout = 30 * time.Second

const (
	persistedDate = "02-01-2006"
	inputDate     = "2006-01-02"
)

// ToInputDate converts dd-mm-yyyy into yyyy-mm-dd.  Anything else is
// returned unchanged.
func ToInputDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(persistedDate, s); err == nil {
		return t.Format(inputDate)
	}
	return s
}

// ToPersistedDate converts yyyy-mm-dd into dd-mm-yyyy.  Anything else is
// returned unchanged.
func ToPersistedDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(inputDate, s); err == nil {
		return t.Format(persistedDate)
	}
	return s
}

// ApplyExtraction merges AI-extracted data.  Only populated fields are
// copied; a status outside the closed set turns into a custom status.
// Extracted ticket categories replace the matching lists and new custom
// keys are registered.
func (s *State) ApplyExtraction(ex model.Extraction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&s.fields.Nome, ex.Nome)
	set(&s.fields.Artista, ex.Artista)
	set(&s.fields.HoraInicio, ex.HoraInicio)
	set(&s.fields.HoraTermino, ex.HoraTermino)
	set(&s.fields.Descricao, ex.Descricao)
	if ex.Data != nil {
		s.fields.Data = ToInputDate(*ex.Data)
	}
	switch {
	case ex.Endereco != nil:
		s.fields.Endereco = *ex.Endereco
	case ex.Local != nil:
		s.fields.Endereco = *ex.Local
	}
	if ex.Status != nil {
		st := model.Status(catalog.NormalizeLabel(*ex.Status))
		if st.Valid() && st != model.StatusCustom {
			s.fields.Status = string(st)
		} else {
			s.fields.Status = string(model.StatusCustom)
			s.fields.StatusPersonalizado = *ex.Status
		}
	}

	tickets, custom := ex.Ingressos, ex.CustomCategories
	if tickets == nil && len(ex.RawIngressos) > 0 {
		var raw any
		if err := json.Unmarshal(ex.RawIngressos, &raw); err == nil {
			res := catalog.NormalizeExtractedTickets(raw)
			tickets, custom = res.Ingressos, res.CustomCategories
		}
	}
	keys := make([]string, 0, len(tickets))
	for k := range tickets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ts := make([]model.Ticket, len(tickets[k]))
		copy(ts, tickets[k])
		for i := range ts {
			if ts[i].ID == "" {
				ts[i].ID = s.newID()
			}
		}
		s.ingressos[k] = ts
		if !model.IsCanonical(k) && !s.hasCustom(k) {
			s.custom = append(s.custom, k)
		}
	}
	for _, k := range custom {
		if model.IsCanonical(k) || s.hasCustom(k) {
			continue
		}
		s.custom = append(s.custom, k)
		if _, ok := s.ingressos[k]; !ok {
			s.ingressos[k] = []model.Ticket{}
		}
	}
}

// LoadForEdit replaces all state with a stored event and enters edit mode.
func (s *State) LoadForEdit(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fields = Fields{
		Nome:        e.Nome,
		Artista:     e.Artista,
		Data:        ToInputDate(e.Data),
		HoraInicio:  e.HoraInicio,
		HoraTermino: e.HoraTermino,
		FusoHorario: e.FusoHorario,
		Status:      e.Status,
		Endereco:    e.Endereco,
		Descricao:   e.Descricao,
	}
	if e.StatusPersonalizado != nil {
		s.fields.StatusPersonalizado = *e.StatusPersonalizado
	}
	s.ingressos = e.Ingressos.Clone()
	if s.ingressos == nil {
		s.ingressos = model.Ingressos{}
	}
	for _, k := range model.CanonicalCategories {
		if s.ingressos[k] == nil {
			s.ingressos[k] = []model.Ticket{}
		}
	}
	s.custom = e.Ingressos.CustomKeys()
	s.editingID = e.ID
}

// Payload is the event the editor would submit, with the date back in
// dd-mm-yyyy.
func (s *State) Payload() model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload()
}

func (s *State) payload() model.Event {
	f := s.fields
	e := model.Event{
		ID:          s.editingID,
		Nome:        strings.TrimSpace(f.Nome),
		Artista:     strings.TrimSpace(f.Artista),
		Data:        ToPersistedDate(f.Data),
		HoraInicio:  f.HoraInicio,
		HoraTermino: f.HoraTermino,
		FusoHorario: f.FusoHorario,
		Status:      f.Status,
		Endereco:    f.Endereco,
		Descricao:   f.Descricao,
		Ingressos:   s.ingressos.Clone(),
	}
	if model.Status(f.Status) == model.StatusCustom {
		if v := strings.TrimSpace(f.StatusPersonalizado); v != "" {
			e.StatusPersonalizado = &v
		}
	}
	return e
}

// FieldErrors maps input names to messages.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fe[k])
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the required inputs.
func (s *State) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validate()
}

func (s *State) validate() error {
	f := s.fields
	fe := FieldErrors{}
	required := []struct{ name, value, msg string }{
		{"nome", f.Nome, "Nome do evento é obrigatório"},
		{"artista", f.Artista, "Nome do artista/organizador é obrigatório"},
		{"data", f.Data, "Data do evento é obrigatória"},
		{"horaInicio", f.HoraInicio, "Horário de início é obrigatório"},
		{"fusoHorario", f.FusoHorario, "Fuso horário é obrigatório"},
		{"status", f.Status, "Status é obrigatório"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			fe[r.name] = r.msg
		}
	}
	if model.Status(f.Status) == model.StatusCustom && strings.TrimSpace(f.StatusPersonalizado) == "" {
		fe["statusPersonalizado"] = "Status personalizado é obrigatório"
	}
	for _, ts := range s.ingressos {
		for _, t := range ts {
			if t.Preco < 0 {
				fe["ingressos"] = "Preço do ingresso não pode ser negativo"
			}
		}
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}

// Busy reports whether a submission is in flight.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// BeginSubmit marks the editor busy.  It fails with ErrBusy when a
// submission is already running.
func (s *State) BeginSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

// EndSubmit clears the busy flag.
func (s *State) EndSubmit() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Submit validates the editor and hands the payload to fn while holding the
// busy flag.  fn gets a context bounded by DefaultSubmitTimeout unless ctx
// already carries a deadline.
func (s *State) Submit(ctx context.Context, fn func(ctx context.Context, e model.Event) error) error {
	if err := s.BeginSubmit(); err != nil {
		return err
	}
	defer s.EndSubmit()

	s.mu.Lock()
	err := s.validate()
	e := s.payload()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSubmitTimeout)
		defer cancel()
	}
	return fn(ctx, e)
}
