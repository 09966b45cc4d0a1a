// Package service holds the business rules between the HTTP handlers and
// the repositories: event validation and defaults, AI extraction and staff
// authentication.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/allure/event-admin/internal/model"
	"github.com/allure/event-admin/internal/queue"
)

// Defaults applied to new events.
const (
	DefaultTimezone = "GMT-4"
	DefaultUser     = "Sistema"
)

// ValidationError reports input the service refuses to store.  Fields names
// the offending JSON fields.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// EventStore is the persistence the service needs.  *repository.EventRepo
// satisfies it.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	List(ctx context.Context) ([]model.Event, error)
	Get(ctx context.Context, id uint64) (*model.Event, error)
	Update(ctx context.Context, id uint64, p model.EventPatch) (*model.Event, error)
	Delete(ctx context.Context, id uint64, hard bool) error
	ListByDate(ctx context.Context, date string) ([]model.Event, error)
	ListByStatus(ctx context.Context, status string) ([]model.Event, error)
	Ping(ctx context.Context) error
}

// EventService implements the event CRUD rules.
type EventService struct {
	store      EventStore
	pub        Publisher
	hardDelete bool
	logger     *log.Logger
	now        func() time.Time
}

// NewEventService wires the service.  hardDelete selects DELETE over
// flipping the active flag.
func NewEventService(store EventStore, pub Publisher, hardDelete bool, logger *log.Logger) *EventService {
	if pub == nil {
		pub = NopPublisher{}
	}
	if logger == nil {
		logger = log.New("events")
	}
	return &EventService{store: store, pub: pub, hardDelete: hardDelete, logger: logger, now: time.Now}
}

// Create validates ev, applies defaults and stores it.  actor is the
// authenticated user's e-mail, or empty for anonymous writes.
func (s *EventService) Create(ctx context.Context, ev model.Event, actor string) (*model.Event, error) {
	ev.Nome = strings.TrimSpace(ev.Nome)
	ev.Artista = strings.TrimSpace(ev.Artista)
	ev.Data = strings.TrimSpace(ev.Data)
	ev.HoraInicio = strings.TrimSpace(ev.HoraInicio)

	var missing []string
	for _, f := range []struct{ name, v string }{
		{"nome", ev.Nome}, {"artista", ev.Artista}, {"data", ev.Data}, {"horaInicio", ev.HoraInicio},
	} {
		if f.v == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{
			Fields:  missing,
			Message: "Campos obrigatórios faltando: " + strings.Join(missing, ", "),
		}
	}
	if err := validateFormats(&ev.Data, &ev.HoraInicio, &ev.HoraTermino); err != nil {
		return nil, err
	}
	if err := validateIngressos(ev.Ingressos); err != nil {
		return nil, err
	}

	if ev.Status == "" {
		ev.Status = string(model.StatusAvailable)
	}
	if err := validateStatus(ev.Status); err != nil {
		return nil, err
	}
	if ev.StatusPersonalizado != nil && strings.TrimSpace(*ev.StatusPersonalizado) == "" {
		ev.StatusPersonalizado = nil
	}
	if strings.TrimSpace(ev.FusoHorario) == "" {
		ev.FusoHorario = DefaultTimezone
	}
	switch {
	case actor != "":
		ev.Usuario = actor
	case strings.TrimSpace(ev.Usuario) == "":
		ev.Usuario = DefaultUser
	}
	if ev.Ingressos == nil {
		ev.Ingressos = model.Ingressos{}
	}
	ev.ID = 0

	if err := s.store.Create(ctx, &ev); err != nil {
		return nil, err
	}
	s.publish(ctx, queue.ActionCreated, ev, ev.Usuario)
	return &ev, nil
}

// List returns the active events, newest first.
func (s *EventService) List(ctx context.Context) ([]model.Event, error) {
	return s.store.List(ctx)
}

// Get returns one active event or repository.ErrEventNotFound.
func (s *EventService) Get(ctx context.Context, id uint64) (*model.Event, error) {
	return s.store.Get(ctx, id)
}

// ListByDate accepts dd-mm-yyyy and, for convenience, yyyy-mm-dd.
func (s *EventService) ListByDate(ctx context.Context, date string) ([]model.Event, error) {
	date = strings.TrimSpace(date)
	if err := validateFormats(&date, nil, nil); err != nil {
		return nil, err
	}
	return s.store.ListByDate(ctx, date)
}

// ListByStatus returns active events with the given status.
func (s *EventService) ListByStatus(ctx context.Context, status string) ([]model.Event, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if err := validateStatus(status); err != nil {
		return nil, err
	}
	return s.store.ListByStatus(ctx, status)
}

// Update applies a partial update.  Supplied required fields may not be
// blanked out; an empty patch returns the record untouched.
func (s *EventService) Update(ctx context.Context, id uint64, p model.EventPatch, actor string) (*model.Event, error) {
	var blank []string
	for _, f := range []struct {
		name string
		v    *string
	}{{"nome", p.Nome}, {"artista", p.Artista}, {"data", p.Data}, {"horaInicio", p.HoraInicio}} {
		if f.v != nil && strings.TrimSpace(*f.v) == "" {
			blank = append(blank, f.name)
		}
	}
	if len(blank) > 0 {
		return nil, &ValidationError{
			Fields:  blank,
			Message: "Campos obrigatórios não podem ficar vazios: " + strings.Join(blank, ", "),
		}
	}
	if err := validateFormats(p.Data, p.HoraInicio, p.HoraTermino); err != nil {
		return nil, err
	}
	if err := validateIngressos(p.Ingressos); err != nil {
		return nil, err
	}
	if p.Status != nil {
		if err := validateStatus(*p.Status); err != nil {
			return nil, err
		}
	}

	ev, err := s.store.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	if !p.Empty() {
		s.publish(ctx, queue.ActionUpdated, *ev, actorOr(actor, ev.Usuario))
	}
	return ev, nil
}

// Delete removes an event according to the configured delete mode.
func (s *EventService) Delete(ctx context.Context, id uint64, actor string) error {
	if err := s.store.Delete(ctx, id, s.hardDelete); err != nil {
		return err
	}
	s.publish(ctx, queue.ActionDeleted, model.Event{ID: id}, actorOr(actor, DefaultUser))
	return nil
}

// Ping checks storage reachability.
func (s *EventService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// publish is best effort: a broker outage must not fail a write that has
// already been committed.
func (s *EventService) publish(ctx context.Context, action string, ev model.Event, actor string) {
	msg := queue.EventSaved{
		Action:  action,
		EventID: ev.ID,
		Event:   ev,
		Usuario: actor,
		SavedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.pub.PublishEventSaved(ctx, msg); err != nil {
		s.logger.Warnf("events: publish %s for event %d failed: %v", action, ev.ID, err)
	}
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}

func validateStatus(status string) error {
	if !model.Status(status).Valid() {
		return &ValidationError{
			Fields:  []string{"status"},
			Message: "Status inválido: " + status + " (use disponivel, esgotado, cancelado ou personalizado)",
		}
	}
	return nil
}

// validateIngressos rejects negative ticket prices.
func validateIngressos(in model.Ingressos) error {
	for cat, ts := range in {
		for _, t := range ts {
			if t.Preco < 0 {
				return &ValidationError{
					Fields:  []string{"ingressos"},
					Message: fmt.Sprintf("Preço inválido em %s: %q não pode ser negativo", cat, t.Nome),
				}
			}
		}
	}
	return nil
}

// validateFormats checks dd-mm-yyyy dates and HH:mm times.  A yyyy-mm-dd
// date is rewritten in place to dd-mm-yyyy.  Nil or empty optional values
// are skipped.
func validateFormats(date, start, end *string) error {
	if date != nil && *date != "" {
		if t, err := time.Parse("2006-01-02", *date); err == nil {
			*date = t.Format("02-01-2006")
		} else if _, err := time.Parse("02-01-2006", *date); err != nil {
			return &ValidationError{Fields: []string{"data"}, Message: "Data inválida: use o formato dd-mm-aaaa"}
		}
	}
	for _, f := range []struct {
		name string
		v    *string
	}{{"horaInicio", start}, {"horaTermino", end}} {
		if f.v == nil || *f.v == "" {
			continue
		}
		if _, err := time.Parse("15:04", *f.v); err != nil {
			return &ValidationError{Fields: []string{f.name}, Message: "Horário inválido em " + f.name + ": use HH:mm"}
		}
	}
	return nil
}
