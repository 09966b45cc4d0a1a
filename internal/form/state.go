// Package form keeps the state of the event editor used by the admin CLI:
// field values, the ticket catalog being built, the custom categories in
// use and a busy flag guarding submissions.
package form

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/allure/event-admin/internal/model"
)

// DefaultAddress is the venue address prefilled in new events.
const DefaultAddress = "Rodovia Arquiteto Helder Cândia, nº 2044 - Ribeirão do Lipa - Cuiabá- MT / Buffet Leila Malouf LTDA"

// DefaultTimezone is the timezone prefilled in new events.
const DefaultTimezone = "GMT-4"

var (
	ErrEmptyCategory   = errors.New("form: category name is empty")
	ErrCategoryExists  = errors.New("form: category already exists")
	ErrUnknownCategory = errors.New("form: unknown category")
	ErrTicketIndex     = errors.New("form: ticket index out of range")
	ErrUnknownField    = errors.New("form: unknown field")
	ErrNegativePrice   = errors.New("form: ticket price cannot be negative")
)

// Fields are the scalar inputs of the editor.  Data uses the date input's
// yyyy-mm-dd representation.
type Fields struct {
	Nome                string
	Artista             string
	Data                string
	HoraInicio          string
	HoraTermino         string
	FusoHorario         string
	Status              string
	StatusPersonalizado string
	Endereco            string
	Descricao           string
}

// Category is a ticket category as the editor lists it.
type Category struct {
	Key    string
	Label  string
	Custom bool
}

var canonicalLabels = map[string]string{
	model.CategoryTables:    "Setores de Mesa",
	model.CategoryPremium:   "Camarotes Premium",
	model.CategoryCorporate: "Camarotes Empresariais",
}

// State is safe for concurrent use.
type State struct {
	mu        sync.Mutex
	fields    Fields
	ingressos model.Ingressos
	custom    []string
	editingID uint64
	busy      bool
	newID     func() string
}

// New returns an editor with empty defaults.
func New() *State {
	s := &State{newID: func() string { return uuid.NewString() }}
	s.reset()
	return s
}

func (s *State) reset() {
	s.fields = Fields{FusoHorario: DefaultTimezone, Endereco: DefaultAddress}
	s.ingressos = emptyCatalog()
	s.custom = nil
	s.editingID = 0
}

func emptyCatalog() model.Ingressos {
	in := make(model.Ingressos, len(model.CanonicalCategories))
	for _, k := range model.CanonicalCategories {
		in[k] = []model.Ticket{}
	}
	return in
}

// Reset discards everything and leaves edit mode.  The busy flag is kept.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Fields returns a copy of the scalar inputs.
func (s *State) Fields() Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields
}

// SetFields replaces all scalar inputs.
func (s *State) SetFields(f Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = f
}

// SetField sets one input by its JSON name, e.g. "horaInicio".
func (s *State) SetField(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.fieldRef(name)
	if p == nil {
		return ErrUnknownField
	}
	*p = value
	return nil
}

func (s *State) fieldRef(name string) *string {
	switch name {
	case "nome":
		return &s.fields.Nome
	case "artista":
		return &s.fields.Artista
	case "data":
		return &s.fields.Data
	case "horaInicio":
		return &s.fields.HoraInicio
	case "horaTermino":
		return &s.fields.HoraTermino
	case "fusoHorario":
		return &s.fields.FusoHorario
	case "status":
		return &s.fields.Status
	case "statusPersonalizado":
		return &s.fields.StatusPersonalizado
	case "endereco":
		return &s.fields.Endereco
	case "descricao":
		return &s.fields.Descricao
	}
	return nil
}

// UseDefaultAddress puts the venue address back into Endereco.
func (s *State) UseDefaultAddress() {
	s.mu.Lock()
	s.fields.Endereco = DefaultAddress
	s.mu.Unlock()
}

// ShowCustomStatus reports whether the free-text status input is visible.
func (s *State) ShowCustomStatus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Status(s.fields.Status) == model.StatusCustom
}

// EditingID is the id of the event loaded with LoadForEdit, or 0.
func (s *State) EditingID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editingID
}

// Ingressos returns a copy of the ticket catalog.
func (s *State) Ingressos() model.Ingressos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingressos.Clone()
}

// CustomCategories returns the active custom keys in creation order.
func (s *State) CustomCategories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.custom...)
}

// Categories lists the canonical categories followed by the custom ones.
func (s *State) Categories() []Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	title := cases.Title(language.BrazilianPortuguese)
	out := make([]Category, 0, len(model.CanonicalCategories)+len(s.custom))
	for _, k := range model.CanonicalCategories {
		out = append(out, Category{Key: k, Label: canonicalLabels[k]})
	}
	for _, k := range s.custom {
		out = append(out, Category{Key: k, Label: title.String(strings.ReplaceAll(k, "_", " ")), Custom: true})
	}
	return out
}

var whitespace = regexp.MustCompile(`\s+`)

// CategoryKey derives a custom category key from a label: lowercase with
// whitespace runs replaced by underscores.
func CategoryKey(label string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
}

// AddCustomCategory registers a custom category with an empty ticket list
// and returns its key.
func (s *State) AddCustomCategory(label string) (string, error) {
	key := CategoryKey(label)
	if key == "" {
		return "", ErrEmptyCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if model.IsCanonical(key) || s.hasCustom(key) {
		return key, ErrCategoryExists
	}
	s.custom = append(s.custom, key)
	if _, ok := s.ingressos[key]; !ok {
		s.ingressos[key] = []model.Ticket{}
	}
	return key, nil
}

// RemoveCustomCategory drops a custom category together with its tickets.
// Canonical categories cannot be removed.
func (s *State) RemoveCustomCategory(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCustom(key) {
		return false
	}
	kept := s.custom[:0]
	for _, k := range s.custom {
		if k != key {
			kept = append(kept, k)
		}
	}
	s.custom = kept
	delete(s.ingressos, key)
	return true
}

func (s *State) hasCustom(key string) bool {
	for _, k := range s.custom {
		if k == key {
			return true
		}
	}
	return false
}

func (s *State) known(key string) bool {
	return model.IsCanonical(key) || s.hasCustom(key)
}

// AddTicket appends a blank ticket with a fresh id to a category.
func (s *State) AddTicket(key string) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known(key) {
		return model.Ticket{}, ErrUnknownCategory
	}
	t := model.Ticket{ID: s.newID()}
	s.ingressos[key] = append(s.ingressos[key], t)
	return t, nil
}

// UpdateTicket replaces the ticket at index i, keeping its id.
func (s *State) UpdateTicket(key string, i int, t model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.ingressos[key]
	if !ok || !s.known(key) {
		return ErrUnknownCategory
	}
	if i < 0 || i >= len(ts) {
		return ErrTicketIndex
	}
	if t.Preco < 0 {
		return ErrNegativePrice
	}
	t.ID = ts[i].ID
	ts[i] = t
	return nil
}

// RemoveTicket deletes the ticket at index i.
func (s *State) RemoveTicket(key string, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.ingressos[key]
	if !ok || !s.known(key) {
		return ErrUnknownCategory
	}
	if i < 0 || i >= len(ts) {
		return ErrTicketIndex
	}
	s.ingressos[key] = append(ts[:i:i], ts[i+1:]...)
	return nil
}
