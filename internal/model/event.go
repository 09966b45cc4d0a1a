package model

import (
	"sort"
	"time"
)

// Canonical ticket category keys.  Any other key in an Ingressos map is a
// custom category created by staff.
const (
	CategoryTables    = "setores_mesa"
	CategoryPremium   = "camarotes_premium"
	CategoryCorporate = "camarotes_empresariais"
)

// CanonicalCategories lists the reserved category keys in display order.
var CanonicalCategories = []string{CategoryTables, CategoryPremium, CategoryCorporate}

// IsCanonical reports whether key is one of the three reserved categories.
func IsCanonical(key string) bool {
	for _, k := range CanonicalCategories {
		if k == key {
			return true
		}
	}
	return false
}

// Ticket is a single priced entry inside a category.  Its ID is only
// unique within the owning category list.
type Ticket struct {
	ID        string  `json:"id"`
	Nome      string  `json:"nome"`
	Preco     float64 `json:"preco"`
	Descricao string  `json:"descricao,omitempty"`
}

// Ingressos is the ticket catalog of an event: category key -> tickets.
type Ingressos map[string][]Ticket

// Count returns the total number of tickets across all categories.
func (in Ingressos) Count() int {
	n := 0
	for _, ts := range in {
		n += len(ts)
	}
	return n
}

// CustomKeys returns the non-canonical keys sorted alphabetically.
func (in Ingressos) CustomKeys() []string {
	out := make([]string, 0)
	for k := range in {
		if !IsCanonical(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy so hand-offs between components never share
// slices.
func (in Ingressos) Clone() Ingressos {
	if in == nil {
		return nil
	}
	out := make(Ingressos, len(in))
	for k, ts := range in {
		cp := make([]Ticket, len(ts))
		copy(cp, ts)
		out[k] = cp
	}
	return out
}

// Status is the closed set of event availability states.
type Status string

const (
	StatusAvailable Status = "disponivel"
	StatusSoldOut   Status = "esgotado"
	StatusCancelled Status = "cancelado"
	StatusCustom    Status = "personalizado"
)

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusSoldOut, StatusCancelled, StatusCustom:
		return true
	}
	return false
}

// Event is the wire representation shared by the REST API, the CLI and the
// spreadsheet sync.  Data is a dd-mm-yyyy string.
type Event struct {
	ID                  uint64     `json:"id,omitempty"`
	Nome                string     `json:"nome"`
	Artista             string     `json:"artista"`
	Data                string     `json:"data"`
	HoraInicio          string     `json:"horaInicio"`
	HoraTermino         string     `json:"horaTermino"`
	FusoHorario         string     `json:"fusoHorario"`
	Status              string     `json:"status"`
	StatusPersonalizado *string    `json:"statusPersonalizado,omitempty"`
	Endereco            string     `json:"endereco"`
	Descricao           string     `json:"descricao"`
	Ingressos           Ingressos  `json:"ingressos"`
	DataCadastro        *time.Time `json:"dataCadastro,omitempty"`
	DataAtualizacao     *time.Time `json:"dataAtualizacao,omitempty"`
	Usuario             string     `json:"usuario,omitempty"`
	Ativo               *bool      `json:"ativo,omitempty"`
}

// EffectiveStatus is the status shown downstream: the free-text override
// when the event uses a custom status.
func (e Event) EffectiveStatus() string {
	if Status(e.Status) == StatusCustom && e.StatusPersonalizado != nil {
		return *e.StatusPersonalizado
	}
	return e.Status
}

// EventPatch carries a partial update.  Nil fields are left untouched.
type EventPatch struct {
	Nome                *string   `json:"nome,omitempty"`
	Artista             *string   `json:"artista,omitempty"`
	Data                *string   `json:"data,omitempty"`
	HoraInicio          *string   `json:"horaInicio,omitempty"`
	HoraTermino         *string   `json:"horaTermino,omitempty"`
	FusoHorario         *string   `json:"fusoHorario,omitempty"`
	Status              *string   `json:"status,omitempty"`
	StatusPersonalizado *string   `json:"statusPersonalizado,omitempty"`
	Endereco            *string   `json:"endereco,omitempty"`
	Descricao           *string   `json:"descricao,omitempty"`
	Ingressos           Ingressos `json:"ingressos,omitempty"`
}

// Empty reports whether the patch supplies no field at all.
func (p EventPatch) Empty() bool {
	return p.Nome == nil && p.Artista == nil && p.Data == nil && p.HoraInicio == nil &&
		p.HoraTermino == nil && p.FusoHorario == nil && p.Status == nil &&
		p.StatusPersonalizado == nil && p.Endereco == nil && p.Descricao == nil &&
		p.Ingressos == nil
}
