// Package sheets pushes events to the legacy spreadsheet webhook (a Google
// Apps Script deployment that appends one row per event).
package sheets

import (
	"net/url"
	"strings"

	"github.com/allure/event-admin/internal/model"
)

// DefaultAddress is written when an event has no address.
const DefaultAddress = "Não informado"

// Payload is the flat body the webhook expects.
type Payload struct {
	Nome        string          `json:"nome"`
	Artista     string          `json:"artista"`
	Data        string          `json:"data"`
	HoraInicio  string          `json:"horaInicio"`
	HoraTermino string          `json:"horaTermino"`
	FusoHorario string          `json:"fusoHorario"`
	Status      string          `json:"status"`
	Endereco    string          `json:"endereco"`
	Descricao   string          `json:"descricao"`
	Ingressos   model.Ingressos `json:"ingressos"`
}

// PrepareSheetData flattens an event for the webhook.  A custom status is
// sent as its free-text label.
func PrepareSheetData(e model.Event) Payload {
	endereco := e.Endereco
	if strings.TrimSpace(endereco) == "" {
		endereco = DefaultAddress
	}
	ing := e.Ingressos.Clone()
	if ing == nil {
		ing = model.Ingressos{}
	}
	return Payload{
		Nome:        e.Nome,
		Artista:     e.Artista,
		Data:        e.Data,
		HoraInicio:  e.HoraInicio,
		HoraTermino: e.HoraTermino,
		FusoHorario: e.FusoHorario,
		Status:      e.EffectiveStatus(),
		Endereco:    endereco,
		Descricao:   e.Descricao,
		Ingressos:   ing,
	}
}

// ValidateScriptURL reports whether raw points at an Apps Script deployment.
func ValidateScriptURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Hostname() == "script.google.com"
}
