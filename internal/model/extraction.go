package model

import "encoding/json"

// Extraction is the best-effort structured data a language model pulled
// out of a flyer image or a free-text announcement.  Pointer fields are nil
// when the model did not populate them so callers can merge partially.
type Extraction struct {
	Nome        *string `json:"nome,omitempty"`
	Artista     *string `json:"artista,omitempty"`
	Local       *string `json:"local,omitempty"`
	Data        *string `json:"data,omitempty"`
	HoraInicio  *string `json:"horaInicio,omitempty"`
	HoraTermino *string `json:"horaTermino,omitempty"`
	Status      *string `json:"status,omitempty"`
	Endereco    *string `json:"endereco,omitempty"`
	Descricao   *string `json:"descricao,omitempty"`
	ImagemURL   *string `json:"imagemUrl,omitempty"`

	// RawIngressos keeps the model's ticket output untouched; its shape
	// varies between a list, a category map of lists and a category map of
	// single objects.
	RawIngressos json.RawMessage `json:"ingressosBrutos,omitempty"`

	// Ingressos and CustomCategories are filled by the normalizer.
	Ingressos        Ingressos `json:"ingressos,omitempty"`
	CustomCategories []string  `json:"categoriasPersonalizadas,omitempty"`
}
