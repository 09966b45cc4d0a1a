package form

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/allure/event-admin/internal/model"
)

func strp(s string) *string { return &s }

func newTestState() *State {
	s := New()
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
	return s
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	s := New()

	f := s.Fields()
	if f.FusoHorario != "GMT-4" || f.Endereco != DefaultAddress || f.Nome != "" {
		t.Fatalf("unexpected defaults %+v", f)
	}
	in := s.Ingressos()
	if len(in) != 3 {
		t.Fatalf("expected the three canonical lists, got %v", in)
	}
	for _, k := range model.CanonicalCategories {
		if ts, ok := in[k]; !ok || ts == nil || len(ts) != 0 {
			t.Fatalf("expected empty list for %s", k)
		}
	}
	if s.ShowCustomStatus() || s.Busy() || len(s.CustomCategories()) != 0 {
		t.Fatalf("unexpected initial flags")
	}
}

func TestShowCustomStatus(t *testing.T) {
	t.Parallel()
	s := New()
	_ = s.SetField("status", "personalizado")
	if !s.ShowCustomStatus() {
		t.Fatalf("expected custom status input to be visible")
	}
	_ = s.SetField("status", "esgotado")
	if s.ShowCustomStatus() {
		t.Fatalf("expected custom status input to be hidden")
	}
	if err := s.SetField("preco", "1"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestCustomCategories(t *testing.T) {
	t.Parallel()
	s := newTestState()

	key, err := s.AddCustomCategory("  Área   Kids ")
	if err != nil || key != "área_kids" {
		t.Fatalf("AddCustomCategory = %q, %v", key, err)
	}
	if _, err := s.AddCustomCategory("área kids"); !errors.Is(err, ErrCategoryExists) {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}
	if _, err := s.AddCustomCategory("setores mesa"); !errors.Is(err, ErrCategoryExists) {
		t.Fatalf("expected canonical key to be rejected, got %v", err)
	}
	if _, err := s.AddCustomCategory("   "); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}

	cats := s.Categories()
	if len(cats) != 4 || !cats[3].Custom || cats[3].Label != "Área Kids" {
		t.Fatalf("unexpected categories %+v", cats)
	}

	if _, err := s.AddTicket(key); err != nil {
		t.Fatal(err)
	}
	if !s.RemoveCustomCategory(key) {
		t.Fatalf("expected removal")
	}
	if _, ok := s.Ingressos()[key]; ok {
		t.Fatalf("tickets must go with the category")
	}
	if s.RemoveCustomCategory(model.CategoryTables) {
		t.Fatalf("canonical categories cannot be removed")
	}
}

func TestTickets(t *testing.T) {
	t.Parallel()
	s := newTestState()

	first, _ := s.AddTicket(model.CategoryTables)
	second, _ := s.AddTicket(model.CategoryTables)
	if first.ID == second.ID {
		t.Fatalf("ticket ids must differ")
	}
	if err := s.UpdateTicket(model.CategoryTables, 1, model.Ticket{ID: "ignored", Nome: "Mesa 4", Preco: 200}); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveTicket(model.CategoryTables, 0); err != nil {
		t.Fatal(err)
	}
	ts := s.Ingressos()[model.CategoryTables]
	if len(ts) != 1 || ts[0].ID != second.ID || ts[0].Nome != "Mesa 4" || ts[0].Preco != 200 {
		t.Fatalf("unexpected tickets %+v", ts)
	}

	tests := []struct {
		name string
		err  error
		fn   func() error
	}{
		{"add unknown", ErrUnknownCategory, func() error { _, err := s.AddTicket("nada"); return err }},
		{"update index", ErrTicketIndex, func() error { return s.UpdateTicket(model.CategoryTables, 5, model.Ticket{}) }},
		{"remove negative", ErrTicketIndex, func() error { return s.RemoveTicket(model.CategoryTables, -1) }},
		{"remove unknown", ErrUnknownCategory, func() error { return s.RemoveTicket("nada", 0) }},
		{"negative price", ErrNegativePrice, func() error {
			return s.UpdateTicket(model.CategoryTables, 0, model.Ticket{Nome: "Mesa", Preco: -50})
		}},
	}
	for _, tc := range tests {
		if err := tc.fn(); !errors.Is(err, tc.err) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.err, err)
		}
	}
}

func TestApplyExtraction_PartialMerge(t *testing.T) {
	t.Parallel()
	s := newTestState()
	_ = s.SetField("nome", "Nome digitado")
	_ = s.SetField("descricao", "Descrição digitada")

	s.ApplyExtraction(model.Extraction{
		Artista: strp("Grupo Raiz"),
		Data:    strp("20-12-2025"),
		Status:  strp("Últimos ingressos"),
		Ingressos: model.Ingressos{
			model.CategoryPremium: {{Nome: "Camarote VIP", Preco: 800}},
			"area_kids":           {{ID: "k1", Nome: "Kids", Preco: 50}},
		},
		CustomCategories: []string{"area_kids"},
	})

	f := s.Fields()
	if f.Nome != "Nome digitado" || f.Descricao != "Descrição digitada" {
		t.Fatalf("fields absent from the extraction must be kept: %+v", f)
	}
	if f.Artista != "Grupo Raiz" || f.Data != "2025-12-20" {
		t.Fatalf("extracted fields not applied: %+v", f)
	}
	if f.Status != "personalizado" || f.StatusPersonalizado != "Últimos ingressos" || !s.ShowCustomStatus() {
		t.Fatalf("unknown status must become a custom status: %+v", f)
	}
	if f.Endereco != DefaultAddress {
		t.Fatalf("endereco should be untouched")
	}

	in := s.Ingressos()
	if len(in[model.CategoryPremium]) != 1 || in[model.CategoryPremium][0].ID == "" {
		t.Fatalf("expected premium ticket with a generated id, got %+v", in[model.CategoryPremium])
	}
	if len(in[model.CategoryTables]) != 0 {
		t.Fatalf("categories missing from the extraction must be kept")
	}
	if cc := s.CustomCategories(); len(cc) != 1 || cc[0] != "area_kids" {
		t.Fatalf("expected area_kids to be registered, got %v", cc)
	}
}

func TestApplyExtraction_RawTicketsAndKnownStatus(t *testing.T) {
	t.Parallel()
	s := newTestState()

	s.ApplyExtraction(model.Extraction{
		Status:       strp("Disponível"),
		Local:        strp("Allure Hall"),
		RawIngressos: []byte(`[{"nome":"Mesa 4 lugares","preco":"R$ 1.234,56"}]`),
	})

	f := s.Fields()
	if f.Status != "disponivel" || s.ShowCustomStatus() {
		t.Fatalf("expected disponivel, got %+v", f)
	}
	if f.Endereco != "Allure Hall" {
		t.Fatalf("expected local to fill endereco, got %q", f.Endereco)
	}
	ts := s.Ingressos()[model.CategoryTables]
	if len(ts) != 1 || ts[0].Preco != 1234.56 {
		t.Fatalf("expected raw tickets to be normalized, got %+v", ts)
	}
}

func TestLoadForEditAndReset(t *testing.T) {
	t.Parallel()
	s := newTestState()
	custom := "Últimas mesas"

	s.LoadForEdit(model.Event{
		ID: 7, Nome: "Show Teste", Artista: "Banda X", Data: "24-09-2025", HoraInicio: "20:00",
		FusoHorario: "GMT-3", Status: "personalizado", StatusPersonalizado: &custom,
		Ingressos: model.Ingressos{
			model.CategoryTables: {{ID: "1", Nome: "Mesa VIP", Preco: 150, Descricao: "4 pessoas"}},
			"pista":              {{ID: "2", Nome: "Pista", Preco: 60}},
			"backstage":          {},
		},
	})

	if s.EditingID() != 7 || s.Fields().Data != "2025-09-24" || !s.ShowCustomStatus() {
		t.Fatalf("unexpected state after load: %+v", s.Fields())
	}
	if cc := s.CustomCategories(); len(cc) != 2 || cc[0] != "backstage" || cc[1] != "pista" {
		t.Fatalf("expected custom keys diffed from canonical, got %v", cc)
	}
	if ts := s.Ingressos()[model.CategoryPremium]; ts == nil {
		t.Fatalf("missing canonical lists must be restored")
	}

	p := s.Payload()
	if p.ID != 7 || p.Data != "24-09-2025" || p.StatusPersonalizado == nil || *p.StatusPersonalizado != custom {
		t.Fatalf("unexpected payload %+v", p)
	}
	if p.Ingressos[model.CategoryTables][0].Descricao != "4 pessoas" {
		t.Fatalf("tickets not carried into payload")
	}

	s.Reset()
	if s.EditingID() != 0 || s.Fields().Nome != "" || len(s.CustomCategories()) != 0 || len(s.Ingressos()) != 3 {
		t.Fatalf("reset did not restore defaults")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	s := New()
	_ = s.SetField("status", "personalizado")

	var fe FieldErrors
	if err := s.Validate(); !errors.As(err, &fe) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	for _, k := range []string{"nome", "artista", "data", "horaInicio", "statusPersonalizado"} {
		if fe[k] == "" {
			t.Fatalf("expected error for %s, got %v", k, fe)
		}
	}
	if _, ok := fe["fusoHorario"]; ok {
		t.Fatalf("default timezone must satisfy validation")
	}

	fill(s)
	s.LoadForEdit(model.Event{
		Nome: "Show", Artista: "Banda", Data: "24-09-2025", HoraInicio: "20:00", FusoHorario: "GMT-4", Status: "disponivel",
		Ingressos: model.Ingressos{model.CategoryTables: {{ID: "1", Nome: "Mesa", Preco: -1}}},
	})
	if err := s.Validate(); !errors.As(err, &fe) || fe["ingressos"] == "" || len(fe) != 1 {
		t.Fatalf("expected only an ingressos error, got %v", err)
	}
}

func fill(s *State) {
	s.SetFields(Fields{
		Nome: "Show Teste", Artista: "Banda X", Data: "2025-09-24", HoraInicio: "20:00",
		FusoHorario: "GMT-4", Status: "disponivel",
	})
}

func TestSubmit_BusyGuard(t *testing.T) {
	t.Parallel()
	s := New()
	fill(s)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Submit(context.Background(), func(ctx context.Context, e model.Event) error {
			if e.Data != "24-09-2025" {
				t.Errorf("expected dd-mm-yyyy in payload, got %q", e.Data)
			}
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if !s.Busy() {
		t.Fatalf("expected busy during submission")
	}
	err := s.Submit(context.Background(), func(context.Context, model.Event) error {
		t.Errorf("second submission must not run")
		return nil
	})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if s.Busy() {
		t.Fatalf("busy flag must clear after submission")
	}
}

func TestSubmit_DeadlineAndValidation(t *testing.T) {
	t.Parallel()
	s := New()

	called := false
	if err := s.Submit(context.Background(), func(context.Context, model.Event) error { called = true; return nil }); err == nil || called {
		t.Fatalf("invalid form must not be submitted")
	}
	if s.Busy() {
		t.Fatalf("busy flag must clear after a validation failure")
	}

	fill(s)
	err := s.Submit(context.Background(), func(ctx context.Context, e model.Event) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("expected a deadline on the submission context")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = s.Submit(ctx, func(ctx context.Context, e model.Event) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
