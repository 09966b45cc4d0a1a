package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allure/event-admin/internal/database"
	"github.com/allure/event-admin/internal/model"
)

// eventColumns is the projection shared by every SELECT so scanRow stays in
// sync with the queries.
const eventColumns = "id, nome, artista, data, hora_inicio, hora_termino, fuso_horario, status, " +
	"status_personalizado, endereco, descricao, ingressos, usuario, ativo, data_cadastro, data_atualizacao"

// EventRepo stores events in the `events` table.  Queries are written with
// '?' markers and rebound for the active dialect.
type EventRepo struct {
	db  *sql.DB
	d   database.Dialect
	now func() time.Time
}

// NewEventRepo constructs an EventRepo.
func NewEventRepo(db *sql.DB, d database.Dialect) *EventRepo {
	return &EventRepo{db: db, d: d, now: func() time.Time { return time.Now().UTC() }}
}

// eventRow is the database shape of an event.
type eventRow struct {
	ID                  uint64
	Nome                string
	Artista             string
	Data                string
	HoraInicio          string
	HoraTermino         string
	FusoHorario         string
	Status              string
	StatusPersonalizado sql.NullString
	Endereco            string
	Descricao           string
	Ingressos           string
	Usuario             string
	Ativo               bool
	DataCadastro        time.Time
	DataAtualizacao     time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (eventRow, error) {
	var r eventRow
	err := s.Scan(&r.ID, &r.Nome, &r.Artista, &r.Data, &r.HoraInicio, &r.HoraTermino, &r.FusoHorario,
		&r.Status, &r.StatusPersonalizado, &r.Endereco, &r.Descricao, &r.Ingressos, &r.Usuario,
		&r.Ativo, &r.DataCadastro, &r.DataAtualizacao)
	return r, err
}

func (r eventRow) toModel() (model.Event, error) {
	ing, err := DecodeIngressos(r.Ingressos)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %d: %w", r.ID, err)
	}
	ativo := r.Ativo
	cad, upd := r.DataCadastro, r.DataAtualizacao
	ev := model.Event{
		ID:              r.ID,
		Nome:            r.Nome,
		Artista:         r.Artista,
		Data:            r.Data,
		HoraInicio:      r.HoraInicio,
		HoraTermino:     r.HoraTermino,
		FusoHorario:     r.FusoHorario,
		Status:          r.Status,
		Endereco:        r.Endereco,
		Descricao:       r.Descricao,
		Ingressos:       ing,
		DataCadastro:    &cad,
		DataAtualizacao: &upd,
		Usuario:         r.Usuario,
		Ativo:           &ativo,
	}
	if r.StatusPersonalizado.Valid {
		sp := r.StatusPersonalizado.String
		ev.StatusPersonalizado = &sp
	}
	return ev, nil
}

// EncodeIngressos serializes a catalog to the JSON text stored in the
// ingressos column.  A nil catalog is stored as an empty object.
func EncodeIngressos(in model.Ingressos) (string, error) {
	if in == nil {
		in = model.Ingressos{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeIngressos parses the ingressos column.  Older rows may hold the
// catalog double-encoded (a JSON string whose content is the object), so a
// string value is unwrapped once before decoding.
func DecodeIngressos(raw string) (model.Ingressos, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return model.Ingressos{}, nil
	}
	if strings.HasPrefix(raw, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(raw), &inner); err != nil {
			return nil, fmt.Errorf("decode ingressos: %w", err)
		}
		raw = strings.TrimSpace(inner)
		if raw == "" {
			return model.Ingressos{}, nil
		}
	}
	var out model.Ingressos
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode ingressos: %w", err)
	}
	if out == nil {
		out = model.Ingressos{}
	}
	return out, nil
}

// Create inserts the event and fills in the generated id and timestamps.
// Callers are expected to have applied defaults already.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	ing, err := EncodeIngressos(e.Ingressos)
	if err != nil {
		return err
	}
	now := r.now()
	var sp any
	if e.StatusPersonalizado != nil {
		sp = *e.StatusPersonalizado
	}
	args := []any{e.Nome, e.Artista, e.Data, e.HoraInicio, e.HoraTermino, e.FusoHorario, e.Status,
		sp, e.Endereco, e.Descricao, ing, e.Usuario, true, now, now}

	q := r.d.Rebind(`INSERT INTO events (nome, artista, data, hora_inicio, hora_termino, fuso_horario, status,
	status_personalizado, endereco, descricao, ingressos, usuario, ativo, data_cadastro, data_atualizacao)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	if r.d.ReturningID() {
		if err := r.db.QueryRowContext(ctx, q+" RETURNING id", args...).Scan(&e.ID); err != nil {
			return err
		}
	} else {
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		e.ID = uint64(id)
	}

	ativo := true
	e.Ativo = &ativo
	e.DataCadastro = &now
	e.DataAtualizacao = &now
	return nil
}

// List returns every active event, newest first.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	return r.query(ctx, "SELECT "+eventColumns+" FROM events WHERE ativo = TRUE ORDER BY data_cadastro DESC")
}

// ListByDate returns the active events on a dd-mm-yyyy date ordered by start
// time.
func (r *EventRepo) ListByDate(ctx context.Context, date string) ([]model.Event, error) {
	return r.query(ctx, "SELECT "+eventColumns+" FROM events WHERE data = ? AND ativo = TRUE ORDER BY hora_inicio ASC", date)
}

// ListByStatus returns the active events with the given status, newest first.
func (r *EventRepo) ListByStatus(ctx context.Context, status string) ([]model.Event, error) {
	return r.query(ctx, "SELECT "+eventColumns+" FROM events WHERE status = ? AND ativo = TRUE ORDER BY data_cadastro DESC", status)
}

// Get fetches an active event.  Inactive and missing rows both yield
// ErrEventNotFound.
func (r *EventRepo) Get(ctx context.Context, id uint64) (*model.Event, error) {
	q := r.d.Rebind("SELECT " + eventColumns + " FROM events WHERE id = ? AND ativo = TRUE")
	row, err := scanRow(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	ev, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Update applies the supplied fields of p and returns the stored record.
// An empty patch performs no write and returns the current record.
func (r *EventRepo) Update(ctx context.Context, id uint64, p model.EventPatch) (*model.Event, error) {
	if p.Empty() {
		return r.Get(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	str := func(col string, v *string) {
		if v != nil {
			set(col, *v)
		}
	}
	str("nome", p.Nome)
	str("artista", p.Artista)
	str("data", p.Data)
	str("hora_inicio", p.HoraInicio)
	str("hora_termino", p.HoraTermino)
	str("fuso_horario", p.FusoHorario)
	str("status", p.Status)
	str("status_personalizado", p.StatusPersonalizado)
	str("endereco", p.Endereco)
	str("descricao", p.Descricao)
	if p.Ingressos != nil {
		ing, err := EncodeIngressos(p.Ingressos)
		if err != nil {
			return nil, err
		}
		set("ingressos", ing)
	}
	set("data_atualizacao", r.now())
	args = append(args, id)

	q := r.d.Rebind("UPDATE events SET " + strings.Join(sets, ", ") + " WHERE id = ? AND ativo = TRUE")
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrEventNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes an event.  A soft delete flips ativo so the row is kept for
// auditing; a hard delete removes it.
func (r *EventRepo) Delete(ctx context.Context, id uint64, hard bool) error {
	var (
		res sql.Result
		err error
	)
	if hard {
		res, err = r.db.ExecContext(ctx, r.d.Rebind("DELETE FROM events WHERE id = ?"), id)
	} else {
		res, err = r.db.ExecContext(ctx,
			r.d.Rebind("UPDATE events SET ativo = FALSE, data_atualizacao = ? WHERE id = ? AND ativo = TRUE"),
			r.now(), id)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Ping runs the trivial query used by the health check.
func (r *EventRepo) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (r *EventRepo) query(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		ev, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
