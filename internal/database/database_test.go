package database

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/allure/event-admin/internal/config"
)

func TestDialectFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", DriverMySQL, false},
		{"MySQL", DriverMySQL, false},
		{"postgres", DriverPostgres, false},
		{"pgx", DriverPostgres, false},
		{"sqlite", "", true},
	}
	for _, tc := range tests {
		d, err := DialectFor(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("DialectFor(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || d.Name != tc.want {
			t.Fatalf("DialectFor(%q): expected %q, got %q (%v)", tc.in, tc.want, d.Name, err)
		}
	}
}

func TestDialect_Rebind(t *testing.T) {
	t.Parallel()

	q := `UPDATE events SET nome = ?, descricao = 'why?' WHERE id = ? AND ativo = ?`
	pg := Dialect{Name: DriverPostgres}.Rebind(q)
	want := `UPDATE events SET nome = $1, descricao = 'why?' WHERE id = $2 AND ativo = $3`
	if pg != want {
		t.Fatalf("expected %q, got %q", want, pg)
	}
	if my := (Dialect{Name: DriverMySQL}).Rebind(q); my != q {
		t.Fatalf("mysql rebind must be a no-op, got %q", my)
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	src := "-- header\nCREATE TABLE a (\n  id INT\n);\n\nCREATE INDEX i ON a (id);\nSELECT 1"
	got := SplitStatements(src)
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if !strings.HasPrefix(got[0], "CREATE TABLE a") || strings.HasSuffix(got[0], ";") {
		t.Fatalf("unexpected first statement %q", got[0])
	}
	if got[2] != "SELECT 1" {
		t.Fatalf("expected trailing statement without semicolon, got %q", got[2])
	}
}

func TestMigrate_SkipsApplied(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schema_migrations WHERE name = ?")).
		WithArgs("001_events.sql").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schema_migrations WHERE name = ?")).
		WithArgs("002_auth.sql").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (name) VALUES (?)")).
		WithArgs("002_auth.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := Migrate(context.Background(), db, Dialect{Name: DriverMySQL}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConnectionStrings(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		DBUser: "allure", DBPass: "p@ss:word", DBHost: "db", DBPort: "5432",
		DBName: "allure_events", DBSSLMode: "disable",
	}
	pg := postgresURL(cfg)
	if !strings.HasPrefix(pg, "postgres://allure:p%40ss%3Aword@db:5432/allure_events") || !strings.Contains(pg, "sslmode=disable") {
		t.Fatalf("unexpected postgres url %q", pg)
	}

	cfg.DBPort = "3306"
	my := mysqlDSN(cfg)
	if !strings.Contains(my, "@tcp(db:3306)/allure_events") || !strings.Contains(my, "parseTime=true") {
		t.Fatalf("unexpected mysql dsn %q", my)
	}
}
