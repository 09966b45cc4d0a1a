package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Dialect captures the SQL differences the repositories care about:
// placeholder syntax and how an inserted id is returned.
type Dialect struct {
	Name string
}

// DialectFor resolves a DB_DRIVER value.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMySQL:
		return Dialect{Name: DriverMySQL}, nil
	case DriverPostgres, "postgresql", "pgx":
		return Dialect{Name: DriverPostgres}, nil
	}
	return Dialect{}, fmt.Errorf("unsupported DB_DRIVER %q", driver)
}

// Placeholder returns the n-th (1-based) bind parameter marker.
func (d Dialect) Placeholder(n int) string {
	if d.Name == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Rebind rewrites a query written with '?' markers into the dialect's
// syntax.  Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(q string) string {
	if d.Name != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	inQuote := false
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteString(d.Placeholder(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ReturningID reports whether INSERT ... RETURNING id must be used instead
// of LastInsertId.
func (d Dialect) ReturningID() bool {
	return d.Name == DriverPostgres
}
