package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/allure/event-admin/internal/config"
)

// Open connects to the configured relational store and verifies the
// connection.  MySQL and PostgreSQL are supported; both sit behind
// database/sql so repositories only differ by Dialect.
func Open(cfg config.Config) (*sql.DB, Dialect, error) {
	d, err := DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, Dialect{}, err
	}

	var db *sql.DB
	switch d.Name {
	case DriverPostgres:
		connCfg, err := pgx.ParseConfig(postgresURL(cfg))
		if err != nil {
			return nil, Dialect{}, fmt.Errorf("parse postgres config: %w", err)
		}
		db = stdlib.OpenDB(*connCfg)
	default:
		db, err = sql.Open("mysql", mysqlDSN(cfg))
		if err != nil {
			return nil, Dialect{}, err
		}
	}

	// Pool settings; exhaustion surfaces as a request error through the
	// per-request context deadline.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, Dialect{}, err
	}
	return db, d, nil
}

// mysqlDSN renders the DSN; parseTime=true maps DATETIME to time.Time and
// loc=UTC keeps timestamps consistent.  clientFoundRows makes RowsAffected
// count matched rows, which the repositories use to detect missing ids.
func mysqlDSN(cfg config.Config) string {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.ClientFoundRows = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func postgresURL(cfg config.Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPass),
		Host:     net.JoinHostPort(cfg.DBHost, cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {cfg.DBSSLMode}}.Encode(),
	}
	return u.String()
}
