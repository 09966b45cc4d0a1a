package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/allure/event-admin/internal/database"
	"github.com/allure/event-admin/internal/model"
)

type UserRepo struct {
	DB *sql.DB
	D  database.Dialect
}

func NewUserRepo(db *sql.DB, d database.Dialect) *UserRepo { return &UserRepo{DB: db, D: d} }

// Create inserts a user whose password is already hashed and returns its ID.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	q := r.D.Rebind("INSERT INTO users (email, name, password_hash, role, is_active) VALUES (?,?,?,?,?)")

	var id uint64
	if r.D.ReturningID() {
		err := r.DB.QueryRowContext(ctx, q+" RETURNING id", email, u.Name, u.PasswordHash, u.Role, true).Scan(&id)
		if err != nil {
			return 0, mapUniqueViolation(err)
		}
		return id, nil
	}
	res, err := r.DB.ExecContext(ctx, q, email, u.Name, u.PasswordHash, u.Role, true)
	if err != nil {
		return 0, mapUniqueViolation(err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "SELECT id,email,name,password_hash,role,is_active,created_at FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "SELECT id,email,name,password_hash,role,is_active,created_at FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, r.D.Rebind(q), arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrUserNotFound
	}
	return u, err
}

// mapUniqueViolation turns the driver specific duplicate-key error
// (MySQL 1062, PostgreSQL 23505) into ErrEmailExists.
func mapUniqueViolation(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return ErrEmailExists
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailExists
	}
	return err
}
