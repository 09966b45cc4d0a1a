package model

import "time"

// User mirrors the `users` table.  Staff accounts are seeded from
// configuration; there is no self-registration.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique, lower-cased login.
//  Name         – display name.
//  PasswordHash – bcrypt hash.
//  Role         – admin or manager.
//  IsActive     – disabled accounts cannot log in.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	Name         string    // users.name
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
}

// Staff roles accepted by the API.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// RefreshToken models a row of `refresh_tokens`.  Only the SHA-256 hash of
// the raw token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
}
