package utils

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	tok, err := NewAccessToken("secret", 42, "admin@allure.com.br", "admin", 60, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := ParseAccessToken("secret", tok.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Fatalf("expected user 42, got %d (%v)", id, err)
	}
	if claims.Role != "admin" || claims.Email != "admin@allure.com.br" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseAccessToken_Rejects(t *testing.T) {
	t.Parallel()

	expired, _ := NewAccessToken("secret", 1, "a@b.c", "admin", 1, time.Now().Add(-2*time.Hour))
	valid, _ := NewAccessToken("secret", 1, "a@b.c", "admin", 60, time.Now())

	tests := map[string]struct{ secret, token string }{
		"expired":      {"secret", expired.Token},
		"wrong secret": {"other", valid.Token},
		"garbage":      {"secret", "not.a.jwt"},
		// alg "none" header with an empty signature.
		"none alg": {"secret", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiIxIiwicm9sZSI6ImFkbWluIn0."},
	}
	for name, tc := range tests {
		if _, err := ParseAccessToken(tc.secret, tc.token); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestRefreshTokenHash(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rt, err := NewRefreshToken(7, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(rt.Raw) != 96 {
		t.Fatalf("expected 96 hex chars, got %d", len(rt.Raw))
	}
	if !rt.Exp.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", rt.Exp)
	}
	if h := HashRefreshRaw(rt.Raw); len(h) != 64 || h != HashRefreshRaw(rt.Raw) {
		t.Fatalf("hash must be a stable 64 char hex digest, got %q", h)
	}
}

func TestPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("s3nha", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(hash, "s3nha") || VerifyPassword(hash, "errada") {
		t.Fatalf("password verification mismatch")
	}
}
