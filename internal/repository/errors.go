// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish "the row is not there" from infrastructure
// failures, which must surface as 500s instead of 404s.
package repository

import "errors"

// ErrEventNotFound is returned when no active event matches the id.
// Handlers translate it into an HTTP 404 response.
var ErrEventNotFound = errors.New("event not found")

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when inserting a user whose e-mail is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid is returned when a refresh token cannot be used anymore.
var ErrTokenInvalid = errors.New("refresh token invalid")
