// Package common defines shared constants and sentinel errors used across
// sessionkeeper components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// Transient persistence failure. The only class callers may retry
	// (with backoff); everything else is terminal for the request.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Service-level errors (generic/internal flow control).
	ErrInternal = errors.New("internal error")

	// Login failure. Deliberately covers both "no such user" and "wrong
	// password" so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
	ErrTokenUnknown = errors.New("unknown token")
)
