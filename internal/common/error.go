// Package common defines sentinel errors and small helpers shared by every
// socialsync layer. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")

	// Remote transport errors. An authorization rejection by the backend's
	// row-level security is reported as ErrUnauthorized.
	ErrUnavailable  = errors.New("remote unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors are returned before any optimistic state change.
	ErrValidation    = errors.New("validation error")
	ErrQuotaExceeded = errors.New("quota exceeded")

	// Vault session errors.
	ErrLocked               = errors.New("vault is locked")
	ErrAuthMismatch         = errors.New("pin mismatch")
	ErrPINNotConfigured     = errors.New("vault pin is not configured")
	ErrPINAlreadyConfigured = errors.New("vault pin is already configured")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")

	ErrNotSupported      = errors.New("not supported")
	ErrUnsupportedBackup = errors.New("unsupported backup format")
)
