// Package common defines shared sentinel errors used across the service
// layers of CareCircle. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Downstream store failures that are not covered by a fail-open rule.
	ErrorUnavailable = errors.New("service unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")

	// Login throttling.
	ErrTooManyAttempts = errors.New("too many attempts")
)

// LockedError reports that an identity is locked out of login. It matches
// ErrTooManyAttempts under errors.Is and carries the remaining lock time so
// callers can render a concrete message.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// BadCredentialsError reports a failed password check together with the
// number of attempts left before lockout. RemainingAttempts < 0 means the
// counter was unavailable and no guidance can be given. It matches
// ErrorUnauthorized under errors.Is.
type BadCredentialsError struct {
	RemainingAttempts int
}

func (e *BadCredentialsError) Error() string {
	if e.RemainingAttempts < 0 {
		return "invalid email or password"
	}
	return fmt.Sprintf("invalid email or password (%d attempts remaining)", e.RemainingAttempts)
}

func (e *BadCredentialsError) Is(target error) bool {
	return target == ErrorUnauthorized
}
