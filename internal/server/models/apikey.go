package models

import "time"

// APIKey is an opaque bearer credential owned by a caregiver. The secret is
// returned in full exactly once, at creation; listings only ever re-expose
// a trailing hint.
type APIKey struct {
	ID          string
	CaregiverID string
	Secret      string
	Name        string
	ExpiresAt   *time.Time // nil = never expires
	LastUsedAt  *time.Time // advisory, best-effort
	CreatedAt   time.Time
}

// Expired reports whether the key's expiry, if any, is in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
