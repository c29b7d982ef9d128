package models

import "time"

// InvitationStatus is the lifecycle state of an invitation. Pending is the
// only non-terminal state; no transition leaves a terminal state.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation grants its addressee the capability to become a secondary
// caregiver of a baby. The token is the capability a recipient presents;
// the invitation itself is addressed to a specific email and not
// transferable.
type Invitation struct {
	ID           string
	Token        string
	BabyID       string
	InviterID    string
	InviteeEmail string // normalized to lowercase
	Status       InvitationStatus
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AcceptedAt   *time.Time
	AcceptedByID *string
}

// ExpiredAt reports whether the invitation's validity window has passed.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}
