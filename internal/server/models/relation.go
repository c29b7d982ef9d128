package models

import "time"

// RelationRole is a caregiver's role on a baby. Primary caregivers manage
// invitations and other caregivers; secondary caregivers cannot.
type RelationRole string

const (
	RolePrimary   RelationRole = "primary"
	RoleSecondary RelationRole = "secondary"
)

// CaregiverRelation links a caregiver to a baby. At most one relation exists
// per (baby, caregiver) pair. AcceptedAt == nil means invited but not yet
// accepted; such a relation grants no access.
type CaregiverRelation struct {
	BabyID      string
	CaregiverID string
	Role        RelationRole
	InvitedAt   time.Time
	AcceptedAt  *time.Time
}

// Accepted reports whether the relation is an active access grant.
func (r *CaregiverRelation) Accepted() bool {
	return r.AcceptedAt != nil
}
