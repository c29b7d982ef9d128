package invitations

import (
	"context"
	"time"

	"github.com/carecircle/carecircle/internal/server/models"
)

// Repository persists invitations. The Mark* operations are conditional
// updates guarded on status = 'pending': they return common.ErrorConflict
// when the invitation has already left the pending state, which is what
// makes concurrent accepts safe.
type Repository interface {
	Create(ctx context.Context, invitation *models.Invitation) (*models.Invitation, error)
	GetByID(ctx context.Context, id string) (*models.Invitation, error)
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	FindPendingByBabyAndEmail(ctx context.Context, babyID, inviteeEmail string, now time.Time) (*models.Invitation, error)
	ListByBaby(ctx context.Context, babyID string) ([]*models.Invitation, error)
	ListPendingByEmail(ctx context.Context, inviteeEmail string, now time.Time) ([]*models.Invitation, error)
	MarkAccepted(ctx context.Context, id, acceptedByID string, acceptedAt time.Time) error
	MarkExpired(ctx context.Context, id string) error
	MarkRevoked(ctx context.Context, id string) error
}
