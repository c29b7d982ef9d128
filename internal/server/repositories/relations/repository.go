package relations

import (
	"context"
	"time"

	"github.com/carecircle/carecircle/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, babyID, caregiverID string) (*models.CaregiverRelation, error)
	Create(ctx context.Context, relation *models.CaregiverRelation) error
	SetAccepted(ctx context.Context, babyID, caregiverID string, acceptedAt time.Time) error
}
