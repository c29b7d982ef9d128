package apikeys

import (
	"context"
	"time"

	"github.com/carecircle/carecircle/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error)
	GetByID(ctx context.Context, id string) (*models.APIKey, error)
	GetBySecret(ctx context.Context, secret string) (*models.APIKey, error)
	ListByOwner(ctx context.Context, caregiverID string) ([]*models.APIKey, error)
	Delete(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error
}
