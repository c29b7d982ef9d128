package caregivers

import (
	"context"

	"github.com/carecircle/carecircle/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, caregiver *models.Caregiver) (*models.Caregiver, error)
	GetByID(ctx context.Context, id string) (*models.Caregiver, error)
	GetByEmail(ctx context.Context, email string) (*models.Caregiver, error)
	UpdateName(ctx context.Context, id string, name string) error
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}
