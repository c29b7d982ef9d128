package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/common"
	"github.com/carecircle/carecircle/internal/logging"
	"github.com/carecircle/carecircle/internal/secrets"
	"github.com/carecircle/carecircle/internal/server/models"
	"github.com/carecircle/carecircle/internal/server/repositories/repomanager"
)

const apiKeySecretBytes = 24

// lastUsedWriteTimeout bounds the detached lastUsedAt write so it cannot
// hang forever on a stuck connection.
const lastUsedWriteTimeout = 5 * time.Second

// APIKeySummary is the redacted view of a key used in listings. Only the
// trailing hint of the secret survives.
type APIKeySummary struct {
	ID         string
	Name       string
	Hint       string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
}

// APIKeyService issues, lists, validates, and revokes API keys.
type APIKeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewAPIKeyService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *APIKeyService {
	return &APIKeyService{db: db, repomanager: m, log: log}
}

// Create generates and persists a new key for the owner. The returned model
// carries the full secret; this is the only time it is ever exposed.
func (s *APIKeyService) Create(ctx context.Context, ownerID, name string, expiresAt *time.Time) (*models.APIKey, error) {
	key := &models.APIKey{
		ID:          uuid.NewString(),
		CaregiverID: ownerID,
		Secret:      secrets.New(secrets.PurposeAPIKey, apiKeySecretBytes),
		Name:        name,
		ExpiresAt:   expiresAt,
	}

	repo := s.repomanager.APIKeys(s.db)
	k, err := repo.Create(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("error creating api key: %w", err)
	}
	return k, nil
}

// List returns the owner's keys with secrets redacted to a trailing hint.
func (s *APIKeyService) List(ctx context.Context, ownerID string) ([]APIKeySummary, error) {
	repo := s.repomanager.APIKeys(s.db)
	keys, err := repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error listing api keys: %w", err)
	}

	summaries := make([]APIKeySummary, 0, len(keys))
	for _, k := range keys {
		summaries = append(summaries, APIKeySummary{
			ID:         k.ID,
			Name:       k.Name,
			Hint:       secrets.Hint(k.Secret),
			CreatedAt:  k.CreatedAt,
			ExpiresAt:  k.ExpiresAt,
			LastUsedAt: k.LastUsedAt,
		})
	}
	return summaries, nil
}

// Revoke deletes a key. A key belonging to a different owner yields
// common.ErrorForbidden, an unknown id common.ErrorNotFound.
func (s *APIKeyService) Revoke(ctx context.Context, ownerID, keyID string) error {
	repo := s.repomanager.APIKeys(s.db)

	key, err := repo.GetByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}
	if key.CaregiverID != ownerID {
		return common.ErrorForbidden
	}

	return repo.Delete(ctx, keyID)
}

// Validate resolves a presented secret to its owning caregiver. An absent
// or expired key returns (nil, nil) — the two cases are indistinguishable
// to the caller by design. On a valid match the key's lastUsedAt is updated
// best-effort in the background; that write never affects the result.
func (s *APIKeyService) Validate(ctx context.Context, secret string) (*models.Caregiver, error) {
	repo := s.repomanager.APIKeys(s.db)

	key, err := repo.GetBySecret(ctx, secret)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error looking up api key: %w", err)
	}
	if key.Expired(time.Now()) {
		return nil, nil
	}

	caregiver, err := s.repomanager.Caregivers(s.db).GetByID(ctx, key.CaregiverID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error resolving api key owner: %w", err)
	}

	go s.touchLastUsed(key.ID)

	return caregiver, nil
}

// touchLastUsed records key usage detached from the request: it runs on a
// background context so a cancelled request does not abort the write, and
// its failures are logged, never propagated.
func (s *APIKeyService) touchLastUsed(keyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), lastUsedWriteTimeout)
	defer cancel()

	repo := s.repomanager.APIKeys(s.db)
	if err := repo.TouchLastUsed(ctx, keyID, time.Now()); err != nil {
		s.log.Error(ctx, "failed to record api key usage", "key_id", keyID, "error", err)
	}
}
