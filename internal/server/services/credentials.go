// Package services contains server-side business logic. This file implements
// CredentialService, which handles caregiver registration, login with
// brute-force lockout, and refreshing JWT pairs.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carecircle/carecircle/internal/common"
	"github.com/carecircle/carecircle/internal/logging"
	"github.com/carecircle/carecircle/internal/server/auth"
	"github.com/carecircle/carecircle/internal/server/config"
	"github.com/carecircle/carecircle/internal/server/lockout"
	"github.com/carecircle/carecircle/internal/server/models"
	"github.com/carecircle/carecircle/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token, a long-lived refresh token,
// and the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// CredentialService provides authentication-related operations:
// - Register: create caregivers
// - Login: verify credentials, drive the lockout counter, mint tokens
// - Refresh: verify a refresh token and mint a new pair
type CredentialService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	lockout                      *lockout.Counter
	log                          logging.Logger
	accessSecret                 []byte
	refreshSecret                []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	bcryptCost                   int
}

// NewCredentialService constructs a CredentialService using repositories,
// the lockout counter, and server config.
func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, lc *lockout.Counter, cfg *config.Config, log logging.Logger) *CredentialService {
	return &CredentialService{
		db:                           db,
		repomanager:                  m,
		lockout:                      lc,
		log:                          log,
		accessSecret:                 []byte(cfg.AccessTokenSecret),
		refreshSecret:                []byte(cfg.RefreshTokenSecret),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		bcryptCost:                   cfg.BcryptCost,
	}
}

// Register creates a new caregiver with the given email, password, and
// display name, and issues the first token pair. A caregiver already
// registered under the normalized email yields common.ErrorConflict.
func (s *CredentialService) Register(ctx context.Context, email, password, name string) (*models.Caregiver, *TokenPair, error) {
	email = normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("error hashing password: %w", err)
	}

	caregiver := &models.Caregiver{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
	}

	repo := s.repomanager.Caregivers(s.db)
	c, err := repo.Create(ctx, caregiver)
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, nil, common.ErrorConflict
		}
		return nil, nil, fmt.Errorf("error creating caregiver: %w", err)
	}

	pair, err := s.generateTokenPair(c)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}
	return c, pair, nil
}

// Login verifies the password for the normalized email and returns a fresh
// token pair. The lockout counter is consulted before the password hash is
// ever touched; unknown identities still count failed attempts so that
// account existence is not revealed through attempt behavior.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	identity := normalizeEmail(email)

	if st := s.lockout.IsLocked(ctx, identity); st.Locked {
		return nil, &common.LockedError{RetryAfter: st.RetryAfter}
	}

	repo := s.repomanager.Caregivers(s.db)
	caregiver, err := repo.GetByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, s.recordFailure(ctx, identity)
		}
		return nil, common.ErrorInternal
	}

	if bcrypt.CompareHashAndPassword([]byte(caregiver.PasswordHash), []byte(password)) != nil {
		return nil, s.recordFailure(ctx, identity)
	}

	s.lockout.ResetOnSuccess(ctx, identity)

	pair, err := s.generateTokenPair(caregiver)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return pair, nil
}

// Refresh verifies a refresh token against the refresh signing key,
// re-resolves the caregiver, and issues a new pair. The lockout counter is
// not consulted: refresh is not a password-guessing surface.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := auth.ParseToken(refreshToken, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Caregivers(s.db)
	caregiver, err := repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	pair, err := s.generateTokenPair(caregiver)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return pair, nil
}

// ChangePassword re-verifies the current password before storing a new hash.
func (s *CredentialService) ChangePassword(ctx context.Context, caregiverID, oldPassword, newPassword string) error {
	repo := s.repomanager.Caregivers(s.db)
	caregiver, err := repo.GetByID(ctx, caregiverID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}

	if bcrypt.CompareHashAndPassword([]byte(caregiver.PasswordHash), []byte(oldPassword)) != nil {
		return common.ErrorUnauthorized
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	return repo.UpdatePasswordHash(ctx, caregiverID, string(hash))
}

// UpdateProfile updates the caregiver's display name.
func (s *CredentialService) UpdateProfile(ctx context.Context, caregiverID, name string) (*models.Caregiver, error) {
	repo := s.repomanager.Caregivers(s.db)
	if err := repo.UpdateName(ctx, caregiverID, name); err != nil {
		return nil, err
	}
	return repo.GetByID(ctx, caregiverID)
}

// ManualUnlock clears the lockout state for an identity. Administrative
// escape hatch; does not verify that the identity exists.
func (s *CredentialService) ManualUnlock(ctx context.Context, email string) {
	s.lockout.ManualUnlock(ctx, normalizeEmail(email))
}

// --- helpers below ---

// recordFailure counts a failed attempt and converts the counter's answer
// into the error the caller should see: a lockout with its duration once the
// threshold is crossed, otherwise bad credentials with remaining-attempt
// guidance.
func (s *CredentialService) recordFailure(ctx context.Context, identity string) error {
	r := s.lockout.RecordFailure(ctx, identity)
	if r.Locked {
		return &common.LockedError{RetryAfter: r.LockDuration}
	}
	return &common.BadCredentialsError{RemainingAttempts: r.RemainingAttempts}
}

func (s *CredentialService) generateTokenPair(caregiver *models.Caregiver) (*TokenPair, error) {
	access, err := auth.GenerateToken(caregiver.ID, caregiver.Email, caregiver.Name,
		s.accessSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateToken(caregiver.ID, caregiver.Email, caregiver.Name,
		s.refreshSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTokenValidityDuration.Seconds()),
	}, nil
}
