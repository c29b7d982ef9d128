package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/common"
	"github.com/carecircle/carecircle/internal/dbx"
	"github.com/carecircle/carecircle/internal/logging"
	"github.com/carecircle/carecircle/internal/secrets"
	"github.com/carecircle/carecircle/internal/server/models"
	"github.com/carecircle/carecircle/internal/server/repositories/repomanager"
)

const invitationTokenBytes = 32

// Reasons reported by Validate for invitations that cannot be accepted.
const (
	ReasonNotFound        = "not_found"
	ReasonExpired         = "expired"
	ReasonAlreadyAccepted = "already_accepted"
	ReasonRevoked         = "revoked"
)

// ValidationResult is the outcome of a public invitation-token check.
// Invalid tokens are a result, not an error, so callers can render a
// friendly message.
type ValidationResult struct {
	Valid      bool
	Reason     string
	Invitation *models.Invitation
}

// InvitationService drives the caregiver-invitation lifecycle: a pending
// invitation either gets accepted, expires, or is revoked; all three are
// terminal.
type InvitationService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	log           logging.Logger
	invitationTTL time.Duration
}

func NewInvitationService(db *sql.DB, m repomanager.RepositoryManager, invitationTTL time.Duration, log logging.Logger) *InvitationService {
	return &InvitationService{db: db, repomanager: m, log: log, invitationTTL: invitationTTL}
}

// Create issues a new pending invitation for inviteeEmail to become a
// secondary caregiver of the baby. The inviter must hold an accepted primary
// relation; an invitee who already has access, or an outstanding pending
// invitation for the same (baby, email) pair, yields common.ErrorConflict.
func (s *InvitationService) Create(ctx context.Context, inviterID, babyID, inviteeEmail string) (*models.Invitation, error) {
	email := normalizeEmail(inviteeEmail)

	if err := s.requireAcceptedPrimary(ctx, babyID, inviterID); err != nil {
		return nil, err
	}

	// An invitee who already holds accepted access needs no invitation.
	invitee, err := s.repomanager.Caregivers(s.db).GetByEmail(ctx, email)
	if err == nil {
		rel, relErr := s.repomanager.Relations(s.db).Get(ctx, babyID, invitee.ID)
		if relErr == nil && rel.Accepted() {
			return nil, common.ErrorConflict
		}
		if relErr != nil && !errors.Is(relErr, common.ErrorNotFound) {
			return nil, common.ErrorInternal
		}
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorInternal
	}

	now := time.Now()
	invRepo := s.repomanager.Invitations(s.db)

	// One outstanding invitation per (baby, email) pair.
	if _, err := invRepo.FindPendingByBabyAndEmail(ctx, babyID, email, now); err == nil {
		return nil, common.ErrorConflict
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorInternal
	}

	invitation := &models.Invitation{
		ID:           uuid.NewString(),
		Token:        secrets.New(secrets.PurposeInvitation, invitationTokenBytes),
		BabyID:       babyID,
		InviterID:    inviterID,
		InviteeEmail: email,
		Status:       models.InvitationPending,
		ExpiresAt:    now.Add(s.invitationTTL),
	}

	inv, err := invRepo.Create(ctx, invitation)
	if err != nil {
		return nil, fmt.Errorf("error creating invitation: %w", err)
	}
	return inv, nil
}

// Validate is the public, unauthenticated capability check for a token. A
// pending invitation past its expiry is lazily transitioned to expired as a
// side effect of the read; the transition is idempotent.
func (s *InvitationService) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	inv, err := s.repomanager.Invitations(s.db).GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &ValidationResult{Reason: ReasonNotFound}, nil
		}
		return nil, fmt.Errorf("error loading invitation: %w", err)
	}

	if inv.Status == models.InvitationPending && inv.ExpiredAt(time.Now()) {
		s.lazyExpire(ctx, inv)
		return &ValidationResult{Reason: ReasonExpired, Invitation: inv}, nil
	}

	switch inv.Status {
	case models.InvitationPending:
		return &ValidationResult{Valid: true, Invitation: inv}, nil
	case models.InvitationAccepted:
		return &ValidationResult{Reason: ReasonAlreadyAccepted, Invitation: inv}, nil
	case models.InvitationRevoked:
		return &ValidationResult{Reason: ReasonRevoked, Invitation: inv}, nil
	default:
		return &ValidationResult{Reason: ReasonExpired, Invitation: inv}, nil
	}
}

// Accept redeems a pending invitation for the caller, granting a secondary
// relation on the baby. The invitation update and the relation write happen
// in one transaction; the invitation update is guarded on status = 'pending'
// so that of two concurrent accepts exactly one commits and the other gets
// common.ErrorConflict.
func (s *InvitationService) Accept(ctx context.Context, callerID, token string) (*models.Invitation, error) {
	caller, err := s.repomanager.Caregivers(s.db).GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	inv, err := s.repomanager.Invitations(s.db).GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading invitation: %w", err)
	}

	if inv.Status == models.InvitationPending && inv.ExpiredAt(time.Now()) {
		s.lazyExpire(ctx, inv)
		return nil, common.ErrorConflict
	}
	if inv.Status != models.InvitationPending {
		return nil, common.ErrorConflict
	}

	// The invitation is addressed, not transferable.
	if normalizeEmail(caller.Email) != inv.InviteeEmail {
		return nil, common.ErrorForbidden
	}

	existing, err := s.repomanager.Relations(s.db).Get(ctx, inv.BabyID, callerID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInternal
		}
		existing = nil
	}
	if existing != nil && existing.Accepted() {
		return nil, common.ErrorConflict
	}

	now := time.Now()
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Invitations(tx).MarkAccepted(ctx, inv.ID, callerID, now); err != nil {
			return err
		}

		relRepo := s.repomanager.Relations(tx)
		if existing == nil {
			return relRepo.Create(ctx, &models.CaregiverRelation{
				BabyID:      inv.BabyID,
				CaregiverID: callerID,
				Role:        models.RoleSecondary,
				InvitedAt:   now,
				AcceptedAt:  &now,
			})
		}
		return relRepo.SetAccepted(ctx, inv.BabyID, callerID, now)
	}); err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("error accepting invitation: %w", err)
	}

	inv.Status = models.InvitationAccepted
	inv.AcceptedAt = &now
	inv.AcceptedByID = &callerID
	return inv, nil
}

// Revoke cancels a pending invitation. Only an accepted primary caregiver
// of the invitation's baby may revoke; resolved invitations yield
// common.ErrorConflict.
func (s *InvitationService) Revoke(ctx context.Context, callerID, invitationID string) error {
	invRepo := s.repomanager.Invitations(s.db)

	inv, err := invRepo.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}

	if err := s.requireAcceptedPrimary(ctx, inv.BabyID, callerID); err != nil {
		return err
	}

	if inv.Status != models.InvitationPending {
		return common.ErrorConflict
	}

	return invRepo.MarkRevoked(ctx, inv.ID)
}

// ListPendingForEmail returns the open invitations addressed to the
// normalized email. Invitations addressed to anyone else never appear.
func (s *InvitationService) ListPendingForEmail(ctx context.Context, email string) ([]*models.Invitation, error) {
	return s.repomanager.Invitations(s.db).ListPendingByEmail(ctx, normalizeEmail(email), time.Now())
}

// ListForBaby returns every invitation for the baby, any status. Restricted
// to accepted primary caregivers.
func (s *InvitationService) ListForBaby(ctx context.Context, callerID, babyID string) ([]*models.Invitation, error) {
	if err := s.requireAcceptedPrimary(ctx, babyID, callerID); err != nil {
		return nil, err
	}
	return s.repomanager.Invitations(s.db).ListByBaby(ctx, babyID)
}

// --- helpers below ---

func (s *InvitationService) requireAcceptedPrimary(ctx context.Context, babyID, caregiverID string) error {
	rel, err := s.repomanager.Relations(s.db).Get(ctx, babyID, caregiverID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorForbidden
		}
		return common.ErrorInternal
	}
	if rel.Role != models.RolePrimary || !rel.Accepted() {
		return common.ErrorForbidden
	}
	return nil
}

// lazyExpire flips a stale pending invitation to expired. A conflict means
// another reader got there first, which is the same outcome.
func (s *InvitationService) lazyExpire(ctx context.Context, inv *models.Invitation) {
	if err := s.repomanager.Invitations(s.db).MarkExpired(ctx, inv.ID); err != nil && !errors.Is(err, common.ErrorConflict) {
		s.log.Error(ctx, "failed to expire invitation", "invitation_id", inv.ID, "error", err)
	}
	inv.Status = models.InvitationExpired
}
