package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/carecircle/carecircle/internal/common"
	"github.com/carecircle/carecircle/internal/server/models"
)

const testInvitationTTL = 7 * 24 * time.Hour

func newInvitationService(t *testing.T) (*InvitationService, *fakeRepoManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	m := newFakeRepoManager()
	return NewInvitationService(db, m, testInvitationTTL, discardLogger()), m, mock
}

func addPrimary(m *fakeRepoManager, babyID, caregiverID string) {
	at := time.Now().Add(-time.Hour)
	m.rel.add(&models.CaregiverRelation{
		BabyID:      babyID,
		CaregiverID: caregiverID,
		Role:        models.RolePrimary,
		InvitedAt:   at,
		AcceptedAt:  &at,
	})
}

func addPendingInvitation(m *fakeRepoManager, id, babyID, inviterID, inviteeEmail string) *models.Invitation {
	inv := &models.Invitation{
		ID:           id,
		Token:        "inv_" + id,
		BabyID:       babyID,
		InviterID:    inviterID,
		InviteeEmail: inviteeEmail,
		Status:       models.InvitationPending,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(testInvitationTTL),
	}
	m.inv.add(inv)
	return inv
}

func TestInvitationService_Create(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	addPrimary(m, "baby-1", "inviter-1")

	inv, err := s.Create(ctx, "inviter-1", "baby-1", " Grandma@Example.COM ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(inv.Token, "inv_") {
		t.Errorf("unexpected token format: %v", inv.Token)
	}
	if inv.InviteeEmail != "grandma@example.com" {
		t.Errorf("email not normalized: %v", inv.InviteeEmail)
	}
	if inv.Status != models.InvitationPending {
		t.Errorf("unexpected status: %v", inv.Status)
	}
	if until := time.Until(inv.ExpiresAt); until < testInvitationTTL-time.Minute || until > testInvitationTTL {
		t.Errorf("unexpected expiry: %v", inv.ExpiresAt)
	}
}

func TestInvitationService_Create_RequiresPrimary(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	// No relation at all.
	if _, err := s.Create(ctx, "stranger", "baby-1", "grandma@example.com"); !errors.Is(err, common.ErrorForbidden) {
		t.Errorf("expected ErrorForbidden for stranger, got %v", err)
	}

	// Secondary caregivers cannot invite.
	at := time.Now()
	m.rel.add(&models.CaregiverRelation{
		BabyID: "baby-1", CaregiverID: "aunt", Role: models.RoleSecondary,
		InvitedAt: at, AcceptedAt: &at,
	})
	if _, err := s.Create(ctx, "aunt", "baby-1", "grandma@example.com"); !errors.Is(err, common.ErrorForbidden) {
		t.Errorf("expected ErrorForbidden for secondary, got %v", err)
	}

	// A primary relation that was never accepted does not count either.
	m.rel.add(&models.CaregiverRelation{
		BabyID: "baby-2", CaregiverID: "parent", Role: models.RolePrimary, InvitedAt: at,
	})
	if _, err := s.Create(ctx, "parent", "baby-2", "grandma@example.com"); !errors.Is(err, common.ErrorForbidden) {
		t.Errorf("expected ErrorForbidden for unaccepted primary, got %v", err)
	}
}

func TestInvitationService_Create_InviteeAlreadyHasAccess(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	addPrimary(m, "baby-1", "inviter-1")
	m.cg.add(&models.Caregiver{ID: "grandma", Email: "grandma@example.com"})
	at := time.Now()
	m.rel.add(&models.CaregiverRelation{
		BabyID: "baby-1", CaregiverID: "grandma", Role: models.RoleSecondary,
		InvitedAt: at, AcceptedAt: &at,
	})

	if _, err := s.Create(ctx, "inviter-1", "baby-1", "grandma@example.com"); !errors.Is(err, common.ErrorConflict) {
		t.Errorf("expected ErrorConflict, got %v", err)
	}
}

func TestInvitationService_Create_DuplicatePending(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	addPrimary(m, "baby-1", "inviter-1")
	addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")

	if _, err := s.Create(ctx, "inviter-1", "baby-1", "GRANDMA@example.com"); !errors.Is(err, common.ErrorConflict) {
		t.Errorf("expected ErrorConflict for duplicate pending invitation, got %v", err)
	}

	// A resolved invitation does not block a new one.
	m.inv.byID["inv-1"].Status = models.InvitationRevoked
	if _, err := s.Create(ctx, "inviter-1", "baby-1", "grandma@example.com"); err != nil {
		t.Errorf("unexpected error after previous invitation was revoked: %v", err)
	}
}

func TestInvitationService_Validate(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")

	res, err := s.Validate(ctx, inv.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid || res.Invitation == nil || res.Invitation.ID != inv.ID {
		t.Errorf("unexpected result: %+v", res)
	}

	res, err = s.Validate(ctx, "inv_unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid || res.Reason != ReasonNotFound {
		t.Errorf("unexpected result for unknown token: %+v", res)
	}
}

func TestInvitationService_Validate_LazyExpiry(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")
	inv.ExpiresAt = time.Now().Add(-time.Minute)

	res, err := s.Validate(ctx, inv.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid || res.Reason != ReasonExpired {
		t.Errorf("unexpected result: %+v", res)
	}
	// The stored row was transitioned as a side effect of the read.
	if m.inv.byID["inv-1"].Status != models.InvitationExpired {
		t.Errorf("invitation not lazily expired: %v", m.inv.byID["inv-1"].Status)
	}

	// Reading again reports the same outcome without error.
	res, err = s.Validate(ctx, inv.Token)
	if err != nil {
		t.Fatalf("unexpected error on second read: %v", err)
	}
	if res.Reason != ReasonExpired {
		t.Errorf("unexpected reason on second read: %v", res.Reason)
	}
}

func TestInvitationService_Validate_ResolvedStatuses(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	accepted := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "a@example.com")
	accepted.Status = models.InvitationAccepted
	revoked := addPendingInvitation(m, "inv-2", "baby-1", "inviter-1", "b@example.com")
	revoked.Status = models.InvitationRevoked

	res, _ := s.Validate(ctx, accepted.Token)
	if res.Valid || res.Reason != ReasonAlreadyAccepted {
		t.Errorf("unexpected result for accepted: %+v", res)
	}
	res, _ = s.Validate(ctx, revoked.Token)
	if res.Valid || res.Reason != ReasonRevoked {
		t.Errorf("unexpected result for revoked: %+v", res)
	}
}

func TestInvitationService_Accept(t *testing.T) {
	s, m, mock := newInvitationService(t)
	ctx := context.Background()

	m.cg.add(&models.Caregiver{ID: "grandma", Email: "grandma@example.com"})
	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")

	mock.ExpectBegin()
	mock.ExpectCommit()

	got, err := s.Accept(ctx, "grandma", inv.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != models.InvitationAccepted {
		t.Errorf("unexpected status: %v", got.Status)
	}
	if got.AcceptedByID == nil || *got.AcceptedByID != "grandma" {
		t.Errorf("unexpected acceptedBy: %+v", got.AcceptedByID)
	}

	rel, err := m.rel.Get(ctx, "baby-1", "grandma")
	if err != nil {
		t.Fatalf("relation not created: %v", err)
	}
	if rel.Role != models.RoleSecondary || !rel.Accepted() {
		t.Errorf("unexpected relation: %+v", rel)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("transaction expectations: %v", err)
	}
}

func TestInvitationService_Accept_WrongEmail(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	m.cg.add(&models.Caregiver{ID: "stranger", Email: "stranger@example.com"})
	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")

	if _, err := s.Accept(ctx, "stranger", inv.Token); !errors.Is(err, common.ErrorForbidden) {
		t.Errorf("expected ErrorForbidden, got %v", err)
	}
	if m.inv.byID["inv-1"].Status != models.InvitationPending {
		t.Errorf("invitation should stay pending")
	}
}

func TestInvitationService_Accept_Expired(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	m.cg.add(&models.Caregiver{ID: "grandma", Email: "grandma@example.com"})
	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")
	inv.ExpiresAt = time.Now().Add(-time.Minute)

	if _, err := s.Accept(ctx, "grandma", inv.Token); !errors.Is(err, common.ErrorConflict) {
		t.Errorf("expected ErrorConflict, got %v", err)
	}
	if m.inv.byID["inv-1"].Status != models.InvitationExpired {
		t.Errorf("invitation not lazily expired")
	}
}

func TestInvitationService_Accept_SecondCall(t *testing.T) {
	s, m, mock := newInvitationService(t)
	ctx := context.Background()

	m.cg.add(&models.Caregiver{ID: "grandma", Email: "grandma@example.com"})
	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")

	mock.ExpectBegin()
	mock.ExpectCommit()
	if _, err := s.Accept(ctx, "grandma", inv.Token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Accept(ctx, "grandma", inv.Token); !errors.Is(err, common.ErrorConflict) {
		t.Errorf("expected ErrorConflict on second accept, got %v", err)
	}
}

func TestInvitationService_Accept_LosesRace(t *testing.T) {
	s, m, mock := newInvitationService(t)
	ctx := context.Background()

	m.cg.add(&models.Caregiver{ID: "grandma", Email: "grandma@example.com"})
	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")

	// Simulate a concurrent accept committing first: the guarded update
	// inside the transaction matches no row.
	m.inv.markAcceptedErr = common.ErrorConflict
	mock.ExpectBegin()
	mock.ExpectRollback()

	if _, err := s.Accept(ctx, "grandma", inv.Token); !errors.Is(err, common.ErrorConflict) {
		t.Errorf("expected ErrorConflict for race loser, got %v", err)
	}
	if _, err := m.rel.Get(ctx, "baby-1", "grandma"); !errors.Is(err, common.ErrorNotFound) {
		t.Errorf("no relation should have been kept, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("transaction expectations: %v", err)
	}
}

func TestInvitationService_Accept_ReusesPendingRelation(t *testing.T) {
	s, m, mock := newInvitationService(t)
	ctx := context.Background()

	m.cg.add(&models.Caregiver{ID: "grandma", Email: "grandma@example.com"})
	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")

	// A relation row exists but was never accepted, e.g. from an earlier
	// invitation that expired.
	m.rel.add(&models.CaregiverRelation{
		BabyID: "baby-1", CaregiverID: "grandma", Role: models.RoleSecondary,
		InvitedAt: time.Now().Add(-48 * time.Hour),
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	if _, err := s.Accept(ctx, "grandma", inv.Token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rel, err := m.rel.Get(ctx, "baby-1", "grandma")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rel.Accepted() {
		t.Errorf("existing relation not marked accepted")
	}
}

func TestInvitationService_Revoke(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	addPrimary(m, "baby-1", "inviter-1")
	inv := addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")

	if err := s.Revoke(ctx, "someone-else", inv.ID); !errors.Is(err, common.ErrorForbidden) {
		t.Errorf("expected ErrorForbidden for non-primary, got %v", err)
	}
	if err := s.Revoke(ctx, "inviter-1", "missing"); !errors.Is(err, common.ErrorNotFound) {
		t.Errorf("expected ErrorNotFound, got %v", err)
	}

	if err := s.Revoke(ctx, "inviter-1", inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.inv.byID["inv-1"].Status != models.InvitationRevoked {
		t.Errorf("invitation not revoked")
	}

	// Revoking a resolved invitation is a conflict.
	if err := s.Revoke(ctx, "inviter-1", inv.ID); !errors.Is(err, common.ErrorConflict) {
		t.Errorf("expected ErrorConflict, got %v", err)
	}
}

func TestInvitationService_ListPendingForEmail(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")
	addPendingInvitation(m, "inv-2", "baby-2", "inviter-2", "grandma@example.com")
	addPendingInvitation(m, "inv-3", "baby-3", "inviter-3", "other@example.com")
	expired := addPendingInvitation(m, "inv-4", "baby-4", "inviter-4", "grandma@example.com")
	expired.ExpiresAt = time.Now().Add(-time.Minute)

	list, err := s.ListPendingForEmail(ctx, " Grandma@Example.com ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 open invitations, got %d", len(list))
	}
	for _, inv := range list {
		if inv.InviteeEmail != "grandma@example.com" {
			t.Errorf("invitation for someone else leaked: %+v", inv)
		}
	}
}

func TestInvitationService_ListForBaby(t *testing.T) {
	s, m, _ := newInvitationService(t)
	ctx := context.Background()

	addPrimary(m, "baby-1", "inviter-1")
	addPendingInvitation(m, "inv-1", "baby-1", "inviter-1", "grandma@example.com")
	revoked := addPendingInvitation(m, "inv-2", "baby-1", "inviter-1", "uncle@example.com")
	revoked.Status = models.InvitationRevoked

	if _, err := s.ListForBaby(ctx, "stranger", "baby-1"); !errors.Is(err, common.ErrorForbidden) {
		t.Errorf("expected ErrorForbidden, got %v", err)
	}

	list, err := s.ListForBaby(ctx, "inviter-1", "baby-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected all statuses listed, got %d", len(list))
	}
}
