package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/carecircle/carecircle/internal/common"
	"github.com/carecircle/carecircle/internal/dbx"
	"github.com/carecircle/carecircle/internal/logging"
	"github.com/carecircle/carecircle/internal/server/models"
	apikeysrepo "github.com/carecircle/carecircle/internal/server/repositories/apikeys"
	caregiversrepo "github.com/carecircle/carecircle/internal/server/repositories/caregivers"
	invitationsrepo "github.com/carecircle/carecircle/internal/server/repositories/invitations"
	relationsrepo "github.com/carecircle/carecircle/internal/server/repositories/relations"
)

// --- shared helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptrTime(t time.Time) *time.Time { return &t }

// --- fake repositories ---

type fakeCaregiversRepo struct {
	byID      map[string]*models.Caregiver
	createErr error
}

func newFakeCaregiversRepo() *fakeCaregiversRepo {
	return &fakeCaregiversRepo{byID: map[string]*models.Caregiver{}}
}

func (f *fakeCaregiversRepo) add(c *models.Caregiver) { f.byID[c.ID] = c }

func (f *fakeCaregiversRepo) Create(ctx context.Context, c *models.Caregiver) (*models.Caregiver, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if existing.Email == c.Email {
			return nil, common.ErrorConflict
		}
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeCaregiversRepo) GetByID(ctx context.Context, id string) (*models.Caregiver, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeCaregiversRepo) GetByEmail(ctx context.Context, email string) (*models.Caregiver, error) {
	for _, c := range f.byID {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeCaregiversRepo) UpdateName(ctx context.Context, id, name string) error {
	c, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.Name = name
	return nil
}

func (f *fakeCaregiversRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	c, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.PasswordHash = hash
	return nil
}

type fakeAPIKeysRepo struct {
	byID    map[string]*models.APIKey
	touched chan string
}

func newFakeAPIKeysRepo() *fakeAPIKeysRepo {
	return &fakeAPIKeysRepo{byID: map[string]*models.APIKey{}, touched: make(chan string, 8)}
}

func (f *fakeAPIKeysRepo) Create(ctx context.Context, k *models.APIKey) (*models.APIKey, error) {
	k.CreatedAt = time.Now()
	f.byID[k.ID] = k
	return k, nil
}

func (f *fakeAPIKeysRepo) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	if k, ok := f.byID[id]; ok {
		return k, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAPIKeysRepo) GetBySecret(ctx context.Context, secret string) (*models.APIKey, error) {
	for _, k := range f.byID {
		if k.Secret == secret {
			return k, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAPIKeysRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range f.byID {
		if k.CaregiverID == ownerID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeAPIKeysRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeAPIKeysRepo) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	if k, ok := f.byID[id]; ok {
		k.LastUsedAt = &usedAt
	}
	f.touched <- id
	return nil
}

type fakeInvitationsRepo struct {
	byID            map[string]*models.Invitation
	markAcceptedErr error
}

func newFakeInvitationsRepo() *fakeInvitationsRepo {
	return &fakeInvitationsRepo{byID: map[string]*models.Invitation{}}
}

func (f *fakeInvitationsRepo) add(i *models.Invitation) { f.byID[i.ID] = i }

func (f *fakeInvitationsRepo) Create(ctx context.Context, i *models.Invitation) (*models.Invitation, error) {
	i.CreatedAt = time.Now()
	f.byID[i.ID] = i
	return i, nil
}

func (f *fakeInvitationsRepo) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	if i, ok := f.byID[id]; ok {
		return i, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeInvitationsRepo) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	for _, i := range f.byID {
		if i.Token == token {
			return i, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeInvitationsRepo) FindPendingByBabyAndEmail(ctx context.Context, babyID, email string, now time.Time) (*models.Invitation, error) {
	for _, i := range f.byID {
		if i.BabyID == babyID && i.InviteeEmail == email &&
			i.Status == models.InvitationPending && i.ExpiresAt.After(now) {
			return i, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeInvitationsRepo) ListByBaby(ctx context.Context, babyID string) ([]*models.Invitation, error) {
	var out []*models.Invitation
	for _, i := range f.byID {
		if i.BabyID == babyID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeInvitationsRepo) ListPendingByEmail(ctx context.Context, email string, now time.Time) ([]*models.Invitation, error) {
	var out []*models.Invitation
	for _, i := range f.byID {
		if i.InviteeEmail == email && i.Status == models.InvitationPending && i.ExpiresAt.After(now) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeInvitationsRepo) MarkAccepted(ctx context.Context, id, byID string, at time.Time) error {
	if f.markAcceptedErr != nil {
		return f.markAcceptedErr
	}
	i, ok := f.byID[id]
	if !ok || i.Status != models.InvitationPending {
		return common.ErrorConflict
	}
	i.Status = models.InvitationAccepted
	i.AcceptedAt = &at
	i.AcceptedByID = &byID
	return nil
}

func (f *fakeInvitationsRepo) MarkExpired(ctx context.Context, id string) error {
	i, ok := f.byID[id]
	if !ok || i.Status != models.InvitationPending {
		return common.ErrorConflict
	}
	i.Status = models.InvitationExpired
	return nil
}

func (f *fakeInvitationsRepo) MarkRevoked(ctx context.Context, id string) error {
	i, ok := f.byID[id]
	if !ok || i.Status != models.InvitationPending {
		return common.ErrorConflict
	}
	i.Status = models.InvitationRevoked
	return nil
}

type fakeRelationsRepo struct {
	rels      map[string]*models.CaregiverRelation
	createErr error
}

func newFakeRelationsRepo() *fakeRelationsRepo {
	return &fakeRelationsRepo{rels: map[string]*models.CaregiverRelation{}}
}

func relKey(babyID, caregiverID string) string { return babyID + "|" + caregiverID }

func (f *fakeRelationsRepo) add(r *models.CaregiverRelation) {
	f.rels[relKey(r.BabyID, r.CaregiverID)] = r
}

func (f *fakeRelationsRepo) Get(ctx context.Context, babyID, caregiverID string) (*models.CaregiverRelation, error) {
	if r, ok := f.rels[relKey(babyID, caregiverID)]; ok {
		return r, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRelationsRepo) Create(ctx context.Context, r *models.CaregiverRelation) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rels[relKey(r.BabyID, r.CaregiverID)] = r
	return nil
}

func (f *fakeRelationsRepo) SetAccepted(ctx context.Context, babyID, caregiverID string, at time.Time) error {
	r, ok := f.rels[relKey(babyID, caregiverID)]
	if !ok {
		return common.ErrorNotFound
	}
	r.AcceptedAt = &at
	return nil
}

// --- fake repository manager ---

type fakeRepoManager struct {
	cg  *fakeCaregiversRepo
	ak  *fakeAPIKeysRepo
	inv *fakeInvitationsRepo
	rel *fakeRelationsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		cg:  newFakeCaregiversRepo(),
		ak:  newFakeAPIKeysRepo(),
		inv: newFakeInvitationsRepo(),
		rel: newFakeRelationsRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (m *fakeRepoManager) Caregivers(db dbx.DBTX) caregiversrepo.Repository    { return m.cg }
func (m *fakeRepoManager) APIKeys(db dbx.DBTX) apikeysrepo.Repository          { return m.ak }
func (m *fakeRepoManager) Invitations(db dbx.DBTX) invitationsrepo.Repository  { return m.inv }
func (m *fakeRepoManager) Relations(db dbx.DBTX) relationsrepo.Repository      { return m.rel }
