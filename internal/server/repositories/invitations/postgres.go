package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carecircle/carecircle/internal/common"
	"github.com/carecircle/carecircle/internal/dbx"
	"github.com/carecircle/carecircle/internal/server/models"
)

const selectColumns = `id, token, baby_id, inviter_id, invitee_email, status, created_at, expires_at, accepted_at, accepted_by_id`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, invitation *models.Invitation) (*models.Invitation, error) {

	query :=
		`INSERT INTO invitations (id, token, baby_id, inviter_id, invitee_email, status, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		invitation.ID, invitation.Token, invitation.BabyID, invitation.InviterID,
		invitation.InviteeEmail, invitation.Status, invitation.ExpiresAt).
		Scan(&invitation.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return invitation, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := `SELECT ` + selectColumns + ` FROM invitations
		 WHERE id = $1
		 `

	return scanInvitation(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `SELECT ` + selectColumns + ` FROM invitations
		 WHERE token = $1
		 `

	return scanInvitation(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) FindPendingByBabyAndEmail(ctx context.Context, babyID, inviteeEmail string, now time.Time) (*models.Invitation, error) {
	query := `SELECT ` + selectColumns + ` FROM invitations
		 WHERE baby_id = $1 AND invitee_email = $2 AND status = 'pending' AND expires_at > $3
		 LIMIT 1
		 `

	return scanInvitation(r.db.QueryRowContext(ctx, query, babyID, inviteeEmail, now))
}

func (r *PostgresRepository) ListByBaby(ctx context.Context, babyID string) ([]*models.Invitation, error) {
	query := `SELECT ` + selectColumns + ` FROM invitations
		 WHERE baby_id = $1
		 ORDER BY created_at DESC
		 `

	return r.list(ctx, query, babyID)
}

func (r *PostgresRepository) ListPendingByEmail(ctx context.Context, inviteeEmail string, now time.Time) ([]*models.Invitation, error) {
	query := `SELECT ` + selectColumns + ` FROM invitations
		 WHERE invitee_email = $1 AND status = 'pending' AND expires_at > $2
		 ORDER BY created_at DESC
		 `

	return r.list(ctx, query, inviteeEmail, now)
}

// MarkAccepted transitions a pending invitation to accepted. The update is
// guarded on status = 'pending'; when two accepts race, the loser sees zero
// affected rows and gets common.ErrorConflict.
func (r *PostgresRepository) MarkAccepted(ctx context.Context, id, acceptedByID string, acceptedAt time.Time) error {
	query :=
		`UPDATE invitations SET status = 'accepted', accepted_at = $2, accepted_by_id = $3
		 WHERE id = $1 AND status = 'pending'
		 `

	return r.execGuarded(ctx, query, id, acceptedAt, acceptedByID)
}

func (r *PostgresRepository) MarkExpired(ctx context.Context, id string) error {
	query :=
		`UPDATE invitations SET status = 'expired'
		 WHERE id = $1 AND status = 'pending'
		 `

	return r.execGuarded(ctx, query, id)
}

func (r *PostgresRepository) MarkRevoked(ctx context.Context, id string) error {
	query :=
		`UPDATE invitations SET status = 'revoked'
		 WHERE id = $1 AND status = 'pending'
		 `

	return r.execGuarded(ctx, query, id)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Invitation
	for rows.Next() {
		i := &models.Invitation{}
		if err := rows.Scan(&i.ID, &i.Token, &i.BabyID, &i.InviterID, &i.InviteeEmail,
			&i.Status, &i.CreatedAt, &i.ExpiresAt, &i.AcceptedAt, &i.AcceptedByID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) execGuarded(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorConflict
	}
	return nil
}

func scanInvitation(row *sql.Row) (*models.Invitation, error) {
	i := &models.Invitation{}
	err := row.Scan(&i.ID, &i.Token, &i.BabyID, &i.InviterID, &i.InviteeEmail,
		&i.Status, &i.CreatedAt, &i.ExpiresAt, &i.AcceptedAt, &i.AcceptedByID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return i, nil
}
