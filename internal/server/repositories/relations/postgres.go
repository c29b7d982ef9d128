package relations

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, babyID, caregiverID string) (*models.CaregiverRelation, error) {
	query :=
		`SELECT baby_id, caregiver_id, role, invited_at, accepted_at FROM caregiver_relations
		 WHERE baby_id = $1 AND caregiver_id = $2
		 `

	rel := &models.CaregiverRelation{}
	err := r.db.QueryRowContext(ctx, query, babyID, caregiverID).
		Scan(&rel.BabyID, &rel.CaregiverID, &rel.Role, &rel.InvitedAt, &rel.AcceptedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rel, nil
}

func (r *PostgresRepository) Create(ctx context.Context, relation *models.CaregiverRelation) error {
	query :=
		`INSERT INTO caregiver_relations (baby_id, caregiver_id, role, invited_at, accepted_at)
         VALUES ($1, $2, $3, $4, $5)
		 `

	if _, err := r.db.ExecContext(ctx, query,
		relation.BabyID, relation.CaregiverID, relation.Role, relation.InvitedAt, relation.AcceptedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetAccepted(ctx context.Context, babyID, caregiverID string, acceptedAt time.Time) error {
	query :=
		`UPDATE caregiver_relations SET accepted_at = $3
		 WHERE baby_id = $1 AND caregiver_id = $2
		 `

	res, err := r.db.ExecContext(ctx, query, babyID, caregiverID, acceptedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
