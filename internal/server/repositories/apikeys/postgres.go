package apikeys

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

func (r *PostgresRepository) Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {

	query :=
		`INSERT INTO api_keys (id, caregiver_id, secret, name, expires_at)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		key.ID, key.CaregiverID, key.Secret, key.Name, key.ExpiresAt).
		Scan(&key.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return key, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	query :=
		`SELECT id, caregiver_id, secret, name, expires_at, last_used_at, created_at FROM api_keys
		 WHERE id = $1
		 `

	return scanKey(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetBySecret(ctx context.Context, secret string) (*models.APIKey, error) {
	query :=
		`SELECT id, caregiver_id, secret, name, expires_at, last_used_at, created_at FROM api_keys
		 WHERE secret = $1
		 `

	return scanKey(r.db.QueryRowContext(ctx, query, secret))
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, caregiverID string) ([]*models.APIKey, error) {
	query :=
		`SELECT id, caregiver_id, secret, name, expires_at, last_used_at, created_at FROM api_keys
		 WHERE caregiver_id = $1
		 ORDER BY created_at
		 `

	rows, err := r.db.QueryContext(ctx, query, caregiverID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k := &models.APIKey{}
		if err := rows.Scan(&k.ID, &k.CaregiverID, &k.Secret, &k.Name, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return keys, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query :=
		`DELETE FROM api_keys
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id)
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

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	query :=
		`UPDATE api_keys SET last_used_at = $2
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, id, usedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanKey(row *sql.Row) (*models.APIKey, error) {
	k := &models.APIKey{}
	err := row.Scan(&k.ID, &k.CaregiverID, &k.Secret, &k.Name, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}
