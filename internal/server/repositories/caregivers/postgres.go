package caregivers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

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

func (r *PostgresRepository) Create(ctx context.Context, caregiver *models.Caregiver) (*models.Caregiver, error) {

	query :=
		`INSERT INTO caregivers (id, email, password_hash, name)
         VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		caregiver.ID, caregiver.Email, caregiver.PasswordHash, caregiver.Name).
		Scan(&caregiver.CreatedAt, &caregiver.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return caregiver, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Caregiver, error) {
	query :=
		`SELECT id, email, password_hash, name, created_at, updated_at FROM caregivers
		 WHERE id = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Caregiver, error) {
	query :=
		`SELECT id, email, password_hash, name, created_at, updated_at FROM caregivers
		 WHERE email = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) UpdateName(ctx context.Context, id string, name string) error {
	query :=
		`UPDATE caregivers SET name = $2, updated_at = now()
		 WHERE id = $1
		 `

	return r.execExpectingRow(ctx, query, id, name)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	query :=
		`UPDATE caregivers SET password_hash = $2, updated_at = now()
		 WHERE id = $1
		 `

	return r.execExpectingRow(ctx, query, id, passwordHash)
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Caregiver, error) {
	c := &models.Caregiver{}
	err := row.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) execExpectingRow(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
