package postgres

import (
	"context"
	"errors"
	"fmt"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create inserts a new idempotency record with no response yet.
func (r *IdempotencyRepo) Create(ctx context.Context, rec *domain.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_records (id, org_id, key, method, path, body_hash, response_status, response_body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.OrgID, rec.Key, rec.Method, rec.Path, rec.BodyHash,
		rec.ResponseStatus, rec.ResponseBody, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// Get fetches an unexpired record by (org, key). Returns nil, nil when absent.
func (r *IdempotencyRepo) Get(ctx context.Context, orgID uuid.UUID, key string) (*domain.IdempotencyRecord, error) {
	query := `SELECT id, org_id, key, method, path, body_hash, response_status, response_body, created_at, expires_at
		FROM idempotency_records WHERE org_id = $1 AND key = $2 AND expires_at > NOW()`

	rec := &domain.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx, query, orgID, key).Scan(
		&rec.ID, &rec.OrgID, &rec.Key, &rec.Method, &rec.Path, &rec.BodyHash,
		&rec.ResponseStatus, &rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}

// Complete stores the handler's response on the record. The guard on
// response_status IS NULL makes the update single-shot.
func (r *IdempotencyRepo) Complete(ctx context.Context, id uuid.UUID, status int, body []byte) error {
	query := `UPDATE idempotency_records SET response_status = $1, response_body = $2
		WHERE id = $3 AND response_status IS NULL`

	tag, err := r.pool.Exec(ctx, query, status, body, id)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency record %s not found or already completed", id)
	}
	return nil
}
