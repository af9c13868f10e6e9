package postgres

import (
	"context"
	"fmt"

	"einvoice-dispatch/internal/core/domain"
)

// DeadLetterRepo implements ports.DeadLetterRepository. The table is
// append-only; remediation happens outside this core.
type DeadLetterRepo struct {
	pool Pool
}

// NewDeadLetterRepo creates a new DeadLetterRepo.
func NewDeadLetterRepo(pool Pool) *DeadLetterRepo {
	return &DeadLetterRepo{pool: pool}
}

// Create appends a dead letter.
func (r *DeadLetterRepo) Create(ctx context.Context, dl *domain.DeadLetter) error {
	query := `INSERT INTO dead_letters (id, dl_type, reference_id, queue, error, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		dl.ID, dl.Type, dl.ReferenceID, dl.Queue, dl.Error, dl.Payload, dl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// List returns the most recent dead letters for operator inspection.
func (r *DeadLetterRepo) List(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	query := `SELECT id, dl_type, reference_id, queue, error, payload, created_at
		FROM dead_letters ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var dls []domain.DeadLetter
	for rows.Next() {
		dl := domain.DeadLetter{}
		if err := rows.Scan(&dl.ID, &dl.Type, &dl.ReferenceID, &dl.Queue, &dl.Error, &dl.Payload, &dl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		dls = append(dls, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return dls, nil
}
