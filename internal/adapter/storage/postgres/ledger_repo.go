package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository over the append-only
// credit_transactions table.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Create appends a ledger entry within a database transaction. Entries are
// never updated or deleted.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.CreditTransaction) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal ledger metadata: %w", err)
	}

	query := `INSERT INTO credit_transactions (id, wallet_id, org_id, tx_type, amount, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, query, e.ID, e.WalletID, e.OrgID, e.Type, e.Amount, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert credit transaction: %w", err)
	}
	return nil
}

// SumByWallet returns the signed sum of all entries of a wallet. Debits count
// negative, all other types positive, matching
// domain.CreditTransaction.SignedAmount.
func (r *LedgerRepo) SumByWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(CASE WHEN tx_type = 'debit' THEN -amount ELSE amount END), 0)
		FROM credit_transactions WHERE wallet_id = $1`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}

// ListByWallet returns the most recent ledger entries of a wallet.
func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.CreditTransaction, error) {
	query := `SELECT id, wallet_id, org_id, tx_type, amount, metadata, created_at
		FROM credit_transactions WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CreditTransaction
	for rows.Next() {
		e := domain.CreditTransaction{}
		var meta []byte
		if err := rows.Scan(&e.ID, &e.WalletID, &e.OrgID, &e.Type, &e.Amount, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal ledger metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}
