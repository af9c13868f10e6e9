package postgres

import (
	"context"
	"errors"
	"fmt"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, org_id, balance, currency, daily_limit, monthly_limit, limit_action,
		auto_purchase_enabled, auto_purchase_threshold, auto_purchase_package, payment_token_enc,
		created_at, updated_at`

// Create inserts a new credit wallet.
func (r *WalletRepo) Create(ctx context.Context, w *domain.CreditWallet) error {
	query := `INSERT INTO credit_wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.OrgID, w.Balance, w.Currency, w.DailyLimit, w.MonthlyLimit, w.LimitAction,
		w.AutoPurchaseEnabled, w.AutoPurchaseThreshold, w.AutoPurchasePackage, w.PaymentTokenEnc,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByOrgID fetches a wallet by organization (non-locking read).
func (r *WalletRepo) GetByOrgID(ctx context.Context, orgID uuid.UUID) (*domain.CreditWallet, error) {
	query := `SELECT ` + walletColumns + ` FROM credit_wallets WHERE org_id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, orgID))
}

// GetByOrgIDForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByOrgIDForUpdate(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) (*domain.CreditWallet, error) {
	query := `SELECT ` + walletColumns + ` FROM credit_wallets WHERE org_id = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, orgID))
}

// UpdateBalance updates a wallet's cached balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error {
	query := `UPDATE credit_wallets SET balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, balance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// ListAutoPurchaseCandidates returns wallets eligible for the auto-purchase sweep.
func (r *WalletRepo) ListAutoPurchaseCandidates(ctx context.Context) ([]domain.CreditWallet, error) {
	query := `SELECT ` + walletColumns + ` FROM credit_wallets
		WHERE auto_purchase_enabled = TRUE AND balance <= auto_purchase_threshold`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list auto-purchase candidates: %w", err)
	}
	defer rows.Close()

	var wallets []domain.CreditWallet
	for rows.Next() {
		w := domain.CreditWallet{}
		if err := rows.Scan(
			&w.ID, &w.OrgID, &w.Balance, &w.Currency, &w.DailyLimit, &w.MonthlyLimit, &w.LimitAction,
			&w.AutoPurchaseEnabled, &w.AutoPurchaseThreshold, &w.AutoPurchasePackage, &w.PaymentTokenEnc,
			&w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

func scanWallet(row pgx.Row) (*domain.CreditWallet, error) {
	w := &domain.CreditWallet{}
	err := row.Scan(
		&w.ID, &w.OrgID, &w.Balance, &w.Currency, &w.DailyLimit, &w.MonthlyLimit, &w.LimitAction,
		&w.AutoPurchaseEnabled, &w.AutoPurchaseThreshold, &w.AutoPurchasePackage, &w.PaymentTokenEnc,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}
