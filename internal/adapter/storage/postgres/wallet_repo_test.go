package postgres

import (
	"context"
	"testing"
	"time"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(orgID uuid.UUID) *domain.CreditWallet {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.CreditWallet{
		ID:           uuid.New(),
		OrgID:        orgID,
		Balance:      100,
		Currency:     "TRY",
		DailyLimit:   50,
		MonthlyLimit: 1000,
		LimitAction:  domain.LimitActionBlock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func walletColumnNames() []string {
	return []string{
		"id", "org_id", "balance", "currency", "daily_limit", "monthly_limit", "limit_action",
		"auto_purchase_enabled", "auto_purchase_threshold", "auto_purchase_package", "payment_token_enc",
		"created_at", "updated_at",
	}
}

func walletRow(w *domain.CreditWallet) *pgxmock.Rows {
	return pgxmock.NewRows(walletColumnNames()).AddRow(
		w.ID, w.OrgID, w.Balance, w.Currency, w.DailyLimit, w.MonthlyLimit, w.LimitAction,
		w.AutoPurchaseEnabled, w.AutoPurchaseThreshold, w.AutoPurchasePackage, w.PaymentTokenEnc,
		w.CreatedAt, w.UpdatedAt,
	)
}

func TestWalletRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())

	mock.ExpectExec("INSERT INTO credit_wallets").
		WithArgs(w.ID, w.OrgID, w.Balance, w.Currency, w.DailyLimit, w.MonthlyLimit, w.LimitAction,
			w.AutoPurchaseEnabled, w.AutoPurchaseThreshold, w.AutoPurchasePackage, w.PaymentTokenEnc,
			w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), w)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByOrgID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())

	mock.ExpectQuery("SELECT .* FROM credit_wallets WHERE org_id").
		WithArgs(w.OrgID).
		WillReturnRows(walletRow(w))

	got, err := repo.GetByOrgID(context.Background(), w.OrgID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.Balance, got.Balance)
	assert.Equal(t, domain.LimitActionBlock, got.LimitAction)
}

func TestWalletRepo_GetByOrgID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	orgID := uuid.New()

	mock.ExpectQuery("SELECT .* FROM credit_wallets WHERE org_id").
		WithArgs(orgID).
		WillReturnRows(pgxmock.NewRows(walletColumnNames()))

	got, err := repo.GetByOrgID(context.Background(), orgID)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestWalletRepo_GetByOrgIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM credit_wallets WHERE org_id = .* FOR UPDATE").
		WithArgs(w.OrgID).
		WillReturnRows(walletRow(w))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByOrgIDForUpdate(context.Background(), tx, w.OrgID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.ID, got.ID)
}

func TestWalletRepo_UpdateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	walletID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE credit_wallets SET balance").
		WithArgs(int64(99), walletID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateBalance(context.Background(), tx, walletID, 99)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_ListAutoPurchaseCandidates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())
	w.AutoPurchaseEnabled = true
	w.AutoPurchaseThreshold = 200
	w.Balance = 150

	mock.ExpectQuery("SELECT .* FROM credit_wallets").
		WillReturnRows(walletRow(w))

	got, err := repo.ListAutoPurchaseCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].AutoPurchaseEnabled)
}
