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

func TestLedgerRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	entry := &domain.CreditTransaction{
		ID:       uuid.New(),
		WalletID: uuid.New(),
		OrgID:    uuid.New(),
		Type:     domain.CreditTxDebit,
		Amount:   1,
		Metadata: map[string]string{"document_id": uuid.New().String()},
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_transactions").
		WithArgs(entry.ID, entry.WalletID, entry.OrgID, entry.Type, entry.Amount,
			pgxmock.AnyArg(), entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, entry)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_SumByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	walletID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(42)))

	sum, err := repo.SumByWallet(context.Background(), walletID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum)
}

func TestLedgerRepo_ListByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	walletID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .* FROM credit_transactions").
		WithArgs(walletID, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "wallet_id", "org_id", "tx_type", "amount", "metadata", "created_at"}).
			AddRow(uuid.New(), walletID, uuid.New(), domain.CreditTxTopUp, int64(100), []byte(`{"reason":"purchase"}`), now).
			AddRow(uuid.New(), walletID, uuid.New(), domain.CreditTxDebit, int64(1), []byte(`{}`), now))

	entries, err := repo.ListByWallet(context.Background(), walletID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.CreditTxTopUp, entries[0].Type)
	assert.Equal(t, "purchase", entries[0].Metadata["reason"])
	assert.Equal(t, int64(-1), entries[1].SignedAmount())
}
