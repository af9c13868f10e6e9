package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocument(orgID uuid.UUID) *domain.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Document{
		ID:            uuid.New(),
		OrgID:         orgID,
		ExternalID:    "INV-001",
		ETTN:          domain.NewETTN(),
		ProviderDocID: "EFT2026000000001",
		Type:          domain.DocumentTypeInvoice,
		Profile:       domain.ProfileB2B,
		Status:        domain.DocumentStatusQueued,
		CustomerName:  "Acme Ltd",
		CustomerAlias: "urn:mail:acme@hs01.example",
		Items: []domain.DocumentItem{
			{Name: "Widget", Quantity: 2, UnitPrice: 1500, TaxRate: 20},
		},
		TotalExclTax: 3000,
		TotalTax:     600,
		TotalInclTax: 3600,
		Currency:     "TRY",
		Metadata:     map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func documentColumnNames() []string {
	return []string{
		"id", "org_id", "external_id", "ettn", "provider_doc_id", "doc_type", "profile", "status",
		"customer_name", "customer_alias", "customer_email", "items", "total_excl_tax", "total_tax", "total_incl_tax",
		"currency", "provider_ref", "metadata", "prebuilt_xml", "created_at", "updated_at", "sent_at",
	}
}

func documentRow(d *domain.Document) *pgxmock.Rows {
	items, _ := json.Marshal(d.Items)
	metadata, _ := json.Marshal(d.Metadata)
	return pgxmock.NewRows(documentColumnNames()).AddRow(
		d.ID, d.OrgID, d.ExternalID, d.ETTN, d.ProviderDocID, d.Type, d.Profile, d.Status,
		d.CustomerName, d.CustomerAlias, d.CustomerEmail, items, d.TotalExclTax, d.TotalTax, d.TotalInclTax,
		d.Currency, d.ProviderRef, metadata, d.PrebuiltXML, d.CreatedAt, d.UpdatedAt, d.SentAt,
	)
}

func TestDocumentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepo(mock)
	d := newTestDocument(uuid.New())

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), d)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepo(mock)
	d := newTestDocument(uuid.New())

	mock.ExpectQuery("SELECT .* FROM documents WHERE id").
		WithArgs(d.ID).
		WillReturnRows(documentRow(d))

	got, err := repo.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.ETTN, got.ETTN)
	assert.Equal(t, d.Items, got.Items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .* FROM documents WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(documentColumnNames()))

	got, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, got, "missing document should return nil, nil")
}

func TestDocumentRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepo(mock)
	d := newTestDocument(uuid.New())
	d.Status = domain.DocumentStatusSent
	d.SetLastError(domain.LastError{Code: "105", Message: "schema error"})

	mock.ExpectExec("UPDATE documents").
		WithArgs(d.ETTN, d.ProviderDocID, d.Status, d.ProviderRef, pgxmock.AnyArg(), d.SentAt, d.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Update(context.Background(), d)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepo(mock)
	d := newTestDocument(uuid.New())

	mock.ExpectExec("UPDATE documents").
		WithArgs(d.ETTN, d.ProviderDocID, d.Status, d.ProviderRef, pgxmock.AnyArg(), d.SentAt, d.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Update(context.Background(), d)
	assert.Error(t, err)
}

func TestDocumentRepo_CountSentSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDocumentRepo(mock)
	orgID := uuid.New()
	since := time.Now().UTC().Truncate(24 * time.Hour)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(orgID, since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	count, err := repo.CountSentSince(context.Background(), orgID, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
