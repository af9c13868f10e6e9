package ports

import (
	"context"
	"time"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrganizationRepository defines persistence operations for organizations.
type OrganizationRepository interface {
	Create(ctx context.Context, org *domain.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Organization, error)
}

// DocumentRepository defines persistence operations for documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	// Update persists the worker-mutable fields: status, ettn, provider doc id,
	// provider ref, metadata, sent_at.
	Update(ctx context.Context, doc *domain.Document) error
	// CountSentSince counts documents of an organization that reached sent
	// state at or after the given instant. Used for daily/monthly limits.
	CountSentSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int64, error)
	List(ctx context.Context, params DocumentListParams) ([]domain.Document, int64, error)
}

// DocumentListParams holds filter + pagination for listing documents.
type DocumentListParams struct {
	OrgID    uuid.UUID
	Status   *domain.DocumentStatus
	Type     *domain.DocumentType
	Page     int
	PageSize int
}

// WalletRepository defines persistence operations for credit wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.CreditWallet) error
	GetByOrgID(ctx context.Context, orgID uuid.UUID) (*domain.CreditWallet, error)
	GetByOrgIDForUpdate(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) (*domain.CreditWallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error
	// ListAutoPurchaseCandidates returns wallets with auto-purchase enabled
	// whose balance is at or below their configured threshold.
	ListAutoPurchaseCandidates(ctx context.Context) ([]domain.CreditWallet, error)
}

// LedgerRepository defines persistence for the append-only credit transaction log.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.CreditTransaction) error
	// SumByWallet returns the signed sum of all entries of a wallet. The cached
	// wallet balance must always equal this value.
	SumByWallet(ctx context.Context, walletID uuid.UUID) (int64, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.CreditTransaction, error)
}

// IdempotencyRepository defines persistence for idempotency records.
type IdempotencyRepository interface {
	Create(ctx context.Context, rec *domain.IdempotencyRecord) error
	Get(ctx context.Context, orgID uuid.UUID, key string) (*domain.IdempotencyRecord, error)
	// Complete stores the response exactly once for a record.
	Complete(ctx context.Context, id uuid.UUID, status int, body []byte) error
}

// WebhookSubscriptionRepository defines persistence for webhook subscriptions.
type WebhookSubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.WebhookSubscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscription, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]domain.WebhookSubscription, error)
	// ListByEvent returns the organization's subscriptions listening on event.
	ListByEvent(ctx context.Context, orgID uuid.UUID, event string) ([]domain.WebhookSubscription, error)
}

// WebhookDeliveryRepository defines persistence for webhook delivery rows.
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookDelivery, error)
	Update(ctx context.Context, d *domain.WebhookDelivery) error
	ListByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.WebhookDelivery, error)
}

// DeadLetterRepository defines persistence for the dead-letter sink.
type DeadLetterRepository interface {
	Create(ctx context.Context, dl *domain.DeadLetter) error
	List(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
