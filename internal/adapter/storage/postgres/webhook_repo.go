package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SubscriptionRepo implements ports.WebhookSubscriptionRepository.
type SubscriptionRepo struct {
	pool Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepo.
func NewSubscriptionRepo(pool Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

// Create inserts a new webhook subscription.
func (r *SubscriptionRepo) Create(ctx context.Context, s *domain.WebhookSubscription) error {
	query := `INSERT INTO webhook_subscriptions (id, org_id, url, secret, events, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, s.ID, s.OrgID, s.URL, s.Secret, s.Events, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

// GetByID fetches a subscription. Returns nil, nil when absent.
func (r *SubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscription, error) {
	query := `SELECT id, org_id, url, secret, events, created_at
		FROM webhook_subscriptions WHERE id = $1`

	s := &domain.WebhookSubscription{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.OrgID, &s.URL, &s.Secret, &s.Events, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook subscription: %w", err)
	}
	return s, nil
}

// ListByOrg returns all subscriptions of an organization.
func (r *SubscriptionRepo) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]domain.WebhookSubscription, error) {
	query := `SELECT id, org_id, url, secret, events, created_at
		FROM webhook_subscriptions WHERE org_id = $1 ORDER BY created_at`

	return r.querySubscriptions(ctx, query, orgID)
}

// ListByEvent returns the organization's subscriptions listening on event.
func (r *SubscriptionRepo) ListByEvent(ctx context.Context, orgID uuid.UUID, event string) ([]domain.WebhookSubscription, error) {
	query := `SELECT id, org_id, url, secret, events, created_at
		FROM webhook_subscriptions WHERE org_id = $1 AND $2 = ANY(events) ORDER BY created_at`

	return r.querySubscriptions(ctx, query, orgID, event)
}

func (r *SubscriptionRepo) querySubscriptions(ctx context.Context, query string, args ...any) ([]domain.WebhookSubscription, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.WebhookSubscription
	for rows.Next() {
		s := domain.WebhookSubscription{}
		if err := rows.Scan(&s.ID, &s.OrgID, &s.URL, &s.Secret, &s.Events, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook subscriptions: %w", err)
	}
	return subs, nil
}

// DeliveryRepo implements ports.WebhookDeliveryRepository.
type DeliveryRepo struct {
	pool Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(pool Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

const deliveryColumns = `id, subscription_id, org_id, event, payload, status, attempt_count,
		last_status, last_body, last_attempt_at, next_retry_at, created_at, updated_at`

// Create inserts a delivery row at fan-out time.
func (r *DeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `INSERT INTO webhook_deliveries (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.SubscriptionID, d.OrgID, d.Event, d.Payload, d.Status, d.AttemptCount,
		d.LastStatus, d.LastBody, d.LastAttemptAt, d.NextRetryAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// GetByID fetches a delivery row. Returns nil, nil when absent.
func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`

	d := &domain.WebhookDelivery{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.SubscriptionID, &d.OrgID, &d.Event, &d.Payload, &d.Status, &d.AttemptCount,
		&d.LastStatus, &d.LastBody, &d.LastAttemptAt, &d.NextRetryAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook delivery: %w", err)
	}
	return d, nil
}

// Update persists the delivery worker's mutations. Rows are never deleted;
// they are the audit trail.
func (r *DeliveryRepo) Update(ctx context.Context, d *domain.WebhookDelivery) error {
	d.UpdatedAt = time.Now().UTC()
	query := `UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2, last_status = $3, last_body = $4,
			last_attempt_at = $5, next_retry_at = $6, updated_at = $7
		WHERE id = $8`

	tag, err := r.pool.Exec(ctx, query,
		d.Status, d.AttemptCount, d.LastStatus, d.LastBody,
		d.LastAttemptAt, d.NextRetryAt, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook delivery not found: %s", d.ID)
	}
	return nil
}

// ListByOrg returns the most recent deliveries of an organization.
func (r *DeliveryRepo) ListByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE org_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var ds []domain.WebhookDelivery
	for rows.Next() {
		d := domain.WebhookDelivery{}
		if err := rows.Scan(
			&d.ID, &d.SubscriptionID, &d.OrgID, &d.Event, &d.Payload, &d.Status, &d.AttemptCount,
			&d.LastStatus, &d.LastBody, &d.LastAttemptAt, &d.NextRetryAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		ds = append(ds, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook deliveries: %w", err)
	}
	return ds, nil
}
