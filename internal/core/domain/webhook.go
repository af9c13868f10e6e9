package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookSubscription registers one subscriber endpoint of an organization for
// a set of event names.
type WebhookSubscription struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"` // HMAC signing secret, never exposed
	Events    []string  `json:"events"`
	CreatedAt time.Time `json:"created_at"`
}

// Listens reports whether the subscription wants the given event.
func (s *WebhookSubscription) Listens(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookDeliveryStatus is the lifecycle state of one delivery.
type WebhookDeliveryStatus string

const (
	DeliveryStatusPending  WebhookDeliveryStatus = "pending"
	DeliveryStatusRetrying WebhookDeliveryStatus = "retrying"
	DeliveryStatusSent     WebhookDeliveryStatus = "sent"
	DeliveryStatusFailed   WebhookDeliveryStatus = "failed"
)

// MaxStoredResponseBody caps the subscriber response body kept on the row.
const MaxStoredResponseBody = 4000

// WebhookDelivery is one (subscription x event) delivery attempt record,
// created at fan-out time and mutated only by the delivery worker. Rows are
// never deleted; they are the audit trail.
type WebhookDelivery struct {
	ID             uuid.UUID             `json:"id"`
	SubscriptionID uuid.UUID             `json:"subscription_id"`
	OrgID          uuid.UUID             `json:"org_id"`
	Event          string                `json:"event"`
	Payload        []byte                `json:"payload"` // JSON snapshot at fan-out time
	Status         WebhookDeliveryStatus `json:"status"`
	AttemptCount   int                   `json:"attempt_count"`
	LastStatus     *int                  `json:"last_status,omitempty"`
	LastBody       *string               `json:"last_body,omitempty"`
	LastAttemptAt  *time.Time            `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time            `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Deliverable returns true if the delivery worker may attempt this row.
func (d *WebhookDelivery) Deliverable() bool {
	return d.Status == DeliveryStatusPending || d.Status == DeliveryStatusRetrying
}

// TruncateResponseBody enforces the stored-body cap.
func TruncateResponseBody(body string) string {
	if len(body) > MaxStoredResponseBody {
		return body[:MaxStoredResponseBody]
	}
	return body
}
