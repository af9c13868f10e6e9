package ports

import (
	"context"
	"time"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=services.go -destination=mocks/services_mocks.go -package=mocks

// ProviderSuccessCode is the normalized code the provider returns on accepted
// documents.
const ProviderSuccessCode = "000"

// SendResult is the normalized outcome of a provider send call.
type SendResult struct {
	Code        string // "000" on success
	Explanation string // raw provider explanation text
	Cause       string // transport-level cause, if any
}

// Accepted reports whether the provider accepted the document.
func (r *SendResult) Accepted() bool {
	return r.Code == ProviderSuccessCode
}

// ProviderSendRequest is the outbound payload handed to the provider client.
type ProviderSendRequest struct {
	DocID       string // provider-compatible document identifier
	ETTN        string
	Payload     []byte // built document body
	TargetAlias string // b2b urn/alias routing
	TargetEmail string // earchive routing
}

// ProviderClient is the opaque boundary to the external e-invoicing provider.
// Invoice/voucher sends return a normalized code; despatch sends collapse to a
// success/failure boolean. A returned error means the call itself failed
// (network, timeout) as opposed to a provider-side rejection.
type ProviderClient interface {
	SendDocument(ctx context.Context, req ProviderSendRequest) (*SendResult, error)
	SendDespatch(ctx context.Context, req ProviderSendRequest) (bool, error)
	Validate(ctx context.Context, payload []byte) error
}

// CounterStore is the small atomic-counter surface the circuit breaker and
// rate limiter run on. Implementations must make Incr atomic; the breaker's
// correctness depends on it under concurrent workers.
type CounterStore interface {
	// Incr atomically increments key and returns the new value. The TTL is
	// applied when the increment creates the key.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the counter value, 0 when the key does not exist.
	Get(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CircuitBreaker gates calls to a named external channel.
type CircuitBreaker interface {
	// Allow reports whether a call on the channel may proceed. A false return
	// means "do not attempt", not a failure of the call itself.
	Allow(ctx context.Context, channel string) (bool, error)
	RecordFailure(ctx context.Context, channel string) error
	RecordSuccess(ctx context.Context, channel string) error
}

// Queue is a named delayed job queue.
type Queue interface {
	Enqueue(ctx context.Context, job domain.Job) error
	EnqueueIn(ctx context.Context, job domain.Job, delay time.Duration) error
	// Dequeue claims the next due job on the queue, or nil when none is due.
	Dequeue(ctx context.Context, queue string) (*domain.Job, error)
}

// CreditLedger is the prepaid credit business logic.
type CreditLedger interface {
	HasSufficientCredits(ctx context.Context, orgID uuid.UUID, amount int64) (bool, error)
	// Debit appends a debit entry and decrements the cached balance atomically.
	Debit(ctx context.Context, target domain.DebitTarget, amount int64) (*domain.CreditTransaction, error)
	// DebitPool debits the platform-owned pool organization for provider-side
	// cost, independent of customer billing.
	DebitPool(ctx context.Context, docID uuid.UUID, amount int64) (*domain.CreditTransaction, error)
	TopUp(ctx context.Context, orgID uuid.UUID, amount int64, meta map[string]string) (*domain.CreditTransaction, error)
	Refund(ctx context.Context, orgID uuid.UUID, amount int64, meta map[string]string) (*domain.CreditTransaction, error)
	// EnforceLimits applies the daily/monthly document limits for a send that
	// the provider already accepted. bypassDebit=true means the customer debit
	// is skipped (limit_action=continue); a non-nil error aborts the send.
	EnforceLimits(ctx context.Context, doc *domain.Document) (bypassDebit bool, err error)
	// RunAutoPurchaseSweep charges stored payment tokens for wallets at or
	// below their auto-purchase threshold. Failures are logged, not retried.
	RunAutoPurchaseSweep(ctx context.Context) error
}

// PaymentCharger initiates a credit-package purchase against a stored payment
// token. External collaborator; failures surface as plain errors.
type PaymentCharger interface {
	Charge(ctx context.Context, orgID uuid.UUID, paymentTokenEnc string, credits int64) error
}

// WebhookFanout creates one delivery row per subscription listening on the
// event and enqueues a delivery job for each. Returns the fan-out count.
type WebhookFanout interface {
	Fanout(ctx context.Context, orgID uuid.UUID, event string, payload []byte) (int, error)
}

// WebhookSigner signs and verifies webhook payloads.
// The signature header has the form "t=<unix>,v1=<hex hmac-sha256>" where the
// MAC is computed over "<unix>.<raw-json-body>".
type WebhookSigner interface {
	Sign(secret string, ts int64, payload []byte) string
	Verify(secret string, header string, payload []byte, now time.Time, tolerance time.Duration) error
}

// PayloadBuilder deterministically builds the outbound provider payload from
// document and organization data. Pure with respect to its inputs.
type PayloadBuilder interface {
	Build(doc *domain.Document, org *domain.Organization) ([]byte, error)
}

// IdempotencyResult is the outcome of BeginOrReplay.
type IdempotencyResult struct {
	Replay   bool
	Status   int       // stored response status, when Replay
	Body     []byte    // stored response body, when Replay
	RecordID uuid.UUID // record to Complete, when !Replay
}

// IdempotencyCache is the fast replay path in front of the persisted
// idempotency records. Best-effort: errors and misses fall through to the DB.
type IdempotencyCache interface {
	// Get returns the cached response bytes, nil when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IdempotencyStore replays stored responses for repeated request keys.
type IdempotencyStore interface {
	BeginOrReplay(ctx context.Context, orgID uuid.UUID, key, method, path string, bodyHash string) (*IdempotencyResult, error)
	CompleteWithCacheKey(ctx context.Context, recordID uuid.UUID, orgID uuid.UUID, key string, status int, body []byte) error
}

// HashService handles API secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT token operations for org API sessions.
type TokenService interface {
	Generate(orgID uuid.UUID, apiKey string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OrgID  uuid.UUID
	APIKey string
}

// DispatchEnqueuer enqueues a first dispatch job for a freshly created
// document. Implemented by the scheduler, consumed by the API layer.
type DispatchEnqueuer interface {
	EnqueueDispatch(ctx context.Context, docID uuid.UUID) error
}
