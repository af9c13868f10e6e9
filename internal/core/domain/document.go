package domain

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// DocumentType represents the business document family.
type DocumentType string

const (
	DocumentTypeInvoice  DocumentType = "invoice"
	DocumentTypeVoucher  DocumentType = "voucher"
	DocumentTypeDespatch DocumentType = "despatch"
)

// DocumentProfile selects provider addressing: B2B documents are routed by
// urn/alias, e-archive documents are routed by customer email.
type DocumentProfile string

const (
	ProfileB2B      DocumentProfile = "b2b"
	ProfileEArchive DocumentProfile = "earchive"
)

// DocumentStatus represents the dispatch lifecycle state of a document.
type DocumentStatus string

const (
	DocumentStatusQueued     DocumentStatus = "queued"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusSent       DocumentStatus = "sent"
	DocumentStatusFailed     DocumentStatus = "failed"
	DocumentStatusCanceled   DocumentStatus = "canceled"
	DocumentStatusRetrying   DocumentStatus = "retrying"
)

// Metadata keys written by the dispatch worker.
const (
	MetaLastError   = "last_error"
	MetaProviderRaw = "provider_raw"
)

// DocumentItem is a single line of a document.
type DocumentItem struct {
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // minor units
	TaxRate   int64  `json:"tax_rate"`   // percent
}

// Document is a business document (invoice, voucher or despatch) owned by one
// organization. It is created by the API layer in queued state and mutated
// only by the dispatch worker afterwards.
type Document struct {
	ID            uuid.UUID         `json:"id"`
	OrgID         uuid.UUID         `json:"org_id"`
	ExternalID    string            `json:"external_id"`
	ETTN          string            `json:"ettn"`            // universally-unique transfer id
	ProviderDocID string            `json:"provider_doc_id"` // e.g. EFT2026000123456
	Type          DocumentType      `json:"type"`
	Profile       DocumentProfile   `json:"profile"`
	Status        DocumentStatus    `json:"status"`
	CustomerName  string            `json:"customer_name"`
	CustomerAlias string            `json:"customer_alias,omitempty"` // b2b urn/alias
	CustomerEmail string            `json:"customer_email,omitempty"` // earchive delivery
	Items         []DocumentItem    `json:"items"`
	TotalExclTax  int64             `json:"total_excl_tax"` // minor units
	TotalTax      int64             `json:"total_tax"`
	TotalInclTax  int64             `json:"total_incl_tax"`
	Currency      string            `json:"currency"`
	ProviderRef   *string           `json:"provider_ref,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	PrebuiltXML   []byte            `json:"-"` // pre-built payload, preferred when present
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
}

// IsTerminal returns true if the document reached a final state.
func (d *Document) IsTerminal() bool {
	return d.Status == DocumentStatusSent ||
		d.Status == DocumentStatusFailed ||
		d.Status == DocumentStatusCanceled
}

// Dispatchable returns true if the dispatch worker may process this document.
// Guards against duplicate job execution.
func (d *Document) Dispatchable() bool {
	return d.Status == DocumentStatusQueued || d.Status == DocumentStatusRetrying
}

// LastError is the structured error stored under metadata[MetaLastError].
type LastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// SetLastError records the latest failure reason in the metadata map so
// operators and the admin UI see it even mid-retry.
func (d *Document) SetLastError(le LastError) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]string)
	}
	b, _ := json.Marshal(le)
	d.Metadata[MetaLastError] = string(b)
}

// GetLastError decodes metadata[MetaLastError], if present.
func (d *Document) GetLastError() (LastError, bool) {
	raw, ok := d.Metadata[MetaLastError]
	if !ok {
		return LastError{}, false
	}
	var le LastError
	if err := json.Unmarshal([]byte(raw), &le); err != nil {
		return LastError{}, false
	}
	return le, true
}

// EventName returns the webhook event name for this document and outcome,
// e.g. "invoice.sent" or "despatch.failed".
func (d *Document) EventName(outcome string) string {
	return string(d.Type) + "." + outcome
}

// DeadLetterType returns the dead-letter type for this document family,
// e.g. "invoice.send".
func (d *Document) DeadLetterType() string {
	return string(d.Type) + ".send"
}

// NewETTN generates a universally-unique transfer identifier.
func NewETTN() string {
	return uuid.New().String()
}

// providerDocIDRe: 3-letter prefix, 4-digit year, 9 zero-padded digits.
var providerDocIDRe = regexp.MustCompile(`^[A-Z]{3}[0-9]{4}[0-9]{9}$`)

// ValidProviderDocID reports whether id matches the provider document id format.
func ValidProviderDocID(id string) bool {
	return providerDocIDRe.MatchString(id)
}

// NewProviderDocID assigns a provider-compatible document identifier:
// PREFIX + current year + 9 zero-padded random digits.
func NewProviderDocID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%04d%09d", prefix, now.Year(), rand.Int63n(1_000_000_000))
}
