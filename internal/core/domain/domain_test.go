package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDocument_Dispatchable(t *testing.T) {
	tests := []struct {
		name   string
		status DocumentStatus
		want   bool
	}{
		{"queued", DocumentStatusQueued, true},
		{"retrying", DocumentStatusRetrying, true},
		{"processing", DocumentStatusProcessing, false},
		{"sent", DocumentStatusSent, false},
		{"failed", DocumentStatusFailed, false},
		{"canceled", DocumentStatusCanceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Document{Status: tt.status}
			assert.Equal(t, tt.want, d.Dispatchable())
		})
	}
}

func TestDocument_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status DocumentStatus
		want   bool
	}{
		{"queued", DocumentStatusQueued, false},
		{"retrying", DocumentStatusRetrying, false},
		{"sent", DocumentStatusSent, true},
		{"failed", DocumentStatusFailed, true},
		{"canceled", DocumentStatusCanceled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Document{Status: tt.status}
			assert.Equal(t, tt.want, d.IsTerminal())
		})
	}
}

func TestDocument_LastErrorRoundTrip(t *testing.T) {
	d := &Document{}
	d.SetLastError(LastError{Code: "105", Message: "schema error", Cause: "raw soap fault"})

	le, ok := d.GetLastError()
	assert.True(t, ok)
	assert.Equal(t, "105", le.Code)
	assert.Equal(t, "schema error", le.Message)
	assert.Equal(t, "raw soap fault", le.Cause)
}

func TestDocument_GetLastError_Missing(t *testing.T) {
	d := &Document{}
	_, ok := d.GetLastError()
	assert.False(t, ok)
}

func TestDocument_EventAndDeadLetterNames(t *testing.T) {
	d := &Document{Type: DocumentTypeInvoice}
	assert.Equal(t, "invoice.sent", d.EventName("sent"))
	assert.Equal(t, "invoice.failed", d.EventName("failed"))
	assert.Equal(t, "invoice.send", d.DeadLetterType())

	d.Type = DocumentTypeDespatch
	assert.Equal(t, "despatch.sent", d.EventName("sent"))
}

func TestProviderDocID_Format(t *testing.T) {
	id := NewProviderDocID("EFT", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Len(t, id, 16)
	assert.True(t, ValidProviderDocID(id), "generated id must validate: %s", id)
	assert.Equal(t, "EFT2026", id[:7])
}

func TestValidProviderDocID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"EFT2026000000001", true},
		{"ABC1999123456789", true},
		{"EF2026000000001", false},   // 2-letter prefix
		{"EFT2026-00000001", false},  // non-digit
		{"eft2026000000001", false},  // lowercase
		{"EFT202600000001", false},   // too short
		{"EFT20260000000012", false}, // too long
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidProviderDocID(tt.id))
		})
	}
}

func TestCreditTransaction_SignedAmount(t *testing.T) {
	tests := []struct {
		txType CreditTransactionType
		amount int64
		want   int64
	}{
		{CreditTxTopUp, 100, 100},
		{CreditTxRefund, 50, 50},
		{CreditTxAdjustment, 25, 25},
		{CreditTxDebit, 10, -10},
	}

	for _, tt := range tests {
		t.Run(string(tt.txType), func(t *testing.T) {
			tx := &CreditTransaction{Type: tt.txType, Amount: tt.amount}
			assert.Equal(t, tt.want, tx.SignedAmount())
		})
	}
}

func TestDebitTarget(t *testing.T) {
	orgID := uuid.New()
	docID := uuid.New()

	dt := DebitDocument(orgID, docID)
	assert.Equal(t, orgID, dt.OrgID())
	got, ok := dt.DocumentID()
	assert.True(t, ok)
	assert.Equal(t, docID, got)

	ot := DebitOrganization(orgID)
	assert.Equal(t, orgID, ot.OrgID())
	_, ok = ot.DocumentID()
	assert.False(t, ok)
}

func TestIdempotencyRecord_Completed(t *testing.T) {
	r := &IdempotencyRecord{}
	assert.False(t, r.Completed())

	status := 202
	r.ResponseStatus = &status
	assert.True(t, r.Completed())
}

func TestIdempotencyRecord_Expired(t *testing.T) {
	now := time.Now().UTC()
	r := &IdempotencyRecord{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, r.Expired(now))
	assert.True(t, r.Expired(now.Add(2*time.Hour)))
}

func TestHashBody_Deterministic(t *testing.T) {
	a := HashBody([]byte(`{"type":"invoice"}`))
	b := HashBody([]byte(`{"type":"invoice"}`))
	c := HashBody([]byte(`{"type":"voucher"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestWebhookSubscription_Listens(t *testing.T) {
	s := &WebhookSubscription{Events: []string{"invoice.sent", "invoice.failed"}}
	assert.True(t, s.Listens("invoice.sent"))
	assert.False(t, s.Listens("despatch.sent"))
}

func TestWebhookDelivery_Deliverable(t *testing.T) {
	tests := []struct {
		status WebhookDeliveryStatus
		want   bool
	}{
		{DeliveryStatusPending, true},
		{DeliveryStatusRetrying, true},
		{DeliveryStatusSent, false},
		{DeliveryStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			d := &WebhookDelivery{Status: tt.status}
			assert.Equal(t, tt.want, d.Deliverable())
		})
	}
}

func TestTruncateResponseBody(t *testing.T) {
	short := "ok"
	assert.Equal(t, short, TruncateResponseBody(short))

	long := make([]byte, MaxStoredResponseBody+100)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, TruncateResponseBody(string(long)), MaxStoredResponseBody)
}

func TestOutcome_Kinds(t *testing.T) {
	ok := Success()
	assert.True(t, ok.IsSuccess())
	assert.False(t, ok.IsRetryable())
	assert.False(t, ok.IsFatal())

	retry := RetryableFailure(30*time.Second, errors.New("provider timeout"))
	assert.True(t, retry.IsRetryable())
	assert.Equal(t, 30*time.Second, retry.Delay)

	fatal := FatalFailure(errors.New("circuit open"))
	assert.True(t, fatal.IsFatal())
	assert.Error(t, fatal.Err)
}

func TestJob_Retry(t *testing.T) {
	j := NewJob(QueueDispatch, uuid.New())
	assert.Equal(t, 1, j.Attempt)

	r := j.Retry()
	assert.Equal(t, 2, r.Attempt)
	assert.Equal(t, j.ReferenceID, r.ReferenceID)
	assert.NotEqual(t, j.ID, r.ID)
	// Original is unchanged (value semantics).
	assert.Equal(t, 1, j.Attempt)
}
