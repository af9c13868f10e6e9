package domain

import (
	"time"

	"github.com/google/uuid"
)

// LimitAction decides what happens when a daily/monthly document limit is hit.
type LimitAction string

const (
	LimitActionBlock    LimitAction = "block"
	LimitActionContinue LimitAction = "continue"
)

// CreditWallet is the prepaid balance of one organization. Balance is a cached
// projection of the credit transaction ledger; it is only mutated together
// with an appended CreditTransaction inside one database transaction.
type CreditWallet struct {
	ID           uuid.UUID   `json:"id"`
	OrgID        uuid.UUID   `json:"org_id"`
	Balance      int64       `json:"balance"` // credits in minor units
	Currency     string      `json:"currency"`
	DailyLimit   int64       `json:"daily_limit"`   // 0 = unlimited
	MonthlyLimit int64       `json:"monthly_limit"` // 0 = unlimited
	LimitAction  LimitAction `json:"limit_action"`

	AutoPurchaseEnabled   bool   `json:"auto_purchase_enabled"`
	AutoPurchaseThreshold int64  `json:"auto_purchase_threshold"`
	AutoPurchasePackage   int64  `json:"auto_purchase_package"` // credits per purchase
	PaymentTokenEnc       string `json:"-"`                     // stored payment token, never exposed

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreditTransactionType classifies a ledger entry.
type CreditTransactionType string

const (
	CreditTxTopUp      CreditTransactionType = "top_up"
	CreditTxDebit      CreditTransactionType = "debit"
	CreditTxRefund     CreditTransactionType = "refund"
	CreditTxAdjustment CreditTransactionType = "adjustment"
)

// CreditTransaction is an append-only ledger entry. Amount is always stored
// positive; SignedAmount applies the sign convention per type.
type CreditTransaction struct {
	ID        uuid.UUID             `json:"id"`
	WalletID  uuid.UUID             `json:"wallet_id"`
	OrgID     uuid.UUID             `json:"org_id"`
	Type      CreditTransactionType `json:"type"`
	Amount    int64                 `json:"amount"` // minor units, positive
	Metadata  map[string]string     `json:"metadata,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// SignedAmount returns the ledger delta this entry applies to the balance:
// top_up and refund add, debit subtracts, adjustment adds as stored.
func (t *CreditTransaction) SignedAmount() int64 {
	if t.Type == CreditTxDebit {
		return -t.Amount
	}
	return t.Amount
}

// DebitTarget identifies what a debit is charged for: either a concrete
// document or a bare organization (pool debits on the despatch path have no
// customer-side document).
type DebitTarget struct {
	orgID uuid.UUID
	docID *uuid.UUID
}

// DebitDocument targets a debit at a document owned by orgID.
func DebitDocument(orgID, docID uuid.UUID) DebitTarget {
	return DebitTarget{orgID: orgID, docID: &docID}
}

// DebitOrganization targets a debit at an organization with no document.
func DebitOrganization(orgID uuid.UUID) DebitTarget {
	return DebitTarget{orgID: orgID}
}

// OrgID returns the charged organization.
func (t DebitTarget) OrgID() uuid.UUID {
	return t.orgID
}

// DocumentID returns the document reference, if any.
func (t DebitTarget) DocumentID() (uuid.UUID, bool) {
	if t.docID == nil {
		return uuid.Nil, false
	}
	return *t.docID, true
}
