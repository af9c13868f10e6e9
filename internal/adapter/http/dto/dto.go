package dto

// TokenRequest is the request body for the API token exchange.
type TokenRequest struct {
	APIKey    string `json:"api_key" binding:"required,safe_id"`
	APISecret string `json:"api_secret" binding:"required,min=16,max=128"`
}

// TokenResponse is the response body for a successful token exchange.
type TokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// DocumentItemRequest is one line of a submitted document.
type DocumentItemRequest struct {
	Name      string `json:"name" binding:"required,max=200"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0"`
	UnitPrice int64  `json:"unit_price" binding:"required,gt=0"`
	TaxRate   int64  `json:"tax_rate" binding:"gte=0,lte=100"`
}

// CreateDocumentRequest is the request body for document submission.
type CreateDocumentRequest struct {
	ExternalID    string                `json:"external_id" binding:"required,max=100,safe_id"`
	Type          string                `json:"type" binding:"required,oneof=invoice voucher despatch"`
	Profile       string                `json:"profile" binding:"required,oneof=b2b earchive"`
	CustomerName  string                `json:"customer_name" binding:"required,max=200"`
	CustomerAlias string                `json:"customer_alias,omitempty" binding:"omitempty,max=200"`
	CustomerEmail string                `json:"customer_email,omitempty" binding:"omitempty,email"`
	Items         []DocumentItemRequest `json:"items" binding:"omitempty,dive"`
	Currency      string                `json:"currency" binding:"required,len=3"`
	PrebuiltXML   string                `json:"prebuilt_xml,omitempty"` // base64
}

// DocumentResponse is the response body for document reads.
type DocumentResponse struct {
	ID            string            `json:"id"`
	ExternalID    string            `json:"external_id"`
	ETTN          string            `json:"ettn,omitempty"`
	ProviderDocID string            `json:"provider_doc_id,omitempty"`
	Type          string            `json:"type"`
	Profile       string            `json:"profile"`
	Status        string            `json:"status"`
	CustomerName  string            `json:"customer_name"`
	TotalExclTax  int64             `json:"total_excl_tax"`
	TotalTax      int64             `json:"total_tax"`
	TotalInclTax  int64             `json:"total_incl_tax"`
	Currency      string            `json:"currency"`
	ProviderRef   *string           `json:"provider_ref,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"created_at"`
	SentAt        *string           `json:"sent_at,omitempty"`
}

// DocumentListResponse wraps a paginated document list.
type DocumentListResponse struct {
	Items      []DocumentResponse `json:"items"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}

// CreateSubscriptionRequest is the request body for webhook registration.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url" binding:"required,safe_url"`
	Secret string   `json:"secret" binding:"required,min=16,max=128"`
	Events []string `json:"events" binding:"required,min=1,dive,max=50"`
}

// SubscriptionResponse is the response body for webhook subscription reads.
type SubscriptionResponse struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	CreatedAt string   `json:"created_at"`
}

// DeliveryResponse is the response body for webhook delivery reads.
type DeliveryResponse struct {
	ID             string  `json:"id"`
	SubscriptionID string  `json:"subscription_id"`
	Event          string  `json:"event"`
	Status         string  `json:"status"`
	AttemptCount   int     `json:"attempt_count"`
	LastStatus     *int    `json:"last_status,omitempty"`
	LastAttemptAt  *string `json:"last_attempt_at,omitempty"`
	NextRetryAt    *string `json:"next_retry_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// TopUpRequest is the request body for a credit purchase.
type TopUpRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// BalanceResponse is the response for the credit balance query.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// CreditTransactionResponse is one ledger entry.
type CreditTransactionResponse struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Amount    int64             `json:"amount"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// DeadLetterResponse is one dead-letter row in the admin listing.
type DeadLetterResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id"`
	Queue       string `json:"queue"`
	Error       string `json:"error"`
	Payload     string `json:"payload"`
	CreatedAt   string `json:"created_at"`
}
