package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses and to the
// machine-readable error codes stored in document metadata.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Security & Authentication (SEC) ----

func ErrInvalidAPIKey() *AppError {
	return New("SEC_001", "Invalid API key", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("SEC_002", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrOrganizationSuspended() *AppError {
	return New("SEC_003", "Organization is suspended", http.StatusForbidden)
}

// ---- Credit Ledger (CRD) ----

func ErrInsufficientCredits() *AppError {
	return New("CRD_001", "Insufficient credits in wallet", http.StatusPaymentRequired)
}

func ErrDailyLimitExceeded() *AppError {
	return New("CRD_002", "daily_limit_exceeded", http.StatusUnprocessableEntity)
}

func ErrMonthlyLimitExceeded() *AppError {
	return New("CRD_003", "monthly_limit_exceeded", http.StatusUnprocessableEntity)
}

func ErrInvalidAmount() *AppError {
	return New("CRD_004", "Invalid credit amount", http.StatusBadRequest)
}

// ---- Document Dispatch (DOC) ----

func ErrNotFound(entity string) *AppError {
	return New("DOC_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrDocumentNotDispatchable(status string) *AppError {
	return New("DOC_002", fmt.Sprintf("document not dispatchable in status %s", status), http.StatusConflict)
}

func ErrInvalidDocumentID(id string) *AppError {
	return New("DOC_003", fmt.Sprintf("malformed provider document id %q", id), http.StatusUnprocessableEntity)
}

func ErrCircuitOpen(channel string) *AppError {
	return Wrap("DOC_004", "Circuit breaker open", http.StatusServiceUnavailable,
		fmt.Errorf("channel %s", channel))
}

func ErrProviderRejected(code, message string) *AppError {
	return New("DOC_005", fmt.Sprintf("provider rejected document (%s): %s", code, message), http.StatusBadGateway)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("DOC_006", message, http.StatusBadRequest)
}

// ---- Webhooks (WHK) ----

func ErrSubscriptionNotFound() *AppError {
	return New("WHK_001", "subscription not found", http.StatusNotFound)
}

// ---- Idempotency (IDM) ----

func ErrIdempotencyKeyMissing() *AppError {
	return New("IDM_001", "X-Idempotency-Key header is required", http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrQueueError(err error) *AppError {
	return Wrap("SYS_002", "Job queue error", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
