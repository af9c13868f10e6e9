package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("CRD_001", "Insufficient credits in wallet", http.StatusPaymentRequired),
			expected: "[CRD_001] Insufficient credits in wallet",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("DOC_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestLedgerErrors(t *testing.T) {
	tests := []struct {
		name       string
		appErr     *AppError
		wantCode   string
		wantStatus int
	}{
		{"insufficient credits", ErrInsufficientCredits(), "CRD_001", http.StatusPaymentRequired},
		{"daily limit", ErrDailyLimitExceeded(), "CRD_002", http.StatusUnprocessableEntity},
		{"monthly limit", ErrMonthlyLimitExceeded(), "CRD_003", http.StatusUnprocessableEntity},
		{"invalid amount", ErrInvalidAmount(), "CRD_004", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.appErr.Code)
			assert.Equal(t, tt.wantStatus, tt.appErr.HTTPStatus)
		})
	}
}

func TestDispatchErrors(t *testing.T) {
	assert.Equal(t, "DOC_001", ErrNotFound("document").Code)
	assert.Contains(t, ErrNotFound("document").Message, "document not found")

	assert.Equal(t, "DOC_002", ErrDocumentNotDispatchable("sent").Code)
	assert.Equal(t, http.StatusConflict, ErrDocumentNotDispatchable("sent").HTTPStatus)

	circuitErr := ErrCircuitOpen("kolaysoft:sendDocument")
	assert.Equal(t, "DOC_004", circuitErr.Code)
	assert.Equal(t, "Circuit breaker open", circuitErr.Message)
	assert.Contains(t, circuitErr.Error(), "kolaysoft:sendDocument")

	assert.Equal(t, http.StatusBadGateway, ErrProviderRejected("105", "schema error").HTTPStatus)
}

func TestDailyLimitMessageIsMachineReadable(t *testing.T) {
	// The admin UI matches on this exact string in metadata.last_error.
	assert.Equal(t, "daily_limit_exceeded", ErrDailyLimitExceeded().Message)
	assert.Equal(t, "monthly_limit_exceeded", ErrMonthlyLimitExceeded().Message)
}
