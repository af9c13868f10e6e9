package handler

import (
	"time"

	"einvoice-dispatch/internal/adapter/http/dto"
	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"
	"einvoice-dispatch/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreditHandler handles credit balance, top-up and transaction reads.
type CreditHandler struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	ledger     ports.CreditLedger
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(walletRepo ports.WalletRepository, ledgerRepo ports.LedgerRepository, ledger ports.CreditLedger) *CreditHandler {
	return &CreditHandler{walletRepo: walletRepo, ledgerRepo: ledgerRepo, ledger: ledger}
}

// GetBalance handles GET /api/v1/credits/balance.
func (h *CreditHandler) GetBalance(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	wallet, err := h.walletRepo.GetByOrgID(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if wallet == nil {
		response.Error(c, apperror.ErrNotFound("wallet"))
		return
	}

	response.OK(c, dto.BalanceResponse{Balance: wallet.Balance})
}

// TopUp handles POST /api/v1/credits/topup.
func (h *CreditHandler) TopUp(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	var req dto.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	tx, err := h.ledger.TopUp(c.Request.Context(), orgID, req.Amount, map[string]string{"source": "api"})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(tx))
}

// ListTransactions handles GET /api/v1/credits/transactions.
func (h *CreditHandler) ListTransactions(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	wallet, err := h.walletRepo.GetByOrgID(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if wallet == nil {
		response.Error(c, apperror.ErrNotFound("wallet"))
		return
	}

	limit := parseIntDefault(c.Query("limit"), 50)
	if limit > 200 {
		limit = 200
	}

	txs, err := h.ledgerRepo.ListByWallet(c.Request.Context(), wallet.ID, limit)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	items := make([]dto.CreditTransactionResponse, 0, len(txs))
	for i := range txs {
		items = append(items, toTransactionResponse(&txs[i]))
	}
	response.OK(c, items)
}

func toTransactionResponse(tx *domain.CreditTransaction) dto.CreditTransactionResponse {
	return dto.CreditTransactionResponse{
		ID:        tx.ID.String(),
		Type:      string(tx.Type),
		Amount:    tx.Amount,
		Metadata:  tx.Metadata,
		CreatedAt: tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}
