package service

import (
	"context"
	"fmt"
	"time"

	"einvoice-dispatch/config"
	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CreditServiceImpl implements ports.CreditLedger. Every balance mutation
// locks the wallet row and appends a ledger entry in the same database
// transaction, so wallet.Balance always equals the signed ledger sum.
type CreditServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	docRepo    ports.DocumentRepository
	transactor ports.DBTransactor
	charger    ports.PaymentCharger
	poolOrgID  uuid.UUID
	now        func() time.Time
	log        zerolog.Logger
}

// NewCreditService creates a new CreditServiceImpl. cfg.PoolOrgID must parse
// as a UUID when pool debits are used.
func NewCreditService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	docRepo ports.DocumentRepository,
	transactor ports.DBTransactor,
	charger ports.PaymentCharger,
	cfg config.CreditsConfig,
	log zerolog.Logger,
) *CreditServiceImpl {
	poolOrgID, err := uuid.Parse(cfg.PoolOrgID)
	if err != nil {
		log.Warn().Str("pool_org_id", cfg.PoolOrgID).Msg("pool organization id not configured, pool debits will fail")
	}
	return &CreditServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		docRepo:    docRepo,
		transactor: transactor,
		charger:    charger,
		poolOrgID:  poolOrgID,
		now:        time.Now,
		log:        log,
	}
}

// HasSufficientCredits reports whether the organization's balance covers amount.
func (s *CreditServiceImpl) HasSufficientCredits(ctx context.Context, orgID uuid.UUID, amount int64) (bool, error) {
	wallet, err := s.walletRepo.GetByOrgID(ctx, orgID)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return false, apperror.ErrNotFound("wallet")
	}
	return wallet.Balance >= amount, nil
}

// Debit appends a debit entry and decrements the cached balance atomically.
func (s *CreditServiceImpl) Debit(ctx context.Context, target domain.DebitTarget, amount int64) (*domain.CreditTransaction, error) {
	meta := map[string]string{}
	if docID, ok := target.DocumentID(); ok {
		meta["document_id"] = docID.String()
	}
	return s.apply(ctx, target.OrgID(), domain.CreditTxDebit, amount, meta)
}

// DebitPool debits the platform-owned pool organization for provider-side
// cost, independent of customer billing.
func (s *CreditServiceImpl) DebitPool(ctx context.Context, docID uuid.UUID, amount int64) (*domain.CreditTransaction, error) {
	if s.poolOrgID == uuid.Nil {
		return nil, apperror.InternalError(fmt.Errorf("pool organization id not configured"))
	}
	return s.apply(ctx, s.poolOrgID, domain.CreditTxDebit, amount, map[string]string{
		"document_id": docID.String(),
		"pool":        "true",
	})
}

// TopUp appends a top-up entry and increments the cached balance.
func (s *CreditServiceImpl) TopUp(ctx context.Context, orgID uuid.UUID, amount int64, meta map[string]string) (*domain.CreditTransaction, error) {
	return s.apply(ctx, orgID, domain.CreditTxTopUp, amount, meta)
}

// Refund appends a refund entry and increments the cached balance.
func (s *CreditServiceImpl) Refund(ctx context.Context, orgID uuid.UUID, amount int64, meta map[string]string) (*domain.CreditTransaction, error) {
	return s.apply(ctx, orgID, domain.CreditTxRefund, amount, meta)
}

// apply locks the wallet, appends one ledger entry and writes the new cached
// balance inside a single transaction.
func (s *CreditServiceImpl) apply(ctx context.Context, orgID uuid.UUID, txType domain.CreditTransactionType, amount int64, meta map[string]string) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByOrgIDForUpdate(ctx, dbTx, orgID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	entry := &domain.CreditTransaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		OrgID:     orgID,
		Type:      txType,
		Amount:    amount,
		Metadata:  meta,
		CreatedAt: s.now().UTC(),
	}

	newBalance := wallet.Balance + entry.SignedAmount()
	if newBalance < 0 {
		return nil, apperror.ErrInsufficientCredits()
	}

	if err := s.ledgerRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("append ledger entry: %w", err))
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update balance: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit: %w", err))
	}

	s.log.Info().
		Str("org_id", orgID.String()).
		Str("type", string(txType)).
		Int64("amount", amount).
		Int64("balance", newBalance).
		Msg("ledger entry applied")

	return entry, nil
}

// EnforceLimits applies the daily/monthly sent-document limits for a send the
// provider already accepted. bypassDebit=true means the customer debit is
// skipped (limit_action=continue); a non-nil error aborts the send.
func (s *CreditServiceImpl) EnforceLimits(ctx context.Context, doc *domain.Document) (bool, error) {
	wallet, err := s.walletRepo.GetByOrgID(ctx, doc.OrgID)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return false, apperror.ErrNotFound("wallet")
	}

	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	if exceeded, err := s.limitHit(ctx, doc.OrgID, wallet.DailyLimit, startOfDay); err != nil {
		return false, err
	} else if exceeded {
		if wallet.LimitAction == domain.LimitActionContinue {
			s.log.Warn().Str("org_id", doc.OrgID.String()).Str("document_id", doc.ID.String()).
				Msg("daily limit reached, continuing without customer debit")
			return true, nil
		}
		return false, apperror.ErrDailyLimitExceeded()
	}

	if exceeded, err := s.limitHit(ctx, doc.OrgID, wallet.MonthlyLimit, startOfMonth); err != nil {
		return false, err
	} else if exceeded {
		if wallet.LimitAction == domain.LimitActionContinue {
			s.log.Warn().Str("org_id", doc.OrgID.String()).Str("document_id", doc.ID.String()).
				Msg("monthly limit reached, continuing without customer debit")
			return true, nil
		}
		return false, apperror.ErrMonthlyLimitExceeded()
	}

	return false, nil
}

func (s *CreditServiceImpl) limitHit(ctx context.Context, orgID uuid.UUID, limit int64, since time.Time) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	count, err := s.docRepo.CountSentSince(ctx, orgID, since)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("count sent documents: %w", err))
	}
	return count >= limit, nil
}

// RunAutoPurchaseSweep charges stored payment tokens for wallets at or below
// their auto-purchase threshold. Charge failures are logged and skipped; the
// next sweep will pick the wallet up again.
func (s *CreditServiceImpl) RunAutoPurchaseSweep(ctx context.Context) error {
	wallets, err := s.walletRepo.ListAutoPurchaseCandidates(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("list auto-purchase candidates: %w", err))
	}

	for _, w := range wallets {
		if w.PaymentTokenEnc == "" {
			s.log.Warn().Str("org_id", w.OrgID.String()).Msg("auto-purchase enabled but no payment token stored")
			continue
		}
		if err := s.charger.Charge(ctx, w.OrgID, w.PaymentTokenEnc, w.AutoPurchasePackage); err != nil {
			s.log.Warn().Err(err).Str("org_id", w.OrgID.String()).Msg("auto-purchase charge failed")
			continue
		}
		if _, err := s.TopUp(ctx, w.OrgID, w.AutoPurchasePackage, map[string]string{"source": "auto_purchase"}); err != nil {
			s.log.Error().Err(err).Str("org_id", w.OrgID.String()).Msg("auto-purchase top-up failed after successful charge")
			continue
		}
		s.log.Info().Str("org_id", w.OrgID.String()).Int64("credits", w.AutoPurchasePackage).Msg("auto-purchase completed")
	}
	return nil
}
