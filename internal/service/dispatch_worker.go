package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"einvoice-dispatch/config"
	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultBackoff is the retry schedule used when configuration leaves it empty.
var defaultBackoff = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
	600 * time.Second,
}

// DispatchWorker executes one dispatch attempt for a document and reports the
// outcome. It never sleeps to retry; a retryable failure carries the backoff
// delay and the scheduler re-enqueues.
type DispatchWorker struct {
	docRepo  ports.DocumentRepository
	orgRepo  ports.OrganizationRepository
	provider ports.ProviderClient
	breaker  ports.CircuitBreaker
	ledger   ports.CreditLedger
	fanout   ports.WebhookFanout
	dlRepo   ports.DeadLetterRepository
	builder  ports.PayloadBuilder

	// mapError resolves a provider rejection to a user-facing message.
	mapError func(code, explanation string) string

	maxTries    int
	backoff     []time.Duration
	idPrefix    string
	preValidate bool
	docCosts    map[string]int64
	now         func() time.Time
	log         zerolog.Logger
}

// NewDispatchWorker creates a dispatch worker.
func NewDispatchWorker(
	docRepo ports.DocumentRepository,
	orgRepo ports.OrganizationRepository,
	provider ports.ProviderClient,
	breaker ports.CircuitBreaker,
	ledger ports.CreditLedger,
	fanout ports.WebhookFanout,
	dlRepo ports.DeadLetterRepository,
	builder ports.PayloadBuilder,
	mapError func(code, explanation string) string,
	dispatchCfg config.DispatchConfig,
	creditsCfg config.CreditsConfig,
	providerCfg config.ProviderConfig,
	log zerolog.Logger,
) *DispatchWorker {
	backoff := dispatchCfg.Backoff
	if len(backoff) == 0 {
		backoff = defaultBackoff
	}
	maxTries := dispatchCfg.MaxTries
	if maxTries <= 0 {
		maxTries = 5
	}
	return &DispatchWorker{
		docRepo:     docRepo,
		orgRepo:     orgRepo,
		provider:    provider,
		breaker:     breaker,
		ledger:      ledger,
		fanout:      fanout,
		dlRepo:      dlRepo,
		builder:     builder,
		mapError:    mapError,
		maxTries:    maxTries,
		backoff:     backoff,
		idPrefix:    dispatchCfg.IDPrefix,
		preValidate: providerCfg.PreValidate,
		docCosts:    creditsCfg.DocCosts,
		now:         time.Now,
		log:         log,
	}
}

// Process runs one dispatch attempt for the job's document.
func (w *DispatchWorker) Process(ctx context.Context, job domain.Job) domain.Outcome {
	log := w.log.With().Str("document_id", job.ReferenceID.String()).Int("attempt", job.Attempt).Logger()

	doc, err := w.docRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("load document: %w", err))
	}
	if doc == nil {
		log.Warn().Msg("document vanished, dropping job")
		return domain.Success()
	}
	if !doc.Dispatchable() {
		log.Info().Str("status", string(doc.Status)).Msg("document not dispatchable, dropping job")
		return domain.Success()
	}

	// Assign identifiers and persist them before any outbound call, so a
	// crash between send and update does not lose the provider document id.
	if err := w.ensureIdentifiers(ctx, doc); err != nil {
		return w.failNoRetry(ctx, doc, job, err, nil)
	}

	org, err := w.orgRepo.GetByID(ctx, doc.OrgID)
	if err != nil {
		return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("load organization: %w", err))
	}
	if org == nil {
		return w.failNoRetry(ctx, doc, job, apperror.ErrNotFound("organization"), nil)
	}

	if doc.Type == domain.DocumentTypeDespatch {
		return w.sendDespatch(ctx, doc, org, job, log)
	}
	return w.sendDocument(ctx, doc, org, job, log)
}

// ensureIdentifiers assigns ETTN and provider document id when absent and
// validates the id format.
func (w *DispatchWorker) ensureIdentifiers(ctx context.Context, doc *domain.Document) error {
	changed := false
	if doc.ETTN == "" {
		doc.ETTN = domain.NewETTN()
		changed = true
	}
	if doc.ProviderDocID == "" {
		doc.ProviderDocID = domain.NewProviderDocID(w.idPrefix, w.now())
		changed = true
	}
	if !domain.ValidProviderDocID(doc.ProviderDocID) {
		return apperror.ErrInvalidDocumentID(doc.ProviderDocID)
	}
	if changed {
		if err := w.docRepo.Update(ctx, doc); err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("persist identifiers: %w", err))
		}
	}
	return nil
}

// sendDocument is the invoice/voucher path with code-based provider results.
func (w *DispatchWorker) sendDocument(ctx context.Context, doc *domain.Document, org *domain.Organization, job domain.Job, log zerolog.Logger) domain.Outcome {
	payload := doc.PrebuiltXML
	if len(payload) == 0 {
		built, err := w.builder.Build(doc, org)
		if err != nil {
			// Malformed documents fail without consuming a provider call.
			return w.failNoRetry(ctx, doc, job, apperror.Validation(err.Error()), nil)
		}
		payload = built
	}

	if w.preValidate {
		if err := w.provider.Validate(ctx, payload); err != nil {
			return w.failNoRetry(ctx, doc, job, apperror.Validation(err.Error()), payload)
		}
	}

	allowed, err := w.breaker.Allow(ctx, ChannelSendDocument)
	if err != nil {
		return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("breaker check: %w", err))
	}
	if !allowed {
		log.Warn().Str("channel", ChannelSendDocument).Msg("Circuit breaker open")
		return w.failNoRetry(ctx, doc, job, apperror.ErrCircuitOpen(ChannelSendDocument), payload)
	}

	res, err := w.provider.SendDocument(ctx, ports.ProviderSendRequest{
		DocID:       doc.ProviderDocID,
		ETTN:        doc.ETTN,
		Payload:     payload,
		TargetAlias: w.targetAlias(doc, org),
		TargetEmail: w.targetEmail(doc),
	})
	if err != nil {
		_ = w.breaker.RecordFailure(ctx, ChannelSendDocument)
		le := domain.LastError{Code: "SYS_002", Message: "provider unreachable", Cause: err.Error()}
		return w.retryOrFail(ctx, doc, job, le, err, payload, nil)
	}

	if res.Accepted() {
		if err := w.breaker.RecordSuccess(ctx, ChannelSendDocument); err != nil {
			log.Warn().Err(err).Msg("breaker success record failed")
		}
		return w.settle(ctx, doc, job, res.Explanation, payload, log)
	}

	_ = w.breaker.RecordFailure(ctx, ChannelSendDocument)
	le := domain.LastError{
		Code:    res.Code,
		Message: w.mapError(res.Code, res.Explanation),
		Cause:   res.Explanation,
	}
	rawResp, _ := json.Marshal(res)
	return w.retryOrFail(ctx, doc, job, le, apperror.ErrProviderRejected(res.Code, le.Message), payload, rawResp)
}

// sendDespatch is the despatch path: no payload building, no error mapping,
// a plain accepted/rejected flag from the provider.
func (w *DispatchWorker) sendDespatch(ctx context.Context, doc *domain.Document, org *domain.Organization, job domain.Job, log zerolog.Logger) domain.Outcome {
	allowed, err := w.breaker.Allow(ctx, ChannelSendDespatch)
	if err != nil {
		return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("breaker check: %w", err))
	}
	if !allowed {
		log.Warn().Str("channel", ChannelSendDespatch).Msg("Circuit breaker open")
		return w.failNoRetry(ctx, doc, job, apperror.ErrCircuitOpen(ChannelSendDespatch), doc.PrebuiltXML)
	}

	ok, err := w.provider.SendDespatch(ctx, ports.ProviderSendRequest{
		DocID:       doc.ProviderDocID,
		ETTN:        doc.ETTN,
		Payload:     doc.PrebuiltXML,
		TargetAlias: w.targetAlias(doc, org),
	})
	if err != nil {
		_ = w.breaker.RecordFailure(ctx, ChannelSendDespatch)
		le := domain.LastError{Code: "SYS_002", Message: "provider unreachable", Cause: err.Error()}
		return w.retryOrFail(ctx, doc, job, le, err, doc.PrebuiltXML, nil)
	}
	if !ok {
		_ = w.breaker.RecordFailure(ctx, ChannelSendDespatch)
		le := domain.LastError{Code: "DOC_005", Message: "provider rejected despatch"}
		return w.retryOrFail(ctx, doc, job, le, errors.New("provider rejected despatch"), doc.PrebuiltXML, nil)
	}

	if err := w.breaker.RecordSuccess(ctx, ChannelSendDespatch); err != nil {
		log.Warn().Err(err).Msg("breaker success record failed")
	}
	return w.settle(ctx, doc, job, "", doc.PrebuiltXML, log)
}

// settle runs the post-acceptance path shared by both families: limits,
// customer debit, pool debit, sent transition and fan-out.
func (w *DispatchWorker) settle(ctx context.Context, doc *domain.Document, job domain.Job, providerRef string, payload []byte, log zerolog.Logger) domain.Outcome {
	if providerRef != "" {
		doc.ProviderRef = &providerRef
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string)
		}
		doc.Metadata[domain.MetaProviderRaw] = providerRef
	}

	bypassDebit, err := w.ledger.EnforceLimits(ctx, doc)
	if err != nil {
		// The provider accepted but the limit blocks: failed, dead-lettered,
		// and the customer wallet is left untouched.
		return w.failNoRetry(ctx, doc, job, err, payload)
	}

	cost := w.costFor(doc.Type)
	if bypassDebit {
		log.Warn().Msg("limit action continue, skipping customer debit")
	} else {
		if _, err := w.ledger.Debit(ctx, domain.DebitDocument(doc.OrgID, doc.ID), cost); err != nil {
			return w.failNoRetry(ctx, doc, job, err, payload)
		}
	}

	// Pool debit tracks provider-side cost; a failure is logged, never
	// blocks the send that already happened.
	if _, err := w.ledger.DebitPool(ctx, doc.ID, cost); err != nil {
		log.Error().Err(err).Msg("pool debit failed")
	}

	now := w.now().UTC()
	doc.Status = domain.DocumentStatusSent
	doc.SentAt = &now
	if err := w.docRepo.Update(ctx, doc); err != nil {
		return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("persist sent status: %w", err))
	}

	w.notify(ctx, doc, doc.EventName("sent"), "")
	log.Info().Str("provider_doc_id", doc.ProviderDocID).Msg("document sent")
	return domain.Success()
}

// retryOrFail implements the transient-failure branch: schedule a retry while
// attempts remain, otherwise fail with a dead letter and failure fan-out.
func (w *DispatchWorker) retryOrFail(ctx context.Context, doc *domain.Document, job domain.Job, le domain.LastError, cause error, payload, rawResponse []byte) domain.Outcome {
	doc.SetLastError(le)

	if job.Attempt < w.maxTries {
		doc.Status = domain.DocumentStatusRetrying
		if err := w.docRepo.Update(ctx, doc); err != nil {
			w.log.Error().Err(err).Str("document_id", doc.ID.String()).Msg("persist retrying status failed")
		}
		return domain.RetryableFailure(w.delayFor(job.Attempt), cause)
	}

	doc.Status = domain.DocumentStatusFailed
	if err := w.docRepo.Update(ctx, doc); err != nil {
		w.log.Error().Err(err).Str("document_id", doc.ID.String()).Msg("persist failed status failed")
	}
	w.deadLetter(ctx, doc, job, le.Message, payload, rawResponse)
	w.notify(ctx, doc, doc.EventName("failed"), le.Message)
	return domain.FatalFailure(cause)
}

// failNoRetry is the deterministic-rejection branch: no retry regardless of
// remaining attempts.
func (w *DispatchWorker) failNoRetry(ctx context.Context, doc *domain.Document, job domain.Job, cause error, payload []byte) domain.Outcome {
	le := domain.LastError{Message: cause.Error()}
	var appErr *apperror.AppError
	if errors.As(cause, &appErr) {
		le = domain.LastError{Code: appErr.Code, Message: appErr.Message}
		if appErr.Err != nil {
			le.Cause = appErr.Err.Error()
		}
	}
	doc.SetLastError(le)
	doc.Status = domain.DocumentStatusFailed
	if err := w.docRepo.Update(ctx, doc); err != nil {
		w.log.Error().Err(err).Str("document_id", doc.ID.String()).Msg("persist failed status failed")
	}

	w.deadLetter(ctx, doc, job, le.Message, payload, nil)
	w.notify(ctx, doc, doc.EventName("failed"), le.Message)
	return domain.FatalFailure(cause)
}

func (w *DispatchWorker) deadLetter(ctx context.Context, doc *domain.Document, job domain.Job, reason string, payload, rawResponse []byte) {
	body, _ := json.Marshal(map[string]any{
		"document_id":       doc.ID,
		"attempt":           job.Attempt,
		"payload":           string(payload),
		"provider_response": string(rawResponse),
	})
	dl := &domain.DeadLetter{
		ID:          uuid.New(),
		Type:        doc.DeadLetterType(),
		ReferenceID: doc.ID,
		Queue:       domain.QueueDispatch,
		Error:       reason,
		Payload:     body,
		CreatedAt:   w.now().UTC(),
	}
	if err := w.dlRepo.Create(ctx, dl); err != nil {
		w.log.Error().Err(err).Str("document_id", doc.ID.String()).Msg("dead letter write failed")
	}
}

// notify enqueues the document event fan-out. Fan-out failures are logged,
// not propagated: the document transition already happened.
func (w *DispatchWorker) notify(ctx context.Context, doc *domain.Document, event, reason string) {
	payload, _ := json.Marshal(map[string]any{
		"event":           event,
		"document_id":     doc.ID,
		"external_id":     doc.ExternalID,
		"ettn":            doc.ETTN,
		"provider_doc_id": doc.ProviderDocID,
		"type":            doc.Type,
		"status":          doc.Status,
		"reason":          reason,
		"occurred_at":     w.now().UTC().Format(time.RFC3339),
	})
	if _, err := w.fanout.Fanout(ctx, doc.OrgID, event, payload); err != nil {
		w.log.Error().Err(err).Str("document_id", doc.ID.String()).Str("event", event).Msg("webhook fan-out failed")
	}
}

func (w *DispatchWorker) targetAlias(doc *domain.Document, org *domain.Organization) string {
	if doc.Profile != domain.ProfileB2B {
		return ""
	}
	if doc.CustomerAlias != "" {
		return doc.CustomerAlias
	}
	return org.Alias
}

func (w *DispatchWorker) targetEmail(doc *domain.Document) string {
	if doc.Profile == domain.ProfileEArchive {
		return doc.CustomerEmail
	}
	return ""
}

func (w *DispatchWorker) costFor(t domain.DocumentType) int64 {
	if cost, ok := w.docCosts[string(t)]; ok && cost > 0 {
		return cost
	}
	return 1
}

// delayFor returns the backoff before the next attempt after attempt n.
func (w *DispatchWorker) delayFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(w.backoff) {
		idx = len(w.backoff) - 1
	}
	return w.backoff[idx]
}
