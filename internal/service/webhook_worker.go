package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"einvoice-dispatch/config"
	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"

	"github.com/rs/zerolog"
)

var defaultWebhookBackoff = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
	600 * time.Second,
}

// WebhookWorker delivers one webhook delivery row to its subscriber endpoint,
// signing the payload snapshot taken at fan-out time. Failed deliveries are
// retried on the webhook backoff schedule; exhausted deliveries stay queryable
// as failed rows and are never dead-lettered.
type WebhookWorker struct {
	deliveryRepo ports.WebhookDeliveryRepository
	subRepo      ports.WebhookSubscriptionRepository
	signer       ports.WebhookSigner
	client       *http.Client
	maxTries     int
	backoff      []time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// NewWebhookWorker creates a delivery worker.
func NewWebhookWorker(
	deliveryRepo ports.WebhookDeliveryRepository,
	subRepo ports.WebhookSubscriptionRepository,
	signer ports.WebhookSigner,
	cfg config.WebhookConfig,
	log zerolog.Logger,
) *WebhookWorker {
	backoff := cfg.Backoff
	if len(backoff) == 0 {
		backoff = defaultWebhookBackoff
	}
	maxTries := cfg.MaxTries
	if maxTries <= 0 {
		maxTries = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookWorker{
		deliveryRepo: deliveryRepo,
		subRepo:      subRepo,
		signer:       signer,
		client:       &http.Client{Timeout: timeout},
		maxTries:     maxTries,
		backoff:      backoff,
		now:          time.Now,
		log:          log,
	}
}

// Process runs one delivery attempt for the job's delivery row.
func (w *WebhookWorker) Process(ctx context.Context, job domain.Job) domain.Outcome {
	log := w.log.With().Str("delivery_id", job.ReferenceID.String()).Int("attempt", job.Attempt).Logger()

	delivery, err := w.deliveryRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("load delivery: %w", err))
	}
	if delivery == nil {
		log.Warn().Msg("delivery vanished, dropping job")
		return domain.Success()
	}
	if !delivery.Deliverable() {
		log.Info().Str("status", string(delivery.Status)).Msg("delivery already settled, dropping job")
		return domain.Success()
	}

	sub, err := w.subRepo.GetByID(ctx, delivery.SubscriptionID)
	if err != nil {
		return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("load subscription: %w", err))
	}
	if sub == nil {
		// Subscription deleted after fan-out: the delivery can never succeed.
		delivery.Status = domain.DeliveryStatusFailed
		body := "subscription not found"
		delivery.LastBody = &body
		if err := w.deliveryRepo.Update(ctx, delivery); err != nil {
			log.Error().Err(err).Msg("persist orphaned delivery failed")
		}
		return domain.Success()
	}

	// Record the attempt before the POST so a crash mid-request still counts
	// it; at-most-once accounting, at-least-once delivery.
	attemptAt := w.now().UTC()
	delivery.AttemptCount++
	delivery.LastAttemptAt = &attemptAt
	if err := w.deliveryRepo.Update(ctx, delivery); err != nil {
		return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("persist attempt: %w", err))
	}

	status, respBody, err := w.post(ctx, sub, delivery, attemptAt.Unix())
	if err != nil {
		log.Warn().Err(err).Str("url", sub.URL).Msg("webhook endpoint unreachable")
		return w.retryOrFail(ctx, delivery, job, 0, err.Error())
	}

	if status >= 200 && status < 300 {
		delivery.Status = domain.DeliveryStatusSent
		delivery.LastStatus = &status
		truncated := domain.TruncateResponseBody(respBody)
		delivery.LastBody = &truncated
		delivery.NextRetryAt = nil
		if err := w.deliveryRepo.Update(ctx, delivery); err != nil {
			return domain.RetryableFailure(w.delayFor(job.Attempt), fmt.Errorf("persist sent delivery: %w", err))
		}
		log.Info().Int("status", status).Msg("webhook delivered")
		return domain.Success()
	}

	log.Warn().Int("status", status).Str("url", sub.URL).Msg("webhook endpoint rejected delivery")
	return w.retryOrFail(ctx, delivery, job, status, respBody)
}

func (w *WebhookWorker) post(ctx context.Context, sub *domain.WebhookSubscription, delivery *domain.WebhookDelivery, ts int64) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", delivery.Event)
	req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("X-Webhook-Signature", w.signer.Sign(sub.Secret, ts, delivery.Payload))

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxStoredResponseBody+1))
	return resp.StatusCode, string(body), nil
}

func (w *WebhookWorker) retryOrFail(ctx context.Context, delivery *domain.WebhookDelivery, job domain.Job, status int, body string) domain.Outcome {
	if status > 0 {
		delivery.LastStatus = &status
	}
	truncated := domain.TruncateResponseBody(body)
	delivery.LastBody = &truncated

	if job.Attempt < w.maxTries {
		delay := w.delayFor(job.Attempt)
		nextAt := w.now().UTC().Add(delay)
		delivery.Status = domain.DeliveryStatusRetrying
		delivery.NextRetryAt = &nextAt
		if err := w.deliveryRepo.Update(ctx, delivery); err != nil {
			w.log.Error().Err(err).Str("delivery_id", delivery.ID.String()).Msg("persist retrying delivery failed")
		}
		return domain.RetryableFailure(delay, fmt.Errorf("delivery attempt %d failed with status %d", job.Attempt, status))
	}

	delivery.Status = domain.DeliveryStatusFailed
	delivery.NextRetryAt = nil
	if err := w.deliveryRepo.Update(ctx, delivery); err != nil {
		w.log.Error().Err(err).Str("delivery_id", delivery.ID.String()).Msg("persist failed delivery failed")
	}
	return domain.FatalFailure(fmt.Errorf("delivery exhausted after %d attempts", job.Attempt))
}

func (w *WebhookWorker) delayFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(w.backoff) {
		idx = len(w.backoff) - 1
	}
	return w.backoff[idx]
}
