package service

import (
	"context"
	"fmt"
	"time"

	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FanoutServiceImpl implements ports.WebhookFanout: one delivery row plus one
// queued job per subscription listening on the event. The payload is
// snapshotted on the row at fan-out time, so later document mutations do not
// change what subscribers receive.
type FanoutServiceImpl struct {
	subRepo      ports.WebhookSubscriptionRepository
	deliveryRepo ports.WebhookDeliveryRepository
	queue        ports.Queue
	log          zerolog.Logger
}

// NewFanoutService creates a new FanoutServiceImpl.
func NewFanoutService(
	subRepo ports.WebhookSubscriptionRepository,
	deliveryRepo ports.WebhookDeliveryRepository,
	queue ports.Queue,
	log zerolog.Logger,
) *FanoutServiceImpl {
	return &FanoutServiceImpl{
		subRepo:      subRepo,
		deliveryRepo: deliveryRepo,
		queue:        queue,
		log:          log,
	}
}

// Fanout creates deliveries for every subscription listening on the event and
// returns how many were created. No subscriptions is a successful zero.
func (s *FanoutServiceImpl) Fanout(ctx context.Context, orgID uuid.UUID, event string, payload []byte) (int, error) {
	subs, err := s.subRepo.ListByEvent(ctx, orgID, event)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("list subscriptions: %w", err))
	}

	created := 0
	now := time.Now().UTC()
	for _, sub := range subs {
		delivery := &domain.WebhookDelivery{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			OrgID:          orgID,
			Event:          event,
			Payload:        payload,
			Status:         domain.DeliveryStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.deliveryRepo.Create(ctx, delivery); err != nil {
			return created, apperror.ErrDatabaseError(fmt.Errorf("create delivery: %w", err))
		}
		if err := s.queue.Enqueue(ctx, domain.NewJob(domain.QueueWebhook, delivery.ID)); err != nil {
			return created, apperror.ErrQueueError(fmt.Errorf("enqueue delivery: %w", err))
		}
		created++
	}

	s.log.Debug().
		Str("org_id", orgID.String()).
		Str("event", event).
		Int("deliveries", created).
		Msg("webhook fan-out")

	return created, nil
}
