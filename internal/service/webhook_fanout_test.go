package service

import (
	"context"
	"testing"

	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFanoutService_CreatesDeliveryPerSubscription(t *testing.T) {
	ctrl := gomock.NewController(t)
	subRepo := mocks.NewMockWebhookSubscriptionRepository(ctrl)
	deliveryRepo := mocks.NewMockWebhookDeliveryRepository(ctrl)
	queue := mocks.NewMockQueue(ctrl)
	svc := NewFanoutService(subRepo, deliveryRepo, queue, zerolog.Nop())

	orgID := uuid.New()
	payload := []byte(`{"event":"invoice.sent","document_id":"doc-1"}`)
	subA := domain.WebhookSubscription{ID: uuid.New(), OrgID: orgID, Events: []string{"invoice.sent"}}
	subB := domain.WebhookSubscription{ID: uuid.New(), OrgID: orgID, Events: []string{"invoice.sent", "invoice.failed"}}

	subRepo.EXPECT().ListByEvent(gomock.Any(), orgID, "invoice.sent").
		Return([]domain.WebhookSubscription{subA, subB}, nil)

	var deliveryIDs []uuid.UUID
	deliveryRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, d *domain.WebhookDelivery) error {
			assert.Equal(t, domain.DeliveryStatusPending, d.Status)
			assert.Equal(t, payload, d.Payload)
			assert.Equal(t, "invoice.sent", d.Event)
			deliveryIDs = append(deliveryIDs, d.ID)
			return nil
		})
	queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, job domain.Job) error {
			assert.Equal(t, domain.QueueWebhook, job.Queue)
			assert.Contains(t, deliveryIDs, job.ReferenceID)
			return nil
		})

	count, err := svc.Fanout(context.Background(), orgID, "invoice.sent", payload)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFanoutService_NoSubscriptionsIsZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	subRepo := mocks.NewMockWebhookSubscriptionRepository(ctrl)
	deliveryRepo := mocks.NewMockWebhookDeliveryRepository(ctrl)
	queue := mocks.NewMockQueue(ctrl)
	svc := NewFanoutService(subRepo, deliveryRepo, queue, zerolog.Nop())

	orgID := uuid.New()
	subRepo.EXPECT().ListByEvent(gomock.Any(), orgID, "voucher.failed").Return(nil, nil)

	count, err := svc.Fanout(context.Background(), orgID, "voucher.failed", []byte(`{}`))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFanoutService_QueueFailureSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	subRepo := mocks.NewMockWebhookSubscriptionRepository(ctrl)
	deliveryRepo := mocks.NewMockWebhookDeliveryRepository(ctrl)
	queue := mocks.NewMockQueue(ctrl)
	svc := NewFanoutService(subRepo, deliveryRepo, queue, zerolog.Nop())

	orgID := uuid.New()
	subRepo.EXPECT().ListByEvent(gomock.Any(), orgID, "invoice.sent").
		Return([]domain.WebhookSubscription{{ID: uuid.New(), OrgID: orgID}}, nil)
	deliveryRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(assert.AnError)

	count, err := svc.Fanout(context.Background(), orgID, "invoice.sent", []byte(`{}`))
	require.Error(t, err)
	assert.Zero(t, count)
}
