package handler

import (
	"time"

	"einvoice-dispatch/internal/adapter/http/dto"
	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"
	"einvoice-dispatch/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler handles webhook subscription management and delivery reads.
type WebhookHandler struct {
	subRepo      ports.WebhookSubscriptionRepository
	deliveryRepo ports.WebhookDeliveryRepository
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(subRepo ports.WebhookSubscriptionRepository, deliveryRepo ports.WebhookDeliveryRepository) *WebhookHandler {
	return &WebhookHandler{subRepo: subRepo, deliveryRepo: deliveryRepo}
}

// CreateSubscription handles POST /api/v1/webhooks.
func (h *WebhookHandler) CreateSubscription(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	sub := &domain.WebhookSubscription{
		ID:     uuid.New(),
		OrgID:  orgID,
		URL:    req.URL,
		Secret: req.Secret,
		Events: req.Events,
	}
	if err := h.subRepo.Create(c.Request.Context(), sub); err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	response.Created(c, toSubscriptionResponse(sub))
}

// ListSubscriptions handles GET /api/v1/webhooks.
func (h *WebhookHandler) ListSubscriptions(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	subs, err := h.subRepo.ListByOrg(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	items := make([]dto.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		items = append(items, toSubscriptionResponse(&subs[i]))
	}
	response.OK(c, items)
}

// ListDeliveries handles GET /api/v1/webhooks/deliveries.
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	limit := parseIntDefault(c.Query("limit"), 50)
	if limit > 200 {
		limit = 200
	}

	deliveries, err := h.deliveryRepo.ListByOrg(c.Request.Context(), orgID, limit)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	items := make([]dto.DeliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		items = append(items, toDeliveryResponse(&deliveries[i]))
	}
	response.OK(c, items)
}

func toSubscriptionResponse(sub *domain.WebhookSubscription) dto.SubscriptionResponse {
	return dto.SubscriptionResponse{
		ID:        sub.ID.String(),
		URL:       sub.URL,
		Events:    sub.Events,
		CreatedAt: sub.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toDeliveryResponse(d *domain.WebhookDelivery) dto.DeliveryResponse {
	resp := dto.DeliveryResponse{
		ID:             d.ID.String(),
		SubscriptionID: d.SubscriptionID.String(),
		Event:          d.Event,
		Status:         string(d.Status),
		AttemptCount:   d.AttemptCount,
		LastStatus:     d.LastStatus,
		CreatedAt:      d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.LastAttemptAt != nil {
		at := d.LastAttemptAt.UTC().Format(time.RFC3339)
		resp.LastAttemptAt = &at
	}
	if d.NextRetryAt != nil {
		at := d.NextRetryAt.UTC().Format(time.RFC3339)
		resp.NextRetryAt = &at
	}
	return resp
}
