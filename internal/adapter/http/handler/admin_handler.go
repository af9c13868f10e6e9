package handler

import (
	"time"

	"einvoice-dispatch/internal/adapter/http/dto"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"
	"einvoice-dispatch/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operator reads over the dead-letter sink.
type AdminHandler struct {
	dlRepo ports.DeadLetterRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(dlRepo ports.DeadLetterRepository) *AdminHandler {
	return &AdminHandler{dlRepo: dlRepo}
}

// ListDeadLetters handles GET /api/v1/deadletters.
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	limit := parseIntDefault(c.Query("limit"), 50)
	if limit > 500 {
		limit = 500
	}

	letters, err := h.dlRepo.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	items := make([]dto.DeadLetterResponse, 0, len(letters))
	for _, dl := range letters {
		items = append(items, dto.DeadLetterResponse{
			ID:          dl.ID.String(),
			Type:        dl.Type,
			ReferenceID: dl.ReferenceID.String(),
			Queue:       dl.Queue,
			Error:       dl.Error,
			Payload:     string(dl.Payload),
			CreatedAt:   dl.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	response.OK(c, items)
}
