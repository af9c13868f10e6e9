package handler

import (
	"encoding/base64"
	"strconv"
	"time"

	"einvoice-dispatch/internal/adapter/http/dto"
	"einvoice-dispatch/internal/adapter/http/middleware"
	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"
	"einvoice-dispatch/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles document submission and reads.
type DocumentHandler struct {
	docRepo  ports.DocumentRepository
	ledger   ports.CreditLedger
	enqueuer ports.DispatchEnqueuer
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(docRepo ports.DocumentRepository, ledger ports.CreditLedger, enqueuer ports.DispatchEnqueuer) *DocumentHandler {
	return &DocumentHandler{docRepo: docRepo, ledger: ledger, enqueuer: enqueuer}
}

// Create handles POST /api/v1/documents. The document is accepted in queued
// state and dispatched asynchronously; the response is 202.
func (h *DocumentHandler) Create(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if domain.DocumentProfile(req.Profile) == domain.ProfileEArchive && req.CustomerEmail == "" {
		response.Error(c, apperror.Validation("customer_email is required for earchive documents"))
		return
	}

	var prebuilt []byte
	if req.PrebuiltXML != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.PrebuiltXML)
		if err != nil {
			response.Error(c, apperror.Validation("prebuilt_xml must be base64 encoded"))
			return
		}
		prebuilt = decoded
	}
	if len(prebuilt) == 0 && len(req.Items) == 0 {
		response.Error(c, apperror.Validation("either items or prebuilt_xml must be provided"))
		return
	}

	// Accept only when the wallet could cover at least one send. The real
	// debit happens at dispatch time, after the provider accepted.
	enough, err := h.ledger.HasSufficientCredits(c.Request.Context(), orgID, 1)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !enough {
		response.Error(c, apperror.ErrInsufficientCredits())
		return
	}

	doc := &domain.Document{
		ID:            uuid.New(),
		OrgID:         orgID,
		ExternalID:    req.ExternalID,
		Type:          domain.DocumentType(req.Type),
		Profile:       domain.DocumentProfile(req.Profile),
		Status:        domain.DocumentStatusQueued,
		CustomerName:  req.CustomerName,
		CustomerAlias: req.CustomerAlias,
		CustomerEmail: req.CustomerEmail,
		Currency:      req.Currency,
		PrebuiltXML:   prebuilt,
	}
	for _, item := range req.Items {
		line := item.Quantity * item.UnitPrice
		tax := line * item.TaxRate / 100
		doc.Items = append(doc.Items, domain.DocumentItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
		})
		doc.TotalExclTax += line
		doc.TotalTax += tax
	}
	doc.TotalInclTax = doc.TotalExclTax + doc.TotalTax

	if err := h.docRepo.Create(c.Request.Context(), doc); err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if err := h.enqueuer.EnqueueDispatch(c.Request.Context(), doc.ID); err != nil {
		response.Error(c, apperror.ErrQueueError(err))
		return
	}

	response.Accepted(c, toDocumentResponse(doc))
}

// Get handles GET /api/v1/documents/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid document id"))
		return
	}

	doc, err := h.docRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if doc == nil || doc.OrgID != orgID {
		response.Error(c, apperror.ErrNotFound("document"))
		return
	}

	response.OK(c, toDocumentResponse(doc))
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}

	params := ports.DocumentListParams{
		OrgID:    orgID,
		Page:     parseIntDefault(c.Query("page"), 1),
		PageSize: parseIntDefault(c.Query("page_size"), 20),
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}
	if s := c.Query("status"); s != "" {
		status := domain.DocumentStatus(s)
		params.Status = &status
	}
	if t := c.Query("type"); t != "" {
		typ := domain.DocumentType(t)
		params.Type = &typ
	}

	docs, total, err := h.docRepo.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	items := make([]dto.DocumentResponse, 0, len(docs))
	for i := range docs {
		items = append(items, toDocumentResponse(&docs[i]))
	}
	totalPages := int(total) / params.PageSize
	if int(total)%params.PageSize > 0 {
		totalPages++
	}

	response.OK(c, dto.DocumentListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	})
}

func toDocumentResponse(doc *domain.Document) dto.DocumentResponse {
	resp := dto.DocumentResponse{
		ID:            doc.ID.String(),
		ExternalID:    doc.ExternalID,
		ETTN:          doc.ETTN,
		ProviderDocID: doc.ProviderDocID,
		Type:          string(doc.Type),
		Profile:       string(doc.Profile),
		Status:        string(doc.Status),
		CustomerName:  doc.CustomerName,
		TotalExclTax:  doc.TotalExclTax,
		TotalTax:      doc.TotalTax,
		TotalInclTax:  doc.TotalInclTax,
		Currency:      doc.Currency,
		ProviderRef:   doc.ProviderRef,
		Metadata:      doc.Metadata,
		CreatedAt:     doc.CreatedAt.UTC().Format(time.RFC3339),
	}
	if doc.SentAt != nil {
		sentAt := doc.SentAt.UTC().Format(time.RFC3339)
		resp.SentAt = &sentAt
	}
	return resp
}

// orgFromContext reads the authenticated organization id, erroring the
// request when the auth middleware did not run.
func orgFromContext(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(middleware.CtxOrgID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, false
	}
	return val.(uuid.UUID), true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
