package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"einvoice-dispatch/internal/adapter/http/dto"
	"einvoice-dispatch/internal/adapter/http/middleware"
	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authedContext(w *httptest.ResponseRecorder, orgID uuid.UUID) (*gin.Context, *gin.Engine) {
	c, e := gin.CreateTestContext(w)
	c.Set(middleware.CtxOrgID, orgID)
	return c, e
}

// --- Auth Handler ---

func TestToken_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	orgRepo := mocks.NewMockOrganizationRepository(ctrl)
	hashSvc := mocks.NewMockHashService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	h := NewAuthHandler(orgRepo, hashSvc, tokenSvc)

	orgID := uuid.New()
	org := &domain.Organization{ID: orgID, APIKey: "ak_live_test", APISecretHash: "$argon2id$...", Status: domain.OrganizationStatusActive}
	expiry := time.Now().Add(24 * time.Hour)

	orgRepo.EXPECT().GetByAPIKey(gomock.Any(), "ak_live_test").Return(org, nil)
	hashSvc.EXPECT().Verify("supersecretvalue123", org.APISecretHash).Return(true, nil)
	tokenSvc.EXPECT().Generate(orgID, "ak_live_test").Return("jwt.token.here", expiry, nil)

	body, _ := json.Marshal(dto.TokenRequest{APIKey: "ak_live_test", APISecret: "supersecretvalue123"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Token(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, "jwt.token.here", data["token"])
}

func TestToken_WrongSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	orgRepo := mocks.NewMockOrganizationRepository(ctrl)
	hashSvc := mocks.NewMockHashService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	h := NewAuthHandler(orgRepo, hashSvc, tokenSvc)

	org := &domain.Organization{ID: uuid.New(), APIKey: "ak_live_test", APISecretHash: "hash", Status: domain.OrganizationStatusActive}
	orgRepo.EXPECT().GetByAPIKey(gomock.Any(), "ak_live_test").Return(org, nil)
	hashSvc.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(false, nil)

	body, _ := json.Marshal(dto.TokenRequest{APIKey: "ak_live_test", APISecret: "wrongsecretvalue1234"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Token(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestToken_SuspendedOrganization(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	orgRepo := mocks.NewMockOrganizationRepository(ctrl)
	h := NewAuthHandler(orgRepo, mocks.NewMockHashService(ctrl), mocks.NewMockTokenService(ctrl))

	org := &domain.Organization{ID: uuid.New(), APIKey: "ak_live_test", Status: domain.OrganizationStatusSuspended}
	orgRepo.EXPECT().GetByAPIKey(gomock.Any(), "ak_live_test").Return(org, nil)

	body, _ := json.Marshal(dto.TokenRequest{APIKey: "ak_live_test", APISecret: "whatever-secret-1234"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Token(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

// --- Document Handler ---

func TestCreateDocument_AcceptedAndEnqueued(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	docRepo := mocks.NewMockDocumentRepository(ctrl)
	ledger := mocks.NewMockCreditLedger(ctrl)
	enqueuer := mocks.NewMockDispatchEnqueuer(ctrl)
	h := NewDocumentHandler(docRepo, ledger, enqueuer)

	orgID := uuid.New()
	ledger.EXPECT().HasSufficientCredits(gomock.Any(), orgID, int64(1)).Return(true, nil)

	var createdID uuid.UUID
	docRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, doc *domain.Document) error {
			createdID = doc.ID
			assert.Equal(t, domain.DocumentStatusQueued, doc.Status)
			assert.Equal(t, orgID, doc.OrgID)
			assert.Equal(t, int64(1000), doc.TotalExclTax)
			assert.Equal(t, int64(200), doc.TotalTax)
			assert.Equal(t, int64(1200), doc.TotalInclTax)
			return nil
		})
	enqueuer.EXPECT().EnqueueDispatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, id uuid.UUID) error {
			assert.Equal(t, createdID, id)
			return nil
		})

	body, _ := json.Marshal(dto.CreateDocumentRequest{
		ExternalID:    "inv-2026-001",
		Type:          "invoice",
		Profile:       "b2b",
		CustomerName:  "Acme Ltd",
		CustomerAlias: "urn:mail:acmepk",
		Currency:      "TRY",
		Items: []dto.DocumentItemRequest{
			{Name: "Widget", Quantity: 10, UnitPrice: 100, TaxRate: 20},
		},
	})

	w := httptest.NewRecorder()
	c, _ := authedContext(w, orgID)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, "queued", data["status"])
	assert.Equal(t, "inv-2026-001", data["external_id"])
}

func TestCreateDocument_InsufficientCredits(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	docRepo := mocks.NewMockDocumentRepository(ctrl)
	ledger := mocks.NewMockCreditLedger(ctrl)
	h := NewDocumentHandler(docRepo, ledger, mocks.NewMockDispatchEnqueuer(ctrl))

	orgID := uuid.New()
	ledger.EXPECT().HasSufficientCredits(gomock.Any(), orgID, int64(1)).Return(false, nil)

	body, _ := json.Marshal(dto.CreateDocumentRequest{
		ExternalID:   "inv-2026-002",
		Type:         "invoice",
		Profile:      "b2b",
		CustomerName: "Acme Ltd",
		Currency:     "TRY",
		Items:        []dto.DocumentItemRequest{{Name: "Widget", Quantity: 1, UnitPrice: 100}},
	})

	w := httptest.NewRecorder()
	c, _ := authedContext(w, orgID)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "CRD_001")
}

func TestCreateDocument_EArchiveRequiresEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewDocumentHandler(
		mocks.NewMockDocumentRepository(ctrl),
		mocks.NewMockCreditLedger(ctrl),
		mocks.NewMockDispatchEnqueuer(ctrl),
	)

	body, _ := json.Marshal(dto.CreateDocumentRequest{
		ExternalID:   "inv-2026-003",
		Type:         "invoice",
		Profile:      "earchive",
		CustomerName: "Jane Roe",
		Currency:     "TRY",
		Items:        []dto.DocumentItemRequest{{Name: "Widget", Quantity: 1, UnitPrice: 100}},
	})

	w := httptest.NewRecorder()
	c, _ := authedContext(w, uuid.New())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDocument_OtherOrgIsNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	docRepo := mocks.NewMockDocumentRepository(ctrl)
	h := NewDocumentHandler(docRepo, mocks.NewMockCreditLedger(ctrl), mocks.NewMockDispatchEnqueuer(ctrl))

	docID := uuid.New()
	docRepo.EXPECT().GetByID(gomock.Any(), docID).Return(
		&domain.Document{ID: docID, OrgID: uuid.New(), Status: domain.DocumentStatusSent}, nil)

	w := httptest.NewRecorder()
	c, _ := authedContext(w, uuid.New())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+docID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: docID.String()}}

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code, "cross-tenant reads must look like missing documents")
}

func TestListDocuments_FiltersAndPaginates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	docRepo := mocks.NewMockDocumentRepository(ctrl)
	h := NewDocumentHandler(docRepo, mocks.NewMockCreditLedger(ctrl), mocks.NewMockDispatchEnqueuer(ctrl))

	orgID := uuid.New()
	docRepo.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, params ports.DocumentListParams) ([]domain.Document, int64, error) {
			assert.Equal(t, orgID, params.OrgID)
			require.NotNil(t, params.Status)
			assert.Equal(t, domain.DocumentStatusFailed, *params.Status)
			assert.Equal(t, 2, params.Page)
			return []domain.Document{{ID: uuid.New(), OrgID: orgID, Status: domain.DocumentStatusFailed}}, 21, nil
		})

	w := httptest.NewRecorder()
	c, _ := authedContext(w, orgID)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/documents?status=failed&page=2&page_size=20", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, float64(21), data["total"])
	assert.Equal(t, float64(2), data["total_pages"])
}

// --- Webhook Handler ---

func TestCreateSubscription_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	subRepo := mocks.NewMockWebhookSubscriptionRepository(ctrl)
	h := NewWebhookHandler(subRepo, mocks.NewMockWebhookDeliveryRepository(ctrl))

	orgID := uuid.New()
	subRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, sub *domain.WebhookSubscription) error {
			assert.Equal(t, orgID, sub.OrgID)
			assert.Equal(t, []string{"invoice.sent", "invoice.failed"}, sub.Events)
			return nil
		})

	body, _ := json.Marshal(dto.CreateSubscriptionRequest{
		URL:    "https://example.com/hooks",
		Secret: "whsec_1234567890abcdef",
		Events: []string{"invoice.sent", "invoice.failed"},
	})

	w := httptest.NewRecorder()
	c, _ := authedContext(w, orgID)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.CreateSubscription(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "whsec_", "secret must never be echoed back")
}

func TestCreateSubscription_RejectsNonHTTPURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWebhookHandler(
		mocks.NewMockWebhookSubscriptionRepository(ctrl),
		mocks.NewMockWebhookDeliveryRepository(ctrl),
	)

	body, _ := json.Marshal(dto.CreateSubscriptionRequest{
		URL:    "ftp://example.com/hooks",
		Secret: "whsec_1234567890abcdef",
		Events: []string{"invoice.sent"},
	})

	w := httptest.NewRecorder()
	c, _ := authedContext(w, uuid.New())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.CreateSubscription(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDeliveries_ScopedToOrg(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deliveryRepo := mocks.NewMockWebhookDeliveryRepository(ctrl)
	h := NewWebhookHandler(mocks.NewMockWebhookSubscriptionRepository(ctrl), deliveryRepo)

	orgID := uuid.New()
	status := 200
	deliveryRepo.EXPECT().ListByOrg(gomock.Any(), orgID, 50).Return([]domain.WebhookDelivery{
		{ID: uuid.New(), SubscriptionID: uuid.New(), OrgID: orgID, Event: "invoice.sent", Status: domain.DeliveryStatusSent, AttemptCount: 1, LastStatus: &status},
	}, nil)

	w := httptest.NewRecorder()
	c, _ := authedContext(w, orgID)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/deliveries", nil)

	h.ListDeliveries(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "invoice.sent")
}

// --- Credit Handler ---

func TestGetBalance_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	h := NewCreditHandler(walletRepo, mocks.NewMockLedgerRepository(ctrl), mocks.NewMockCreditLedger(ctrl))

	orgID := uuid.New()
	walletRepo.EXPECT().GetByOrgID(gomock.Any(), orgID).Return(&domain.CreditWallet{ID: uuid.New(), OrgID: orgID, Balance: 420}, nil)

	w := httptest.NewRecorder()
	c, _ := authedContext(w, orgID)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/credits/balance", nil)

	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, float64(420), data["balance"])
}

func TestTopUp_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockCreditLedger(ctrl)
	h := NewCreditHandler(mocks.NewMockWalletRepository(ctrl), mocks.NewMockLedgerRepository(ctrl), ledger)

	orgID := uuid.New()
	ledger.EXPECT().TopUp(gomock.Any(), orgID, int64(500), map[string]string{"source": "api"}).
		Return(&domain.CreditTransaction{ID: uuid.New(), Type: domain.CreditTxTopUp, Amount: 500}, nil)

	body, _ := json.Marshal(dto.TopUpRequest{Amount: 500})
	w := httptest.NewRecorder()
	c, _ := authedContext(w, orgID)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/credits/topup", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.TopUp(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

// --- Admin Handler ---

func TestListDeadLetters_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dlRepo := mocks.NewMockDeadLetterRepository(ctrl)
	h := NewAdminHandler(dlRepo)

	dlRepo.EXPECT().List(gomock.Any(), 50).Return([]domain.DeadLetter{
		{ID: uuid.New(), Type: "invoice.send", ReferenceID: uuid.New(), Queue: domain.QueueDispatch, Error: "daily_limit_exceeded", Payload: []byte(`{}`), CreatedAt: time.Now()},
	}, nil)

	w := httptest.NewRecorder()
	c, _ := authedContext(w, uuid.New())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/deadletters", nil)

	h.ListDeadLetters(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "invoice.send")
	assert.Contains(t, w.Body.String(), "daily_limit_exceeded")
}
