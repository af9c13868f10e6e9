package handler

import (
	"net/http"

	"einvoice-dispatch/internal/adapter/http/dto"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"
	"einvoice-dispatch/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles the API token exchange.
type AuthHandler struct {
	orgRepo  ports.OrganizationRepository
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(orgRepo ports.OrganizationRepository, hashSvc ports.HashService, tokenSvc ports.TokenService) *AuthHandler {
	return &AuthHandler{orgRepo: orgRepo, hashSvc: hashSvc, tokenSvc: tokenSvc}
}

// Token handles POST /api/v1/auth/token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	org, err := h.orgRepo.GetByAPIKey(c.Request.Context(), req.APIKey)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	if org == nil {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}
	if !org.IsActive() {
		response.Error(c, apperror.ErrOrganizationSuspended())
		return
	}

	ok, err := h.hashSvc.Verify(req.APISecret, org.APISecretHash)
	if err != nil || !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}

	token, expiry, err := h.tokenSvc.Generate(org.ID, org.APIKey)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, dto.TokenResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}

// HealthCheck handles GET /health, verifying all external dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
