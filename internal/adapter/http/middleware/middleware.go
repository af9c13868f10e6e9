package middleware

import (
	"net/http"
	"time"

	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"
	"einvoice-dispatch/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Context keys set by the auth middleware.
const (
	CtxOrgID  = "org_id"
	CtxAPIKey = "api_key"
)

// JWTAuth creates a middleware that validates bearer tokens issued by the
// token endpoint. The organization row is re-checked on every request so a
// suspension takes effect before the token expires.
func JWTAuth(tokenSvc ports.TokenService, orgRepo ports.OrganizationRepository, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(authHeader[7:])
		if err != nil {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		org, err := orgRepo.GetByID(c.Request.Context(), claims.OrgID)
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch organization")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if org == nil {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}
		if !org.IsActive() {
			response.Error(c, apperror.ErrOrganizationSuspended())
			c.Abort()
			return
		}

		c.Set(CtxOrgID, claims.OrgID)
		c.Set(CtxAPIKey, claims.APIKey)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize caps the request body size.
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
