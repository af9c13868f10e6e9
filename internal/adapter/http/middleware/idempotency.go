package middleware

import (
	"bytes"
	"io"
	"net/http"

	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/pkg/apperror"
	"einvoice-dispatch/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderIdempotencyKey carries the client-chosen request key.
	HeaderIdempotencyKey = "X-Idempotency-Key"
	// HeaderIdempotencyReplayed marks a response served from a stored record.
	HeaderIdempotencyReplayed = "X-Idempotency-Replayed"
)

// bodyCapture duplicates the response body so the middleware can persist it
// after the handler ran.
type bodyCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays stored responses for repeated X-Idempotency-Key values
// and records fresh responses for later replay. Must run after JWTAuth: the
// key is scoped per organization. Store errors degrade to a plain
// non-idempotent request rather than failing the call.
func Idempotency(store ports.IdempotencyStore, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			response.Error(c, apperror.ErrIdempotencyKeyMissing())
			c.Abort()
			return
		}

		orgVal, ok := c.Get(CtxOrgID)
		if !ok {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}
		orgID := orgVal.(uuid.UUID)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		res, err := store.BeginOrReplay(c.Request.Context(), orgID, key, c.Request.Method, c.Request.URL.Path, domain.HashBody(body))
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("idempotency store error, proceeding without replay protection")
			c.Next()
			return
		}

		if res.Replay {
			c.Header(HeaderIdempotencyReplayed, "true")
			c.Data(res.Status, "application/json", res.Body)
			c.Abort()
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		// Server errors are not stored: the client may retry them with the
		// same key.
		status := capture.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		if err := store.CompleteWithCacheKey(c.Request.Context(), res.RecordID, orgID, key, status, capture.buf.Bytes()); err != nil {
			log.Error().Err(err).Str("key", key).Msg("idempotency record completion failed")
		}
	}
}
