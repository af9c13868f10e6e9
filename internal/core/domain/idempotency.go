package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// IdempotencyTTL is how long a stored response is replayed for a repeated key.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyRecord stores the fingerprint of an inbound request and, once the
// handler completes, its response. (org, key) is unique. The body hash is kept
// for diagnostics only; it does not participate in conflict detection.
type IdempotencyRecord struct {
	ID             uuid.UUID `json:"id"`
	OrgID          uuid.UUID `json:"org_id"`
	Key            string    `json:"key"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	BodyHash       string    `json:"body_hash"`
	ResponseStatus *int      `json:"response_status,omitempty"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Completed reports whether a response has been stored for replay.
func (r *IdempotencyRecord) Completed() bool {
	return r.ResponseStatus != nil
}

// Expired reports whether the record is past its TTL at the given time.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// HashBody returns the lowercase hex SHA-256 of a request body.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// BuildIdempotencyCacheKey constructs the redis fast-path key for a stored
// response: "<org>:<key>".
func BuildIdempotencyCacheKey(orgID uuid.UUID, key string) string {
	return orgID.String() + ":" + key
}
