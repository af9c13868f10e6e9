package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetter is an immutable record of a work item that exhausted its retry
// budget or was rejected deterministically. Consumption is an operator
// concern; the core only appends.
type DeadLetter struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`         // e.g. "invoice.send"
	ReferenceID uuid.UUID `json:"reference_id"` // document or delivery id
	Queue       string    `json:"queue"`
	Error       string    `json:"error"`
	Payload     []byte    `json:"payload"` // input payload + raw provider response
	CreatedAt   time.Time `json:"created_at"`
}
