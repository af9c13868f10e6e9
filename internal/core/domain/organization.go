package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrganizationStatus represents the state of an organization account.
type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "active"
	OrganizationStatusSuspended OrganizationStatus = "suspended"
)

// Organization is a tenant of the dispatch service. Only the fields the
// pipeline depends on live here: API credentials for the token endpoint and
// addressing data used when building provider payloads.
type Organization struct {
	ID            uuid.UUID          `json:"id"`
	Name          string             `json:"name"`
	APIKey        string             `json:"api_key"`
	APISecretHash string             `json:"-"` // argon2id, never exposed
	Alias         string             `json:"alias,omitempty"` // provider urn/alias
	Email         string             `json:"email,omitempty"`
	TaxID         string             `json:"tax_id,omitempty"`
	Status        OrganizationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// IsActive returns true if the organization may call the API.
func (o *Organization) IsActive() bool {
	return o.Status == OrganizationStatusActive
}
