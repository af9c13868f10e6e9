package postgres

import (
	"context"
	"errors"
	"fmt"

	"einvoice-dispatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrganizationRepo implements ports.OrganizationRepository.
type OrganizationRepo struct {
	pool Pool
}

// NewOrganizationRepo creates a new OrganizationRepo.
func NewOrganizationRepo(pool Pool) *OrganizationRepo {
	return &OrganizationRepo{pool: pool}
}

const organizationColumns = `id, name, api_key, api_secret_hash, alias, email, tax_id, status, created_at, updated_at`

// Create inserts a new organization.
func (r *OrganizationRepo) Create(ctx context.Context, o *domain.Organization) error {
	query := `INSERT INTO organizations (` + organizationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.Name, o.APIKey, o.APISecretHash, o.Alias, o.Email, o.TaxID, o.Status,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// GetByID fetches an organization by UUID. Returns nil, nil when absent.
func (r *OrganizationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	return scanOrganization(r.pool.QueryRow(ctx, query, id))
}

// GetByAPIKey fetches an organization by API key. Returns nil, nil when absent.
func (r *OrganizationRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE api_key = $1`
	return scanOrganization(r.pool.QueryRow(ctx, query, apiKey))
}

func scanOrganization(row pgx.Row) (*domain.Organization, error) {
	o := &domain.Organization{}
	err := row.Scan(
		&o.ID, &o.Name, &o.APIKey, &o.APISecretHash, &o.Alias, &o.Email, &o.TaxID, &o.Status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	return o, nil
}
