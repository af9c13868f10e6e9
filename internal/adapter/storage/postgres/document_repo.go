package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DocumentRepo implements ports.DocumentRepository.
type DocumentRepo struct {
	pool Pool
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(pool Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

const documentColumns = `id, org_id, external_id, ettn, provider_doc_id, doc_type, profile, status,
		customer_name, customer_alias, customer_email, items, total_excl_tax, total_tax, total_incl_tax,
		currency, provider_ref, metadata, prebuilt_xml, created_at, updated_at, sent_at`

// Create inserts a new document.
func (r *DocumentRepo) Create(ctx context.Context, d *domain.Document) error {
	items, err := json.Marshal(d.Items)
	if err != nil {
		return fmt.Errorf("marshal document items: %w", err)
	}
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = r.pool.Exec(ctx, query,
		d.ID, d.OrgID, d.ExternalID, d.ETTN, d.ProviderDocID, d.Type, d.Profile, d.Status,
		d.CustomerName, d.CustomerAlias, d.CustomerEmail, items, d.TotalExclTax, d.TotalTax, d.TotalInclTax,
		d.Currency, d.ProviderRef, metadata, d.PrebuiltXML, d.CreatedAt, d.UpdatedAt, d.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetByID fetches a document by UUID. Returns nil, nil when absent.
func (r *DocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return r.scanDocument(r.pool.QueryRow(ctx, query, id))
}

// Update persists the worker-mutable fields of a document.
func (r *DocumentRepo) Update(ctx context.Context, d *domain.Document) error {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	query := `UPDATE documents
		SET ettn = $1, provider_doc_id = $2, status = $3, provider_ref = $4, metadata = $5,
			sent_at = $6, updated_at = NOW()
		WHERE id = $7`

	tag, err := r.pool.Exec(ctx, query,
		d.ETTN, d.ProviderDocID, d.Status, d.ProviderRef, metadata, d.SentAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document not found: %s", d.ID)
	}
	return nil
}

// CountSentSince counts sent documents of an organization since an instant.
func (r *DocumentRepo) CountSentSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM documents WHERE org_id = $1 AND status = 'sent' AND sent_at >= $2`

	var count int64
	if err := r.pool.QueryRow(ctx, query, orgID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sent documents: %w", err)
	}
	return count, nil
}

// List fetches documents with filtering and pagination.
func (r *DocumentRepo) List(ctx context.Context, params ports.DocumentListParams) ([]domain.Document, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("org_id = $%d", argIdx))
	args = append(args, params.OrgID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("doc_type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM documents %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT `+documentColumns+` FROM documents %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		d, err := scanDocumentValues(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, total, nil
}

// scanDocument scans a single row, mapping pgx.ErrNoRows to nil, nil.
func (r *DocumentRepo) scanDocument(row pgx.Row) (*domain.Document, error) {
	d, err := scanDocumentValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return d, nil
}

func scanDocumentValues(row pgx.Row) (*domain.Document, error) {
	d := &domain.Document{}
	var items, metadata []byte
	err := row.Scan(
		&d.ID, &d.OrgID, &d.ExternalID, &d.ETTN, &d.ProviderDocID, &d.Type, &d.Profile, &d.Status,
		&d.CustomerName, &d.CustomerAlias, &d.CustomerEmail, &items, &d.TotalExclTax, &d.TotalTax, &d.TotalInclTax,
		&d.Currency, &d.ProviderRef, &metadata, &d.PrebuiltXML, &d.CreatedAt, &d.UpdatedAt, &d.SentAt,
	)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &d.Items); err != nil {
			return nil, fmt.Errorf("unmarshal document items: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal document metadata: %w", err)
		}
	}
	return d, nil
}
