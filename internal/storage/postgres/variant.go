package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajaySingh2615/devices/internal/domain/catalog"
)

const (
	getVariantSQL = `SELECT id, product_id, sku, title, price_sale, tax_rate, is_active
		FROM variants WHERE id = $1`

	getVariantsSQL = `SELECT id, product_id, sku, title, price_sale, tax_rate, is_active
		FROM variants WHERE id = ANY($1)`
)

var _ catalog.Repository = (*VariantRepository)(nil)

// VariantRepository implements catalog.Repository backed by PostgreSQL.
type VariantRepository struct {
	pool *pgxpool.Pool
}

// NewVariantRepository returns a VariantRepository that uses the given pool.
func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

// GetByID fetches a single variant. Returns catalog.ErrVariantNotFound when
// no variant has the given id.
func (r *VariantRepository) GetByID(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// GetByIDs fetches all requested variants in a single query. Missing IDs are
// simply absent from the result.
func (r *VariantRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}

	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}
	return variants, nil
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(
		&v.ID, &v.ProductID, &v.SKU, &v.Title,
		&v.PriceSale, &v.TaxRate, &v.IsActive,
	)
	return v, err
}
