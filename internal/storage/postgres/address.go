package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajaySingh2615/devices/internal/domain/address"
)

const getAddressSQL = `SELECT id, user_id, name, phone, line1, line2, city, state, country, pincode
	FROM addresses WHERE id = $1`

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// GetOwned resolves an address and verifies it belongs to the given user.
func (r *AddressRepository) GetOwned(ctx context.Context, userID, addressID string) (*address.Address, error) {
	rows, err := r.pool.Query(ctx, getAddressSQL, addressID)
	if err != nil {
		return nil, fmt.Errorf("getting address %q: %w", addressID, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", addressID, err)
	}
	if a.UserID != userID {
		return nil, address.ErrForbidden
	}
	return &a, nil
}

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var a address.Address
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Phone, &a.Line1, &a.Line2,
		&a.City, &a.State, &a.Country, &a.Pincode,
	)
	return a, err
}
