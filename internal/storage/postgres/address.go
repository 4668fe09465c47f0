package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/atelier-commerce/checkout/internal/domain/address"
)

var _ address.Repository = (*AddressRepository)(nil)

const (
	listAddressesSQL = `SELECT id, user_id, full_name, phone, line1, line2, city, state, postal_code, country, is_default
	FROM shipping_addresses WHERE user_id = $1 ORDER BY is_default DESC, id`

	defaultAddressSQL = `SELECT id, user_id, full_name, phone, line1, line2, city, state, postal_code, country, is_default
	FROM shipping_addresses WHERE user_id = $1 ORDER BY is_default DESC, id LIMIT 1`
)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	db DB
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(db DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// ListByUser returns the user's addresses, default first.
func (r *AddressRepository) ListByUser(ctx context.Context, userID string) ([]address.Address, error) {
	rows, err := r.db.Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list addresses for user %q", userID)
	}
	defer rows.Close()

	var out []address.Address
	for rows.Next() {
		var a address.Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.Line1, &a.Line2,
			&a.City, &a.State, &a.PostalCode, &a.Country, &a.IsDefault); err != nil {
			return nil, errors.Wrap(err, "scan address")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Default returns the user's default address, or the first available one.
func (r *AddressRepository) Default(ctx context.Context, userID string) (*address.Address, error) {
	var a address.Address
	err := r.db.QueryRow(ctx, defaultAddressSQL, userID).Scan(
		&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.Line1, &a.Line2,
		&a.City, &a.State, &a.PostalCode, &a.Country, &a.IsDefault,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNoAddresses
		}
		return nil, errors.Wrapf(err, "default address for user %q", userID)
	}
	return &a, nil
}
