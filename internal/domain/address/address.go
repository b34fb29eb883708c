// Package address exposes the user address book to order placement. Addresses
// are owned by the profile service; this core only reads them and copies the
// fields it needs into immutable order records.
package address

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when the referenced address does not exist.
	ErrNotFound = errors.New("address not found")
	// ErrForbidden is returned when the address exists but belongs to a
	// different user.
	ErrForbidden = errors.New("address does not belong to user")
)

// Address is a delivery address from the user's address book.
type Address struct {
	ID      string
	UserID  string
	Name    string
	Phone   string
	Line1   string
	Line2   string
	City    string
	State   string
	Country string
	Pincode string
}

// Repository defines read operations against the address book.
type Repository interface {
	// GetOwned resolves an address and verifies it belongs to the given user.
	GetOwned(ctx context.Context, userID, addressID string) (*Address, error)
}
