// Package store defines the interface for record store implementations of the rentguard service.
package store

import (
	"context"
	"errors"
)

// Store defines the required methods over the property and rental collections. Create methods assign the id and
// timestamps of the record. Update methods load the record, call fn on it and save it only if fn returns nil.
type Store interface {
	// properties
	CreateProperty(ctx context.Context, p Property) (Property, error)
	GetProperty(ctx context.Context, id string) (Property, error)
	UpdateProperty(ctx context.Context, id string, fn func(*Property) error) (Property, error)
	DeleteProperty(ctx context.Context, id string) error
	ListProperties(ctx context.Context, f PropertyFilter) ([]Property, error)
	// rentals
	CreateRental(ctx context.Context, r Rental) (Rental, error)
	GetRental(ctx context.Context, id string) (Rental, error)
	UpdateRental(ctx context.Context, id string, fn func(*Rental) error) (Rental, error)
	DeleteRental(ctx context.Context, id string) error
	ListRentals(ctx context.Context, f RentalFilter) ([]Rental, error)
	// payments are only appended
	AddPayment(ctx context.Context, rentalID string, p Payment) (Payment, error)
}

// Errors returned
var (
	ErrNotFound  = errors.New("record was not found in store")
	ErrBadAmount = errors.New("amount cannot be stored")
)
