// Package memory implements the store interface in process memory. Records are lost when the process ends.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tarancss/rentguard/lib/store"
)

// Memory keeps the collections in maps. Lists are returned in insertion order.
type Memory struct {
	mu         sync.RWMutex
	properties map[string]store.Property
	pOrder     []string
	rentals    map[string]store.Rental
	rOrder     []string
}

// New returns an empty memory store.
func New() *Memory {
	return &Memory{
		properties: make(map[string]store.Property),
		rentals:    make(map[string]store.Rental),
	}
}

// CreateProperty saves a new property.
func (m *Memory) CreateProperty(_ context.Context, p store.Property) (store.Property, error) {
	p.Init(store.Now())

	m.mu.Lock()
	m.properties[p.ID] = p.Clone()
	m.pOrder = append(m.pOrder, p.ID)
	m.mu.Unlock()

	return p, nil
}

// GetProperty returns the property with the given id.
func (m *Memory) GetProperty(_ context.Context, id string) (store.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.properties[id]
	if !ok {
		return p, fmt.Errorf("property %s: %w", id, store.ErrNotFound)
	}

	return p.Clone(), nil
}

// UpdateProperty applies fn to the property and saves it.
func (m *Memory) UpdateProperty(_ context.Context, id string, fn func(*store.Property) error) (store.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.properties[id]
	if !ok {
		return p, fmt.Errorf("property %s: %w", id, store.ErrNotFound)
	}

	p = p.Clone()
	if err := fn(&p); err != nil {
		return store.Property{}, err
	}

	p.ID = id
	p.UpdatedAt = store.Now()
	m.properties[id] = p.Clone()

	return p, nil
}

// DeleteProperty removes the property.
func (m *Memory) DeleteProperty(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.properties[id]; !ok {
		return fmt.Errorf("property %s: %w", id, store.ErrNotFound)
	}

	delete(m.properties, id)
	m.pOrder = remove(m.pOrder, id)

	return nil
}

// ListProperties returns the properties matching the filter.
func (m *Memory) ListProperties(_ context.Context, f store.PropertyFilter) ([]store.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ps := []store.Property{}

	for _, id := range m.pOrder {
		if p := m.properties[id]; f.Match(p) {
			ps = append(ps, p.Clone())
		}
	}

	return ps, nil
}

// CreateRental saves a new rental.
func (m *Memory) CreateRental(_ context.Context, r store.Rental) (store.Rental, error) {
	r.Init(store.Now())

	m.mu.Lock()
	m.rentals[r.ID] = r.Clone()
	m.rOrder = append(m.rOrder, r.ID)
	m.mu.Unlock()

	return r, nil
}

// GetRental returns the rental with the given id.
func (m *Memory) GetRental(_ context.Context, id string) (store.Rental, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rentals[id]
	if !ok {
		return r, fmt.Errorf("rental %s: %w", id, store.ErrNotFound)
	}

	return r.Clone(), nil
}

// UpdateRental applies fn to the rental and saves it. Payments can not be modified through fn.
func (m *Memory) UpdateRental(_ context.Context, id string, fn func(*store.Rental) error) (store.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.rentals[id]
	if !ok {
		return old, fmt.Errorf("rental %s: %w", id, store.ErrNotFound)
	}

	r := old.Clone()
	if err := fn(&r); err != nil {
		return store.Rental{}, err
	}

	r.ID = id
	r.Payments = old.Clone().Payments
	r.UpdatedAt = store.Now()
	m.rentals[id] = r.Clone()

	return r, nil
}

// DeleteRental removes the rental.
func (m *Memory) DeleteRental(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rentals[id]; !ok {
		return fmt.Errorf("rental %s: %w", id, store.ErrNotFound)
	}

	delete(m.rentals, id)
	m.rOrder = remove(m.rOrder, id)

	return nil
}

// ListRentals returns the rentals matching the filter.
func (m *Memory) ListRentals(_ context.Context, f store.RentalFilter) ([]store.Rental, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs := []store.Rental{}

	for _, id := range m.rOrder {
		if r := m.rentals[id]; f.Match(r) {
			rs = append(rs, r.Clone())
		}
	}

	return rs, nil
}

// AddPayment appends a payment to the rental.
func (m *Memory) AddPayment(_ context.Context, rentalID string, p store.Payment) (store.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rentals[rentalID]
	if !ok {
		return p, fmt.Errorf("rental %s: %w", rentalID, store.ErrNotFound)
	}

	now := store.Now()
	p.Init(now)

	r = r.Clone()
	r.Payments = append(r.Payments, p)
	r.UpdatedAt = now
	m.rentals[rentalID] = r

	return p, nil
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}

	return ids
}
