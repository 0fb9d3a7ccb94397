package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tarancss/rentguard/lib/store"
	"github.com/tarancss/rentguard/lib/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, New())
}

func TestConcurrentPayments(t *testing.T) {
	m := New()
	ctx := context.Background()

	r, err := m.CreateRental(ctx, store.Rental{TenantPublicKey: storetest.Tenant, Status: store.StatusActive})
	if err != nil {
		t.Fatalf("Error creating rental:%v", err)
	}

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := m.AddPayment(ctx, r.ID, store.Payment{Amount: decimal.NewFromInt(1)}); err != nil {
				t.Errorf("Error adding payment:%v", err)
			}
		}()
	}

	wg.Wait()

	if got, _ := m.GetRental(ctx, r.ID); len(got.Payments) != 50 {
		t.Errorf("%d payments recorded, expected 50", len(got.Payments))
	}
}

func TestIsolation(t *testing.T) {
	m := New()
	ctx := context.Background()

	p, _ := m.CreateProperty(ctx, store.Property{Title: "Loft", Features: []string{"balcony"}})
	p.Features[0] = "changed"

	if got, _ := m.GetProperty(ctx, p.ID); got.Features[0] != "balcony" {
		t.Errorf("stored property shares memory with the caller: %v", got.Features)
	}
}
