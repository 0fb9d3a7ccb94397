// Package storetest checks the behaviour shared by all store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tarancss/rentguard/lib/store"
)

// Keys used as landlord and tenant. Tests add a random suffix to the search terms so they can share a database.
const (
	Landlord = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
	Tenant   = "GCEZWKCA5VLDNRLN3RPRJMRZOX3Z6G5CHCGSNFHEYVXM3XOJMDS674JZ"
)

// Run exercises s with properties and rentals created by the test. s must not be shared with other running tests.
func Run(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("Properties", func(t *testing.T) { properties(t, s) })
	t.Run("Rentals", func(t *testing.T) { rentals(t, s) })
	t.Run("Payments", func(t *testing.T) { payments(t, s) })
	t.Run("Amounts", func(t *testing.T) { amounts(t, s) })
}

func properties(t *testing.T, s store.Store) {
	ctx := context.Background()
	tag := uuid.NewString()[:8]

	loft, err := s.CreateProperty(ctx, store.Property{
		Title:             "Loft " + tag,
		Description:       "A nice loft space",
		Address:           "1 Main St",
		MonthlyRent:       decimal.NewFromInt(50),
		Currency:          store.CurrencyXLM,
		LandlordPublicKey: Landlord,
		Features:          []string{"balcony"},
		IsAvailable:       true,
	})
	if err != nil {
		t.Fatalf("Error creating property:%v", err)
	}

	if loft.ID == "" || loft.CreatedAt.IsZero() || !loft.CreatedAt.Equal(loft.UpdatedAt) {
		t.Errorf("id or timestamps not assigned %+v", loft)
	}

	cabin, err := s.CreateProperty(ctx, store.Property{
		Title:             "Cabin",
		Description:       "Wooden cabin by the lake " + tag,
		Address:           "9 Lake Rd",
		MonthlyRent:       decimal.RequireFromString("120.5"),
		Currency:          store.CurrencyUSD,
		LandlordPublicKey: Tenant,
		IsAvailable:       false,
	})
	if err != nil {
		t.Fatalf("Error creating property:%v", err)
	}

	if cabin.ID == loft.ID {
		t.Errorf("ids are not unique: %s", cabin.ID)
	}

	got, err := s.GetProperty(ctx, loft.ID)
	if err != nil {
		t.Fatalf("Error getting property:%v", err)
	}

	if got.Title != loft.Title || !got.MonthlyRent.Equal(loft.MonthlyRent) || len(got.Features) != 1 ||
		!got.CreatedAt.Equal(loft.CreatedAt) || !got.IsAvailable {
		t.Errorf("property does not round trip: %+v, expected %+v", got, loft)
	}

	// filters
	yes := true

	for i, tc := range []struct {
		f    store.PropertyFilter
		want []string
	}{
		{store.PropertyFilter{Search: tag}, []string{loft.ID, cabin.ID}},
		{store.PropertyFilter{Search: "LOFT " + tag}, []string{loft.ID}},
		{store.PropertyFilter{Search: "lake " + tag}, []string{cabin.ID}},
		{store.PropertyFilter{Search: tag, Available: &yes}, []string{loft.ID}},
		{store.PropertyFilter{Search: tag, Landlord: Tenant}, []string{cabin.ID}},
		{store.PropertyFilter{Search: tag + ".*"}, nil},
	} {
		ps, err := s.ListProperties(ctx, tc.f)
		if err != nil {
			t.Fatalf("[%d] Error listing properties:%v", i, err)
		}

		if !sameIDs(propertyIDs(ps), tc.want) {
			t.Errorf("[%d] filter %+v got %v expected %v", i, tc.f, propertyIDs(ps), tc.want)
		}
	}

	// update
	time.Sleep(2 * time.Millisecond)

	upd, err := s.UpdateProperty(ctx, loft.ID, func(p *store.Property) error {
		p.IsAvailable = false
		p.MonthlyRent = decimal.NewFromInt(55)

		return nil
	})
	if err != nil {
		t.Fatalf("Error updating property:%v", err)
	}

	if upd.IsAvailable || !upd.MonthlyRent.Equal(decimal.NewFromInt(55)) || !upd.UpdatedAt.After(upd.CreatedAt) {
		t.Errorf("update not applied %+v", upd)
	}

	if got, _ = s.GetProperty(ctx, loft.ID); got.IsAvailable || got.Title != loft.Title {
		t.Errorf("update not saved %+v", got)
	}

	// a failing mutation saves nothing
	errAbort := errors.New("abort")
	if _, err = s.UpdateProperty(ctx, loft.ID, func(p *store.Property) error {
		p.Title = "changed"

		return errAbort
	}); !errors.Is(err, errAbort) {
		t.Errorf("expected errAbort, got %v", err)
	}

	if got, _ = s.GetProperty(ctx, loft.ID); got.Title != loft.Title {
		t.Errorf("aborted update was saved %+v", got)
	}

	// delete
	for _, id := range []string{loft.ID, cabin.ID} {
		if err = s.DeleteProperty(ctx, id); err != nil {
			t.Errorf("Error deleting property:%v", err)
		}
	}

	if _, err = s.GetProperty(ctx, loft.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err = s.DeleteProperty(ctx, loft.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err = s.UpdateProperty(ctx, uuid.NewString(), func(*store.Property) error { return nil }); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func newRental(tenant, status string) store.Rental {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	return store.Rental{
		PropertyID:        uuid.NewString(),
		TenantPublicKey:   tenant,
		LandlordPublicKey: Landlord,
		MonthlyRent:       decimal.NewFromInt(50),
		Currency:          store.CurrencyXLM,
		StartDate:         start,
		EndDate:           start.AddDate(1, 0, 0),
		Deposit:           decimal.NewFromInt(100),
		Terms:             "No pets",
		Status:            status,
	}
}

func rentals(t *testing.T, s store.Store) {
	ctx := context.Background()
	tenant := "T" + uuid.NewString()

	a, err := s.CreateRental(ctx, newRental(tenant, store.StatusActive))
	if err != nil {
		t.Fatalf("Error creating rental:%v", err)
	}

	b, err := s.CreateRental(ctx, newRental(tenant, store.StatusCompleted))
	if err != nil {
		t.Fatalf("Error creating rental:%v", err)
	}

	got, err := s.GetRental(ctx, a.ID)
	if err != nil {
		t.Fatalf("Error getting rental:%v", err)
	}

	if got.PropertyID != a.PropertyID || !got.StartDate.Equal(a.StartDate) || !got.EndDate.Equal(a.EndDate) ||
		!got.Deposit.Equal(a.Deposit) || got.Terms != a.Terms || got.Payments == nil {
		t.Errorf("rental does not round trip: %+v, expected %+v", got, a)
	}

	for i, tc := range []struct {
		f    store.RentalFilter
		want []string
	}{
		{store.RentalFilter{Tenant: tenant}, []string{a.ID, b.ID}},
		{store.RentalFilter{Tenant: tenant, Status: store.StatusActive}, []string{a.ID}},
		{store.RentalFilter{Tenant: tenant, Landlord: Tenant}, nil},
	} {
		rs, err := s.ListRentals(ctx, tc.f)
		if err != nil {
			t.Fatalf("[%d] Error listing rentals:%v", i, err)
		}

		if !sameIDs(rentalIDs(rs), tc.want) {
			t.Errorf("[%d] filter %+v got %v expected %v", i, tc.f, rentalIDs(rs), tc.want)
		}
	}

	upd, err := s.UpdateRental(ctx, a.ID, func(r *store.Rental) error {
		r.Status = store.StatusTerminated

		return nil
	})
	if err != nil || upd.Status != store.StatusTerminated {
		t.Errorf("status not updated %+v %v", upd, err)
	}

	for _, id := range []string{a.ID, b.ID} {
		if err = s.DeleteRental(ctx, id); err != nil {
			t.Errorf("Error deleting rental:%v", err)
		}
	}

	if _, err = s.GetRental(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err = s.DeleteRental(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func payments(t *testing.T, s store.Store) {
	ctx := context.Background()

	r, err := s.CreateRental(ctx, newRental(Tenant, store.StatusActive))
	if err != nil {
		t.Fatalf("Error creating rental:%v", err)
	}

	defer s.DeleteRental(ctx, r.ID) //nolint:errcheck // cleanup

	for i, hash := range []string{"aa", "bb"} {
		p, err := s.AddPayment(ctx, r.ID, store.Payment{
			Amount:          decimal.NewFromInt(int64(50 + i)),
			Currency:        store.CurrencyXLM,
			TransactionHash: hash,
			Memo:            "Rent",
		})
		if err != nil {
			t.Fatalf("Error adding payment:%v", err)
		}

		if p.ID == "" || p.Timestamp.IsZero() {
			t.Errorf("payment id or timestamp not assigned %+v", p)
		}
	}

	// payments are not modified through updates
	if _, err = s.UpdateRental(ctx, r.ID, func(r *store.Rental) error {
		r.Payments = nil

		return nil
	}); err != nil {
		t.Fatalf("Error updating rental:%v", err)
	}

	got, err := s.GetRental(ctx, r.ID)
	if err != nil {
		t.Fatalf("Error getting rental:%v", err)
	}

	if len(got.Payments) != 2 || got.Payments[0].TransactionHash != "aa" || got.Payments[1].TransactionHash != "bb" ||
		!got.Payments[1].Amount.Equal(decimal.NewFromInt(51)) {
		t.Errorf("payments not kept in order %+v", got.Payments)
	}

	if _, err = s.AddPayment(ctx, uuid.NewString(), store.Payment{TransactionHash: "cc"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func propertyIDs(ps []store.Property) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}

	return ids
}

func rentalIDs(rs []store.Rental) []string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}

	return ids
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}

	return true
}

// amounts checks that decimals are either kept exactly or refused with store.ErrBadAmount, never altered.
func amounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, v := range []string{"922337203685.4775807", "0.0000001", "0.1234567890123456789012345678901234567"} {
		want := decimal.RequireFromString(v)

		r := newRental("T"+uuid.NewString(), store.StatusActive)
		r.MonthlyRent, r.Deposit = want, want

		r, err := s.CreateRental(ctx, r)
		if err != nil {
			if !errors.Is(err, store.ErrBadAmount) {
				t.Errorf("[%s] expected ErrBadAmount, got %v", v, err)
			}

			continue
		}

		got, err := s.GetRental(ctx, r.ID)
		if err != nil {
			t.Fatalf("[%s] Error getting rental:%v", v, err)
		}

		if !got.MonthlyRent.Equal(want) || !got.Deposit.Equal(want) {
			t.Errorf("[%s] amounts altered: rent %s deposit %s", v, got.MonthlyRent, got.Deposit)
		}

		if _, err = s.AddPayment(ctx, r.ID, store.Payment{Amount: want, Currency: store.CurrencyXLM,
			TransactionHash: "cc"}); err != nil && !errors.Is(err, store.ErrBadAmount) {
			t.Errorf("[%s] expected ErrBadAmount, got %v", v, err)
		}

		if got, _ = s.GetRental(ctx, r.ID); len(got.Payments) == 1 && !got.Payments[0].Amount.Equal(want) {
			t.Errorf("[%s] payment amount altered: %s", v, got.Payments[0].Amount)
		}

		if err = s.DeleteRental(ctx, r.ID); err != nil {
			t.Errorf("[%s] Error deleting rental:%v", v, err)
		}
	}
}
