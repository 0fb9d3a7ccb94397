package mongo

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tarancss/rentguard/lib/store"
)

func TestDecimal(t *testing.T) {
	for _, c := range []struct {
		v  string
		ok bool
	}{
		{"1500", true},
		{"0.0000001", true},
		{"922337203685.4775807", true},
		{"-12.5", true},
		{"0.1234567890123456789012345678901234567", false},
	} {
		d := decimal.RequireFromString(c.v)

		v, err := dec(d)
		if !c.ok {
			if !errors.Is(err, store.ErrBadAmount) {
				t.Errorf("[%s] expected ErrBadAmount, got %v", c.v, err)
			}

			continue
		}

		if err != nil {
			t.Errorf("[%s] Error encoding:%v", c.v, err)

			continue
		}

		if got := undec(v); !got.Equal(d) {
			t.Errorf("[%s] does not round trip: %s", c.v, got)
		}
	}
}

func TestRentalDocBadAmount(t *testing.T) {
	r := store.Rental{
		MonthlyRent: decimal.NewFromInt(100),
		Payments:    []store.Payment{{Amount: decimal.RequireFromString("0.1234567890123456789012345678901234567")}},
	}

	if _, err := toRentalDoc(r); !errors.Is(err, store.ErrBadAmount) {
		t.Errorf("expected ErrBadAmount, got %v", err)
	}

	r.Payments = nil

	d, err := toRentalDoc(r)
	if err != nil || !d.rental().MonthlyRent.Equal(r.MonthlyRent) {
		t.Errorf("Error encoding rental %+v:%v", d, err)
	}
}
