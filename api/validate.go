package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/tarancss/rentguard/lib/ledger/types"
	"github.com/tarancss/rentguard/lib/store"
	"github.com/tarancss/rentguard/lib/util"
)

const (
	maxImages      = 10
	maxTerms       = 1000
	amountDecimals = 7
)

var (
	currencies = []string{store.CurrencyXLM, store.CurrencyUSD}
	statuses   = []string{store.StatusActive, store.StatusTerminated, store.StatusCompleted}
	// largest amount a ledger payment can carry
	maxAmount = decimal.New(9223372036854775807, -amountDecimals)
)

// validation returns a validation error listing errs, or nil if there are none.
func validation(errs []string) error {
	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, "; "))
}

func checkLength(field, s string, min, max int) []string {
	if n := utf8.RuneCountInString(strings.TrimSpace(s)); n < min || n > max {
		return []string{fmt.Sprintf("%s must be between %d and %d characters", field, min, max)}
	}

	return nil
}

func checkRequired(field, s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{field + " is required"}
	}

	return nil
}

func checkAmount(field string, d *decimal.Decimal) []string {
	switch {
	case d == nil:
		return []string{field + " is required"}
	case !d.IsPositive():
		return []string{field + " must be greater than 0"}
	}

	return checkDecimal(field, *d)
}

// checkDecimal bounds d to what a ledger payment can carry.
func checkDecimal(field string, d decimal.Decimal) []string {
	switch {
	case !d.Equal(d.Truncate(amountDecimals)):
		return []string{fmt.Sprintf("%s must have at most %d decimal places", field, amountDecimals)}
	case d.GreaterThan(maxAmount):
		return []string{fmt.Sprintf("%s must be at most %s", field, maxAmount)}
	}

	return nil
}

func checkMemo(memo string) []string {
	if len(memo) > types.MaxMemoBytes {
		return []string{fmt.Sprintf("memo must be at most %d bytes", types.MaxMemoBytes)}
	}

	return nil
}

func checkCurrency(c string) []string {
	if !util.In(currencies, c) {
		return []string{"currency must be one of: " + strings.Join(currencies, ", ")}
	}

	return nil
}

func checkImages(images []string) []string {
	if len(images) > maxImages {
		return []string{fmt.Sprintf("images must contain at most %d items", maxImages)}
	}

	for _, img := range images {
		u, err := url.Parse(img)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return []string{"images must be valid URLs"}
		}
	}

	return nil
}

// date accepts either an RFC3339 timestamp or a plain 2006-01-02 date.
type date struct {
	time.Time
}

func (d *date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()

			return nil
		}
	}

	return fmt.Errorf("invalid date %q", s)
}
