package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rental statuses.
const (
	StatusActive     = "active"
	StatusTerminated = "terminated"
	StatusCompleted  = "completed"
)

// Currencies a rent can be set in.
const (
	CurrencyXLM = "XLM"
	CurrencyUSD = "USD"
)

// Property contains the fields of a listed property.
type Property struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Address           string          `json:"address"`
	MonthlyRent       decimal.Decimal `json:"monthlyRent"`
	Currency          string          `json:"currency"`
	LandlordPublicKey string          `json:"landlordPublicKey"`
	Features          []string        `json:"features"`
	Images            []string        `json:"images"`
	IsAvailable       bool            `json:"isAvailable"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Rental contains the fields of a rental agreement. PropertyID is not checked against the properties collection.
type Rental struct {
	ID                string          `json:"id"`
	PropertyID        string          `json:"propertyId"`
	TenantPublicKey   string          `json:"tenantPublicKey"`
	LandlordPublicKey string          `json:"landlordPublicKey"`
	MonthlyRent       decimal.Decimal `json:"monthlyRent"`
	Currency          string          `json:"currency"`
	StartDate         time.Time       `json:"startDate"`
	EndDate           time.Time       `json:"endDate"`
	Deposit           decimal.Decimal `json:"deposit"`
	Terms             string          `json:"terms,omitempty"`
	Status            string          `json:"status"`
	Payments          []Payment       `json:"payments"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Payment is a rent payment recorded against a rental once the ledger accepted it.
type Payment struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TransactionHash string          `json:"transactionHash"`
	Memo            string          `json:"memo"`
	Network         string          `json:"network,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// PropertyFilter selects properties. Zero values match everything. Search is a case insensitive substring matched
// against title, description and address.
type PropertyFilter struct {
	Available *bool
	Landlord  string
	Search    string
}

// RentalFilter selects rentals by tenant, landlord and status.
type RentalFilter struct {
	Tenant   string
	Landlord string
	Status   string
}

// Now returns the current time with the precision kept by every store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Init assigns a new id and the creation timestamps.
func (p *Property) Init(now time.Time) {
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now

	if p.Features == nil {
		p.Features = []string{}
	}

	if p.Images == nil {
		p.Images = []string{}
	}
}

// Init assigns a new id and the creation timestamps.
func (r *Rental) Init(now time.Time) {
	r.ID = uuid.NewString()
	r.CreatedAt, r.UpdatedAt = now, now

	if r.Payments == nil {
		r.Payments = []Payment{}
	}
}

// Init assigns a new id and the timestamp if not set.
func (p *Payment) Init(now time.Time) {
	p.ID = uuid.NewString()

	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
}

// Clone returns a copy that shares no slices with p.
func (p Property) Clone() Property {
	p.Features = append([]string{}, p.Features...)
	p.Images = append([]string{}, p.Images...)

	return p
}

// Clone returns a copy that shares no slices with r.
func (r Rental) Clone() Rental {
	r.Payments = append([]Payment{}, r.Payments...)

	return r
}

// Match reports whether p is selected by the filter.
func (f PropertyFilter) Match(p Property) bool {
	if f.Available != nil && p.IsAvailable != *f.Available {
		return false
	}

	if f.Landlord != "" && p.LandlordPublicKey != f.Landlord {
		return false
	}

	if f.Search != "" {
		s := strings.ToLower(f.Search)

		return strings.Contains(strings.ToLower(p.Title), s) ||
			strings.Contains(strings.ToLower(p.Description), s) ||
			strings.Contains(strings.ToLower(p.Address), s)
	}

	return true
}

// Match reports whether r is selected by the filter.
func (f RentalFilter) Match(r Rental) bool {
	return (f.Tenant == "" || r.TenantPublicKey == f.Tenant) &&
		(f.Landlord == "" || r.LandlordPublicKey == f.Landlord) &&
		(f.Status == "" || r.Status == f.Status)
}
