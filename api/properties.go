package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/tarancss/rentguard/lib/store"
)

// propertyInput is the body of property create and update requests. Nil fields are left unchanged on update.
type propertyInput struct {
	Title             *string          `json:"title"`
	Description       *string          `json:"description"`
	Address           *string          `json:"address"`
	MonthlyRent       *decimal.Decimal `json:"monthlyRent"`
	Currency          *string          `json:"currency"`
	LandlordPublicKey *string          `json:"landlordPublicKey"`
	Features          []string         `json:"features"`
	Images            []string         `json:"images"`
	IsAvailable       *bool            `json:"isAvailable"`
}

// apply copies the informed fields into p.
func (in propertyInput) apply(p *store.Property) {
	if in.Title != nil {
		p.Title = *in.Title
	}

	if in.Description != nil {
		p.Description = *in.Description
	}

	if in.Address != nil {
		p.Address = *in.Address
	}

	if in.MonthlyRent != nil {
		p.MonthlyRent = *in.MonthlyRent
	}

	if in.Currency != nil {
		p.Currency = *in.Currency
	}

	if in.LandlordPublicKey != nil {
		p.LandlordPublicKey = *in.LandlordPublicKey
	}

	if in.Features != nil {
		p.Features = in.Features
	}

	if in.Images != nil {
		p.Images = in.Images
	}

	if in.IsAvailable != nil {
		p.IsAvailable = *in.IsAvailable
	}
}

func validateProperty(p store.Property) error {
	var errs []string

	errs = append(errs, checkLength("title", p.Title, 3, 100)...)
	errs = append(errs, checkLength("description", p.Description, 10, 1000)...)
	errs = append(errs, checkLength("address", p.Address, 5, 200)...)

	if !p.MonthlyRent.IsPositive() {
		errs = append(errs, "monthlyRent must be greater than 0")
	} else {
		errs = append(errs, checkDecimal("monthlyRent", p.MonthlyRent)...)
	}

	errs = append(errs, checkCurrency(p.Currency)...)
	errs = append(errs, checkRequired("landlordPublicKey", p.LandlordPublicKey)...)
	errs = append(errs, checkImages(p.Images)...)

	return validation(errs)
}

// listPropertiesHandler replies the properties selected by the available, landlord and search query parameters.
func (s *Service) listPropertiesHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	q := r.URL.Query()
	f := store.PropertyFilter{Landlord: q.Get("landlord"), Search: q.Get("search")}

	// only available=true filters, any other value lists every property
	if q.Get("available") == "true" {
		avail := true
		f.Available = &avail
	}

	props, err := s.db.ListProperties(r.Context(), f)
	if err != nil {
		return
	}

	res = Response{"properties": props}
}

// createPropertyHandler lists a new property. Currency defaults to XLM and the property is available unless told
// otherwise.
func (s *Service) createPropertyHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusCreated, res, err) }()

	var in propertyInput
	if err = decode(r, &in); err != nil {
		return
	}

	p := store.Property{Currency: store.CurrencyXLM, IsAvailable: true}
	in.apply(&p)

	if err = validateProperty(p); err != nil {
		return
	}

	p, err = s.db.CreateProperty(r.Context(), p)
	if err != nil {
		return
	}

	res = Response{"property": p}
}

// getPropertyHandler replies a property.
func (s *Service) getPropertyHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	p, err := s.db.GetProperty(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		err = found("Property", err)

		return
	}

	res = Response{"property": p}
}

// updatePropertyHandler changes the informed fields of a property. The landlord cannot be changed.
func (s *Service) updatePropertyHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	var in propertyInput
	if err = decode(r, &in); err != nil {
		return
	}

	if in.LandlordPublicKey != nil {
		err = fmt.Errorf("%w: landlordPublicKey cannot be changed", ErrValidation)

		return
	}

	p, err := s.db.UpdateProperty(r.Context(), mux.Vars(r)["id"], func(p *store.Property) error {
		in.apply(p)

		return validateProperty(*p)
	})
	if err != nil {
		err = found("Property", err)

		return
	}

	res = Response{"property": p}
}

// deletePropertyHandler removes a property.
func (s *Service) deletePropertyHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	if err = s.db.DeleteProperty(r.Context(), mux.Vars(r)["id"]); err != nil {
		err = found("Property", err)

		return
	}

	res = Response{"message": "Property deleted successfully"}
}
