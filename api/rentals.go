package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/tarancss/rentguard/lib/ledger"
	"github.com/tarancss/rentguard/lib/ledger/types"
	"github.com/tarancss/rentguard/lib/logging"
	"github.com/tarancss/rentguard/lib/metrics"
	"github.com/tarancss/rentguard/lib/msg"
	"github.com/tarancss/rentguard/lib/store"
	"github.com/tarancss/rentguard/lib/util"
)

// rentalInput is the body of rental create and update requests. Nil fields are left unchanged on update.
type rentalInput struct {
	PropertyID        *string          `json:"propertyId"`
	TenantPublicKey   *string          `json:"tenantPublicKey"`
	LandlordPublicKey *string          `json:"landlordPublicKey"`
	MonthlyRent       *decimal.Decimal `json:"monthlyRent"`
	Currency          *string          `json:"currency"`
	StartDate         *date            `json:"startDate"`
	EndDate           *date            `json:"endDate"`
	Deposit           *decimal.Decimal `json:"deposit"`
	Terms             *string          `json:"terms"`
	Status            *string          `json:"status"`
}

// apply copies the informed fields into r.
func (in rentalInput) apply(r *store.Rental) {
	if in.PropertyID != nil {
		r.PropertyID = *in.PropertyID
	}

	if in.TenantPublicKey != nil {
		r.TenantPublicKey = *in.TenantPublicKey
	}

	if in.LandlordPublicKey != nil {
		r.LandlordPublicKey = *in.LandlordPublicKey
	}

	if in.MonthlyRent != nil {
		r.MonthlyRent = *in.MonthlyRent
	}

	if in.Currency != nil {
		r.Currency = *in.Currency
	}

	if in.StartDate != nil {
		r.StartDate = in.StartDate.Time
	}

	if in.EndDate != nil {
		r.EndDate = in.EndDate.Time
	}

	if in.Deposit != nil {
		r.Deposit = *in.Deposit
	}

	if in.Terms != nil {
		r.Terms = *in.Terms
	}

	if in.Status != nil {
		r.Status = *in.Status
	}
}

func validateRental(r store.Rental) error {
	var errs []string

	errs = append(errs, checkRequired("propertyId", r.PropertyID)...)
	errs = append(errs, checkRequired("tenantPublicKey", r.TenantPublicKey)...)
	errs = append(errs, checkRequired("landlordPublicKey", r.LandlordPublicKey)...)

	if !r.MonthlyRent.IsPositive() {
		errs = append(errs, "monthlyRent must be greater than 0")
	} else {
		errs = append(errs, checkDecimal("monthlyRent", r.MonthlyRent)...)
	}

	errs = append(errs, checkCurrency(r.Currency)...)

	switch {
	case r.StartDate.IsZero():
		errs = append(errs, "startDate is required")
	case r.EndDate.IsZero():
		errs = append(errs, "endDate is required")
	case !r.EndDate.After(r.StartDate):
		errs = append(errs, "endDate must be greater than startDate")
	}

	if r.Deposit.IsNegative() {
		errs = append(errs, "deposit must not be negative")
	} else {
		errs = append(errs, checkDecimal("deposit", r.Deposit)...)
	}

	if len([]rune(r.Terms)) > maxTerms {
		errs = append(errs, fmt.Sprintf("terms must be at most %d characters", maxTerms))
	}

	if !util.In(statuses, r.Status) {
		errs = append(errs, "Invalid status. Must be one of: active, terminated, completed")
	}

	return validation(errs)
}

// listRentalsHandler replies the rentals selected by the tenant, landlord and status query parameters.
func (s *Service) listRentalsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	q := r.URL.Query()
	f := store.RentalFilter{Tenant: q.Get("tenant"), Landlord: q.Get("landlord"), Status: q.Get("status")}

	if f.Status != "" && !util.In(statuses, f.Status) {
		err = fmt.Errorf("%w: Invalid status. Must be one of: active, terminated, completed", ErrValidation)

		return
	}

	rentals, err := s.db.ListRentals(r.Context(), f)
	if err != nil {
		return
	}

	res = Response{"rentals": rentals}
}

// createRentalHandler records a new rental agreement. New agreements are always active.
func (s *Service) createRentalHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusCreated, res, err) }()

	var in rentalInput
	if err = decode(r, &in); err != nil {
		return
	}

	if in.Status != nil {
		err = fmt.Errorf("%w: status cannot be set on creation", ErrValidation)

		return
	}

	rental := store.Rental{Currency: store.CurrencyXLM, Status: store.StatusActive}
	in.apply(&rental)

	if err = validateRental(rental); err != nil {
		return
	}

	rental, err = s.db.CreateRental(r.Context(), rental)
	if err != nil {
		return
	}

	res = Response{"rental": rental}
}

// getRentalHandler replies a rental with its payments.
func (s *Service) getRentalHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	rental, err := s.db.GetRental(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		err = found("Rental", err)

		return
	}

	res = Response{"rental": rental}
}

// updateRentalHandler changes the informed fields of a rental. Payments are kept.
func (s *Service) updateRentalHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	var in rentalInput
	if err = decode(r, &in); err != nil {
		return
	}

	rental, err := s.db.UpdateRental(r.Context(), mux.Vars(r)["id"], func(rental *store.Rental) error {
		in.apply(rental)

		return validateRental(*rental)
	})
	if err != nil {
		err = found("Rental", err)

		return
	}

	res = Response{"rental": rental}
}

// rentalStatusHandler changes the status of a rental.
func (s *Service) rentalStatusHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	var req struct {
		Status string `json:"status"`
	}

	if err = decode(r, &req); err != nil {
		return
	}

	if !util.In(statuses, req.Status) {
		err = fmt.Errorf("%w: Invalid status. Must be one of: active, terminated, completed", ErrValidation)

		return
	}

	rental, err := s.db.UpdateRental(r.Context(), mux.Vars(r)["id"], func(rental *store.Rental) error {
		rental.Status = req.Status

		return nil
	})
	if err != nil {
		err = found("Rental", err)

		return
	}

	res = Response{"rental": rental}
}

// deleteRentalHandler removes a rental and its payments.
func (s *Service) deleteRentalHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	if err = s.db.DeleteRental(r.Context(), mux.Vars(r)["id"]); err != nil {
		err = found("Rental", err)

		return
	}

	res = Response{"message": "Rental deleted successfully"}
}

// rentalPaymentsHandler replies the payments recorded against a rental.
func (s *Service) rentalPaymentsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	rental, err := s.db.GetRental(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		err = found("Rental", err)

		return
	}

	res = Response{"payments": rental.Payments}
}

// rentPaymentRequest pays the rent of a rental. Exactly one of SourceSecret, to have the server build and sign
// the payment, or TransactionXDR, an envelope already signed by the tenant wallet, must be informed.
type rentPaymentRequest struct {
	RentalID       string           `json:"rentalId"`
	Amount         *decimal.Decimal `json:"amount"`
	SourceSecret   string           `json:"sourceSecret"`
	TransactionXDR string           `json:"transactionXdr"`
	Memo           string           `json:"memo"`
}

func (p rentPaymentRequest) validate() error {
	var errs []string

	errs = append(errs, checkRequired("rentalId", p.RentalID)...)
	errs = append(errs, checkAmount("amount", p.Amount)...)

	if (p.SourceSecret == "") == (p.TransactionXDR == "") {
		errs = append(errs, "exactly one of sourceSecret or transactionXdr is required")
	}

	errs = append(errs, checkMemo(p.Memo)...)

	return validation(errs)
}

// rentPaymentHandler pays the rent of a rental to its landlord in the rental currency, submits the payment to the
// ledger and records it against the rental. Nothing is recorded unless the ledger accepts the payment.
func (s *Service) rentPaymentHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	var req rentPaymentRequest
	if err = decode(r, &req); err != nil {
		return
	}

	if err = req.validate(); err != nil {
		return
	}

	rental, err := s.db.GetRental(r.Context(), req.RentalID)
	if err != nil {
		err = found("Rental", err)

		return
	}

	l, err := s.ledgerFor(r)
	if err != nil {
		return
	}

	asset, err := l.AssetFor(rental.Currency)
	if err != nil {
		return
	}

	xdr, memo := req.TransactionXDR, req.Memo
	if req.SourceSecret != "" {
		if memo == "" {
			memo = util.Truncate("Rent "+rental.ID, types.MaxMemoBytes)
		}

		var env types.Envelope

		env, err = l.CreatePayment(r.Context(), types.Payment{
			Source:      types.ManualCredential{Secret: req.SourceSecret},
			Destination: rental.LandlordPublicKey,
			Amount:      req.Amount.String(),
			Asset:       asset,
			Memo:        memo,
		})
		if err != nil {
			return
		}

		xdr = env.XDR
	} else if memo, err = checkEnvelope(l, xdr, rental, asset, *req.Amount, req.Memo); err != nil {
		return
	}

	result, err := l.Submit(r.Context(), xdr)
	if err != nil {
		return
	}

	net := l.Info().Network

	pay, err := s.db.AddPayment(r.Context(), rental.ID, store.Payment{
		Amount:          *req.Amount,
		Currency:        rental.Currency,
		TransactionHash: result.Hash,
		Memo:            memo,
		Network:         net,
	})
	if err != nil {
		logging.Errorf("[%s] payment %s accepted by the ledger could not be recorded for rental %s:%v", net,
			result.Hash, rental.ID, err)

		err = found("Rental", err)

		return
	}

	metrics.PaymentsRecorded.WithLabelValues(net).Inc()
	s.publish(net, rental, pay)

	res = Response{"payment": pay, "transaction": result}
}

// checkEnvelope verifies that a wallet signed envelope pays amount of asset to the landlord of the rental and
// returns its memo. A memo, if informed, must be the envelope one.
func checkEnvelope(l ledger.Ledger, xdr string, rental store.Rental, asset string, amount decimal.Decimal,
	memo string) (string, error) {
	p, err := l.Decode(xdr)
	if err != nil {
		return "", err
	}

	if p.Destination != rental.LandlordPublicKey {
		return "", fmt.Errorf("%w: transaction destination is not the rental landlord", ErrValidation)
	}

	if p.Asset != asset {
		return "", fmt.Errorf("%w: transaction asset does not match the rental currency", ErrValidation)
	}

	if a, errA := decimal.NewFromString(p.Amount); errA != nil || !a.Equal(amount) {
		return "", fmt.Errorf("%w: transaction amount does not match the payment amount", ErrValidation)
	}

	if memo != "" && memo != p.Memo {
		return "", fmt.Errorf("%w: transaction memo does not match the payment memo", ErrValidation)
	}

	return p.Memo, nil
}

// publish sends the payment event to the message broker, if any. Failures are only logged.
func (s *Service) publish(net string, rental store.Rental, pay store.Payment) {
	if s.mb == nil {
		return
	}

	e := msg.PaymentEvent{
		Net:        net,
		RentalID:   rental.ID,
		PropertyID: rental.PropertyID,
		PaymentID:  pay.ID,
		Tenant:     rental.TenantPublicKey,
		Landlord:   rental.LandlordPublicKey,
		Amount:     pay.Amount.String(),
		Currency:   pay.Currency,
		Hash:       pay.TransactionHash,
		Memo:       pay.Memo,
		Timestamp:  pay.Timestamp,
	}

	start := time.Now()
	if err := s.mb.SendPayment(net, e); err != nil {
		logging.Errorf("[%s] could not publish payment %s:%v", net, pay.TransactionHash, err)

		return
	}

	logging.Debugf("[%s] payment %s published in %v", net, pay.TransactionHash, time.Since(start))
}
