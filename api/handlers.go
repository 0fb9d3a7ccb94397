package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/tarancss/rentguard/lib/ledger"
	"github.com/tarancss/rentguard/lib/ledger/types"
	"github.com/tarancss/rentguard/lib/logging"
	"github.com/tarancss/rentguard/lib/store"
	"github.com/tarancss/rentguard/lib/util"
)

// ErrValidation wraps every error caused by a malformed request. Clients get the text after the prefix.
var ErrValidation = types.ErrValidation

// Errors returned to client requests.
var (
	errRouteNotFound    = errors.New("Route not found")
	errMethodNotAllowed = errors.New("Method not allowed")
	errInvalidPublicKey = fmt.Errorf("%w: Invalid public key", ErrValidation)
	errNoXDR            = fmt.Errorf("%w: Transaction XDR is required", ErrValidation)
)

// accountNotFound is the message returned for accounts that do not exist on the ledger.
const accountNotFound = "Account not found. Please fund the account first."

// historyLimit is the number of transactions returned when no limit is requested.
const historyLimit = 10

// recentTransactions is the number of transactions returned with an account.
const recentTransactions = 5

// Response is the JSON body replied. reply adds the "success" field.
type Response map[string]interface{}

// notFoundError is replied as "<kind> not found".
type notFoundError struct {
	kind string
	err  error
}

func (e notFoundError) Error() string { return e.kind + " not found" }
func (e notFoundError) Unwrap() error { return e.err }

// found names the record kind of store.ErrNotFound errors.
func found(kind string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError{kind: kind, err: err}
	}

	return err
}

// status maps an error to the http status code replied.
func status(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, types.ErrAccountNotFound), errors.Is(err, errRouteNotFound):
		return http.StatusNotFound
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrValidation), errors.Is(err, types.ErrSubmission), errors.Is(err, types.ErrUnknownNetwork),
		errors.Is(err, types.ErrNotTestnet), errors.Is(err, types.ErrFund):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// message returns the error text replied to the client.
func message(err error) string {
	var nf notFoundError

	switch {
	case errors.As(err, &nf):
		return nf.Error()
	case errors.Is(err, types.ErrAccountNotFound):
		return accountNotFound
	case errors.Is(err, ErrValidation):
		return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	}

	return err.Error()
}

// reply writes the JSON envelope to the client and logs the request. When err is not nil the status code is
// derived from it and res is discarded.
func reply(rw http.ResponseWriter, r *http.Request, code int, res Response, err error) {
	if err != nil {
		code = status(err)
		res = Response{"success": false, "error": message(err)}
	} else {
		if res == nil {
			res = Response{}
		}

		res["success"] = true
	}

	if code >= http.StatusInternalServerError {
		logging.Errorf("httpreq from %v %s %s code:%d err:%v", r.RemoteAddr, r.Method, r.RequestURI, code, err)
	} else {
		logging.Infof("httpreq from %v %s %s code:%d err:%v", r.RemoteAddr, r.Method, r.RequestURI, code, err)
	}

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(res)
}

// decode reads the JSON request body into v, rejecting unknown fields.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", ErrValidation)
		}

		return fmt.Errorf("%w: invalid request body: %s", ErrValidation, err)
	}

	return nil
}

// ledgerFor resolves the ledger serving the request: the network named in the "network" query parameter or the
// active one. The result does not change if the active network is switched while the request runs.
func (s *Service) ledgerFor(r *http.Request) (ledger.Ledger, error) {
	if name := r.URL.Query().Get("network"); name != "" {
		return s.nets.Get(name)
	}

	return s.nets.Active(), nil
}

// healthHandler replies the service status and the active network.
func (s *Service) healthHandler(rw http.ResponseWriter, r *http.Request) {
	reply(rw, r, http.StatusOK, Response{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"network":   s.nets.Active().Info().Network,
	}, nil)
}

func networkResponse(info types.NetworkInfo) Response {
	return Response{"network": info.Network, "horizonUrl": info.HorizonURL, "passphrase": info.Passphrase}
}

// networkHandler replies the network serving the request.
func (s *Service) networkHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	l, err := s.ledgerFor(r)
	if err != nil {
		return
	}

	res = networkResponse(l.Info())
}

// switchNetworkHandler changes the active network. Requests already running keep their network.
func (s *Service) switchNetworkHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	var req struct {
		Network string `json:"network"`
	}

	if err = decode(r, &req); err != nil {
		return
	}

	l, err := s.nets.Switch(req.Network)
	if err != nil {
		return
	}

	res = networkResponse(l.Info())
	res["message"] = "Switched to " + req.Network
}

// keypairHandler replies a new random keypair.
func (s *Service) keypairHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	l, err := s.ledgerFor(r)
	if err != nil {
		return
	}

	kp, err := l.Keypair()
	if err != nil {
		return
	}

	res = Response{"publicKey": kp.PublicKey, "secretKey": kp.SecretKey}
}

// accountHandler replies the balances and latest transactions of an account.
func (s *Service) accountHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	pk := mux.Vars(r)["publicKey"]

	l, err := s.ledgerFor(r)
	if err != nil {
		return
	}

	if !l.ValidPublicKey(pk) {
		err = errInvalidPublicKey

		return
	}

	bals, err := l.Balances(r.Context(), pk)
	if err != nil {
		return
	}

	txs, err := l.History(r.Context(), pk, recentTransactions)
	if err != nil {
		return
	}

	res = Response{"account": Response{"publicKey": pk, "balances": bals, "recentTransactions": txs}}
}

// fundHandler funds a test account through the network friendbot.
func (s *Service) fundHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	var req struct {
		PublicKey string `json:"publicKey"`
	}

	if err = decode(r, &req); err != nil {
		return
	}

	l, err := s.ledgerFor(r)
	if err != nil {
		return
	}

	if !l.ValidPublicKey(req.PublicKey) {
		err = errInvalidPublicKey

		return
	}

	result, err := l.Fund(r.Context(), req.PublicKey)
	if err != nil {
		return
	}

	res = Response{"result": result}
}

// paymentRequest builds a payment transaction. Exactly one of SourceSecret, which returns a signed envelope, or
// SourcePublicKey, which returns an unsigned envelope for a wallet to sign, must be informed.
type paymentRequest struct {
	SourceSecret         string           `json:"sourceSecret"`
	SourcePublicKey      string           `json:"sourcePublicKey"`
	DestinationPublicKey string           `json:"destinationPublicKey"`
	Amount               *decimal.Decimal `json:"amount"`
	Asset                string           `json:"asset"`
	Memo                 string           `json:"memo"`
}

func (p paymentRequest) validate() error {
	var errs []string

	if (p.SourceSecret == "") == (p.SourcePublicKey == "") {
		errs = append(errs, "exactly one of sourceSecret or sourcePublicKey is required")
	}

	if p.DestinationPublicKey == "" {
		errs = append(errs, "destinationPublicKey is required")
	}

	errs = append(errs, checkAmount("amount", p.Amount)...)
	errs = append(errs, checkMemo(p.Memo)...)

	return validation(errs)
}

// paymentHandler builds a payment transaction and replies the serialized envelope.
func (s *Service) paymentHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	var req paymentRequest
	if err = decode(r, &req); err != nil {
		return
	}

	if err = req.validate(); err != nil {
		return
	}

	l, err := s.ledgerFor(r)
	if err != nil {
		return
	}

	var cred types.Credential = types.ManualCredential{Secret: req.SourceSecret}
	if req.SourcePublicKey != "" {
		cred = types.DelegatedCredential{PublicKey: req.SourcePublicKey}
	}

	// currencies map to the asset of the network, anything else must be XLM or code:issuer
	asset := req.Asset
	if asset == "" || util.In(currencies, asset) {
		if asset, err = l.AssetFor(asset); err != nil {
			return
		}
	}

	env, err := l.CreatePayment(r.Context(), types.Payment{
		Source:      cred,
		Destination: req.DestinationPublicKey,
		Amount:      req.Amount.String(),
		Asset:       asset,
		Memo:        req.Memo,
	})
	if err != nil {
		return
	}

	res = Response{
		"transaction":       env.XDR,
		"hash":              env.Hash,
		"signed":            env.Signed,
		"network":           env.Network,
		"networkPassphrase": env.Passphrase,
	}
}

// submitHandler submits a signed envelope to the network.
func (s *Service) submitHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	var req struct {
		TransactionXDR string `json:"transactionXdr"`
	}

	if err = decode(r, &req); err != nil {
		return
	}

	if strings.TrimSpace(req.TransactionXDR) == "" {
		err = errNoXDR

		return
	}

	l, err := s.ledgerFor(r)
	if err != nil {
		return
	}

	result, err := l.Submit(r.Context(), req.TransactionXDR)
	if err != nil {
		return
	}

	res = Response{"result": result}
}

// transactionsHandler replies the latest transactions of an account. The "limit" query parameter defaults to 10.
func (s *Service) transactionsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, http.StatusOK, res, err) }()

	pk := mux.Vars(r)["publicKey"]

	limit := historyLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if limit, err = strconv.Atoi(q); err != nil {
			err = fmt.Errorf("%w: limit must be a number", ErrValidation)

			return
		}
	}

	l, err := s.ledgerFor(r)
	if err != nil {
		return
	}

	if !l.ValidPublicKey(pk) {
		err = errInvalidPublicKey

		return
	}

	txs, err := l.History(r.Context(), pk, limit)
	if err != nil {
		return
	}

	res = Response{"transactions": txs}
}
