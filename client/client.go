// Package client is a Go client for the rentguard REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tarancss/rentguard/lib/ledger/types"
	"github.com/tarancss/rentguard/lib/store"
	"github.com/tarancss/rentguard/lib/util"
	"github.com/tarancss/rentguard/wallet"
)

const defaultTimeout = 30 * time.Second

// ErrNetworkMismatch is returned when the wallet and the API are set to different networks.
var ErrNetworkMismatch = errors.New("network mismatch")

// Error is a request refused by the API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rentguard api replied %d: %s", e.Status, e.Message)
}

// Client calls the API at URL. When Network is set every request is pinned to that network instead of the active
// one.
type Client struct {
	URL     string
	Network string
	HTTP    *http.Client
}

// New returns a client for the API at baseURL.
func New(baseURL, network string) *Client {
	return &Client{
		URL:     strings.TrimSuffix(baseURL, "/"),
		Network: network,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

// do sends the request and decodes the reply into out. Replies with success false are returned as *Error.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	u, err := url.Parse(c.URL + path)
	if err != nil {
		return err
	}

	if c.Network != "" {
		q := u.Query()
		q.Set("network", c.Network)
		u.RawQuery = q.Encode()
	}

	var body bytes.Buffer

	if in != nil {
		if err = json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), &body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err = json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return &Error{Status: resp.StatusCode, Message: resp.Status}
	}

	var env struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}

	if err = json.Unmarshal(raw, &env); err != nil {
		return err
	}

	if !env.Success {
		return &Error{Status: resp.StatusCode, Message: env.Error}
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(raw, out)
}

// Info returns the network serving the client requests.
func (c *Client) Info(ctx context.Context) (types.NetworkInfo, error) {
	var info types.NetworkInfo

	err := c.do(ctx, http.MethodGet, "/api/stellar/network", nil, &info)

	return info, err
}

// Rental returns the rental with its payments.
func (c *Client) Rental(ctx context.Context, id string) (store.Rental, error) {
	var res struct {
		Rental store.Rental `json:"rental"`
	}

	err := c.do(ctx, http.MethodGet, "/api/rentals/"+url.PathEscape(id), nil, &res)

	return res.Rental, err
}

// BuildPayment asks the API for an unsigned payment envelope from source. asset is a rent currency, XLM or a
// code:issuer pair.
func (c *Client) BuildPayment(ctx context.Context, source, destination string, amount decimal.Decimal, asset,
	memo string) (types.Envelope, error) {
	var env types.Envelope

	in := map[string]interface{}{
		"sourcePublicKey":      source,
		"destinationPublicKey": destination,
		"amount":               amount.String(),
		"asset":                asset,
		"memo":                 memo,
	}

	err := c.do(ctx, http.MethodPost, "/api/stellar/payment", in, &env)

	return env, err
}

// Submit submits a signed envelope.
func (c *Client) Submit(ctx context.Context, xdr string) (types.Result, error) {
	var res struct {
		Result types.Result `json:"result"`
	}

	err := c.do(ctx, http.MethodPost, "/api/stellar/submit", map[string]string{"transactionXdr": xdr}, &res)

	return res.Result, err
}

// PayRentSigned records a rent payment already signed by the tenant wallet.
func (c *Client) PayRentSigned(ctx context.Context, rentalID string, amount decimal.Decimal, xdr string) (
	store.Payment, types.Result, error) {
	var res struct {
		Payment     store.Payment `json:"payment"`
		Transaction types.Result  `json:"transaction"`
	}

	in := map[string]interface{}{"rentalId": rentalID, "amount": amount.String(), "transactionXdr": xdr}
	err := c.do(ctx, http.MethodPost, "/api/rentals/payment", in, &res)

	return res.Payment, res.Transaction, err
}

// PayRent pays amount of the rental rent with the wallet: the API builds the payment to the landlord in the rental
// currency, the wallet signs it and the API submits and records it.
func (c *Client) PayRent(ctx context.Context, w wallet.Adapter, rentalID string, amount decimal.Decimal,
	memo string) (store.Payment, types.Result, error) {
	var (
		pay store.Payment
		res types.Result
	)

	rental, err := c.Rental(ctx, rentalID)
	if err != nil {
		return pay, res, err
	}

	cred, err := wallet.Credential(ctx, w)
	if err != nil {
		return pay, res, err
	}

	if rental.TenantPublicKey != "" && rental.TenantPublicKey != cred.PublicKey {
		return pay, res, fmt.Errorf("%w: wallet account %s is not the rental tenant", types.ErrValidation,
			cred.PublicKey)
	}

	if memo == "" {
		memo = util.Truncate("Rent "+rental.ID, types.MaxMemoBytes)
	}

	env, err := c.BuildPayment(ctx, cred.PublicKey, rental.LandlordPublicKey, amount, rental.Currency, memo)
	if err != nil {
		return pay, res, err
	}

	net, err := w.Network(ctx)
	if err != nil {
		return pay, res, err
	}

	if net != env.Network {
		return pay, res, fmt.Errorf("%w: wallet is set to %s but the payment is built for %s", ErrNetworkMismatch, net,
			env.Network)
	}

	signed, err := cred.Sign(ctx, env.XDR, env.Passphrase)
	if err != nil {
		return pay, res, err
	}

	return c.PayRentSigned(ctx, rentalID, amount, signed)
}
