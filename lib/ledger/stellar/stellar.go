// Package stellar implements the ledger interface for Stellar networks through a Horizon endpoint.
package stellar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"

	"github.com/tarancss/rentguard/lib/config"
	"github.com/tarancss/rentguard/lib/ledger/types"
	"github.com/tarancss/rentguard/lib/metrics"
)

// txTimeout is the validity window of built transactions, in seconds.
const txTimeout = 180

// maxHistory is the largest page Horizon serves.
const maxHistory = 200

// amountDecimals is the precision of ledger amounts.
const amountDecimals = 7

var assetCode = regexp.MustCompile(`^[A-Za-z0-9]{1,12}$`) //nolint:gochecknoglobals // compiled once

// ErrBadConfig is returned when a network is missing its horizon url or passphrase.
var ErrBadConfig = errors.New("network requires a horizon url and a passphrase")

// horizonAPI is the subset of the horizon client used. *horizonclient.Client and *horizonclient.MockClient satisfy it.
type horizonAPI interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitTransactionXDR(transactionXdr string) (hProtocol.Transaction, error)
	Transactions(request horizonclient.TransactionRequest) (hProtocol.TransactionsPage, error)
}

// Stellar implements a connection to one Stellar network. Its fields are never modified after Init so a value can
// serve concurrent requests.
type Stellar struct {
	name       string
	horizonURL string
	passphrase string
	friendbot  string
	usdAsset   string
	hc         horizonAPI
	http       *http.Client
}

// Init returns a client for the network described in conf.
func Init(conf config.NetworkConfig) (*Stellar, error) {
	if conf.Horizon == "" || conf.Passphrase == "" {
		return nil, fmt.Errorf("%w: %s", ErrBadConfig, conf.Name)
	}

	hc := &http.Client{}

	return &Stellar{
		name:       conf.Name,
		horizonURL: conf.Horizon,
		passphrase: conf.Passphrase,
		friendbot:  conf.Friendbot,
		usdAsset:   conf.UsdAsset,
		hc:         &horizonclient.Client{HorizonURL: conf.Horizon, HTTP: hc},
		http:       hc,
	}, nil
}

// Info returns the network name, horizon url and passphrase.
func (s *Stellar) Info() types.NetworkInfo {
	return types.NetworkInfo{Network: s.name, HorizonURL: s.horizonURL, Passphrase: s.passphrase}
}

// Close releases idle connections to horizon.
func (s *Stellar) Close() {
	s.http.CloseIdleConnections()
}

// Keypair generates a new random keypair. The account does not exist on the ledger until it is funded.
func (s *Stellar) Keypair() (types.Keypair, error) {
	kp, err := keypair.Random()
	if err != nil {
		return types.Keypair{}, fmt.Errorf("cannot generate keypair: %w", err)
	}

	return types.Keypair{PublicKey: kp.Address(), SecretKey: kp.Seed()}, nil
}

// ValidPublicKey reports whether pk is a well formed account public key.
func (s *Stellar) ValidPublicKey(pk string) bool {
	return strkey.IsValidEd25519PublicKey(pk)
}

// AssetFor returns the asset identifier used to pay rents in currency on this network.
func (s *Stellar) AssetFor(currency string) (string, error) {
	switch currency {
	case "", types.NativeAsset:
		return types.NativeAsset, nil
	case "USD":
		if s.usdAsset == "" {
			return "", fmt.Errorf("%w: no ledger asset configured for currency USD on %s", types.ErrValidation, s.name)
		}

		return s.usdAsset, nil
	}

	return "", fmt.Errorf("%w: unsupported currency %s", types.ErrValidation, currency)
}

// loadAccount gets the account from horizon, returning types.ErrAccountNotFound if it does not exist.
func (s *Stellar) loadAccount(pk string) (hProtocol.Account, error) {
	acc, err := s.hc.AccountDetail(horizonclient.AccountRequest{AccountID: pk})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return acc, fmt.Errorf("%w: %s", types.ErrAccountNotFound, pk)
		}

		return acc, fmt.Errorf("cannot load account %s: %s", pk, reason(err))
	}

	return acc, nil
}

// Account checks the account exists on the ledger.
func (s *Stellar) Account(_ context.Context, pk string) (err error) {
	defer metrics.ObserveLedger(s.name, "account", time.Now(), &err)

	_, err = s.loadAccount(pk)

	return err
}

// Balances returns the balances held by the account.
func (s *Stellar) Balances(_ context.Context, pk string) (bals []types.Balance, err error) {
	defer metrics.ObserveLedger(s.name, "balances", time.Now(), &err)

	acc, err := s.loadAccount(pk)
	if err != nil {
		return nil, err
	}

	bals = make([]types.Balance, 0, len(acc.Balances))

	for _, b := range acc.Balances {
		asset := types.NativeAsset

		switch {
		case b.Asset.Type == "native":
		case b.Asset.Code != "":
			asset = b.Asset.Code + ":" + b.Asset.Issuer
		default:
			asset = b.Asset.Type
		}

		bals = append(bals, types.Balance{Asset: asset, Balance: b.Balance, AssetType: b.Asset.Type})
	}

	return bals, nil
}

// History returns the latest limit transactions of the account, newest first.
func (s *Stellar) History(_ context.Context, pk string, limit int) (txs []types.Trans, err error) {
	defer metrics.ObserveLedger(s.name, "history", time.Now(), &err)

	if limit <= 0 || limit > maxHistory {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", types.ErrValidation, maxHistory)
	}

	page, err := s.hc.Transactions(horizonclient.TransactionRequest{
		ForAccount: pk,
		Order:      horizonclient.OrderDesc,
		Limit:      uint(limit),
	})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrAccountNotFound, pk)
		}

		return nil, fmt.Errorf("%w: %s", types.ErrHistory, reason(err))
	}

	txs = make([]types.Trans, 0, len(page.Embedded.Records))

	for _, t := range page.Embedded.Records {
		txs = append(txs, types.Trans{
			ID:         t.ID,
			Hash:       t.Hash,
			Ledger:     t.Ledger,
			CreatedAt:  t.LedgerCloseTime,
			Source:     t.Account,
			Successful: t.Successful,
			MemoType:   t.MemoType,
			Memo:       t.Memo,
			Operations: t.OperationCount,
		})
	}

	return txs, nil
}

// Fund asks the network friendbot to create and fund the account. Only test networks have a friendbot.
func (s *Stellar) Fund(ctx context.Context, pk string) (res map[string]interface{}, err error) {
	defer metrics.ObserveLedger(s.name, "fund", time.Now(), &err)

	if s.friendbot == "" {
		return nil, types.ErrNotTestnet
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.friendbot+"?addr="+url.QueryEscape(pk), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrFund, err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrFund, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrFund, err)
	}

	res = map[string]interface{}{}
	if len(body) > 0 {
		if errJSON := json.Unmarshal(body, &res); errJSON != nil {
			return nil, fmt.Errorf("%w: unexpected friendbot response: %s", types.ErrFund, errJSON)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := res["detail"].(string)
		if detail == "" {
			detail = resp.Status
		}

		return nil, fmt.Errorf("%w: %s", types.ErrFund, detail)
	}

	return res, nil
}

// CreatePayment loads the source account, builds a single payment operation transaction valid for txTimeout
// seconds, signs it according to the credential and returns the serialized envelope.
func (s *Stellar) CreatePayment(ctx context.Context, p types.Payment) (env types.Envelope, err error) {
	defer metrics.ObserveLedger(s.name, "payment", time.Now(), &err)

	if !strkey.IsValidEd25519PublicKey(p.Destination) {
		return env, fmt.Errorf("%w: destination: %s", types.ErrValidation, types.ErrBadPublicKey)
	}

	amt, err := parseAmount(p.Amount)
	if err != nil {
		return env, err
	}

	if len(p.Memo) > types.MaxMemoBytes {
		return env, fmt.Errorf("%w: %s", types.ErrValidation, types.ErrMemoTooLong)
	}

	asset, err := parseAsset(p.Asset)
	if err != nil {
		return env, err
	}

	var (
		source string
		full   *keypair.Full
		sign   types.SignFunc
	)

	switch c := p.Source.(type) {
	case types.ManualCredential:
		if full, err = keypair.ParseFull(c.Secret); err != nil {
			return env, fmt.Errorf("%w: %s", types.ErrValidation, types.ErrBadSecret)
		}

		source = full.Address()
	case types.DelegatedCredential:
		if !strkey.IsValidEd25519PublicKey(c.PublicKey) {
			return env, fmt.Errorf("%w: source: %s", types.ErrValidation, types.ErrBadPublicKey)
		}

		source, sign = c.PublicKey, c.Sign
	default:
		return env, fmt.Errorf("%w: missing source credential", types.ErrValidation)
	}

	acc, err := s.loadAccount(source)
	if err != nil {
		if errors.Is(err, types.ErrAccountNotFound) {
			return env, err
		}

		return env, fmt.Errorf("%w: %s", types.ErrBuild, err)
	}

	var memo txnbuild.Memo
	if p.Memo != "" {
		memo = txnbuild.MemoText(p.Memo)
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &acc,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{&txnbuild.Payment{
			Destination: p.Destination,
			Amount:      amt,
			Asset:       asset,
		}},
		BaseFee:       txnbuild.MinBaseFee,
		Memo:          memo,
		Preconditions: txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeout)},
	})
	if err != nil {
		return env, fmt.Errorf("%w: %s", types.ErrBuild, err)
	}

	if full != nil {
		if tx, err = tx.Sign(s.passphrase, full); err != nil {
			return env, fmt.Errorf("%w: %s", types.ErrBuild, err)
		}
	}

	if env.XDR, err = tx.Base64(); err != nil {
		return env, fmt.Errorf("%w: %s", types.ErrBuild, err)
	}

	if env.Hash, err = tx.HashHex(s.passphrase); err != nil {
		return env, fmt.Errorf("%w: %s", types.ErrBuild, err)
	}

	env.Signed = full != nil
	env.Network = s.name
	env.Passphrase = s.passphrase

	if sign != nil {
		if env.XDR, err = sign(ctx, env.XDR, s.passphrase); err != nil {
			return env, fmt.Errorf("signing payment: %w", err)
		}

		env.Signed = true
	}

	return env, nil
}

// Submit sends a signed envelope to the network. Replaying an envelope that was already accepted fails with a
// sequence error reported by the network.
func (s *Stellar) Submit(_ context.Context, xdr string) (res types.Result, err error) {
	defer metrics.ObserveLedger(s.name, "submit", time.Now(), &err)

	if strings.TrimSpace(xdr) == "" {
		return res, fmt.Errorf("%w: transaction XDR is required", types.ErrValidation)
	}

	if _, err = txnbuild.TransactionFromXDR(xdr); err != nil {
		return res, fmt.Errorf("%w: malformed transaction envelope: %s", types.ErrValidation, err)
	}

	tx, err := s.hc.SubmitTransactionXDR(xdr)
	if err != nil {
		return res, fmt.Errorf("%w: %s", types.ErrSubmission, reason(err))
	}

	return types.Result{
		Hash:       tx.Hash,
		Ledger:     tx.Ledger,
		Successful: tx.Successful,
		Envelope:   tx.EnvelopeXdr,
		ResultXDR:  tx.ResultXdr,
	}, nil
}

// Decode parses an envelope holding a single payment operation and returns the payment. The source credential
// returned is delegated to the transaction source account.
func (s *Stellar) Decode(xdr string) (types.Payment, error) {
	var p types.Payment

	gtx, err := txnbuild.TransactionFromXDR(xdr)
	if err != nil {
		return p, fmt.Errorf("%w: malformed transaction envelope: %s", types.ErrValidation, err)
	}

	tx, ok := gtx.Transaction()
	if !ok {
		return p, fmt.Errorf("%w: fee bump envelopes are not supported", types.ErrValidation)
	}

	ops := tx.Operations()
	if len(ops) != 1 {
		return p, fmt.Errorf("%w: envelope must hold a single payment operation", types.ErrValidation)
	}

	op, ok := ops[0].(*txnbuild.Payment)
	if !ok {
		return p, fmt.Errorf("%w: envelope must hold a single payment operation", types.ErrValidation)
	}

	p.Source = types.DelegatedCredential{PublicKey: tx.SourceAccount().AccountID}
	p.Destination = op.Destination
	p.Amount = op.Amount
	p.Asset = types.NativeAsset

	if !op.Asset.IsNative() {
		p.Asset = op.Asset.GetCode() + ":" + op.Asset.GetIssuer()
	}

	if m, isText := tx.Memo().(txnbuild.MemoText); isText {
		p.Memo = string(m)
	}

	return p, nil
}

// parseAsset converts an asset identifier into a txnbuild asset.
func parseAsset(id string) (txnbuild.Asset, error) {
	if id == "" || id == types.NativeAsset {
		return txnbuild.NativeAsset{}, nil
	}

	parts := strings.Split(id, ":")
	if len(parts) != 2 || !assetCode.MatchString(parts[0]) || !strkey.IsValidEd25519PublicKey(parts[1]) {
		return nil, fmt.Errorf("%w: %s: %q", types.ErrValidation, types.ErrBadAsset, id)
	}

	return txnbuild.CreditAsset{Code: parts[0], Issuer: parts[1]}, nil
}

// parseAmount checks amount is a positive decimal with ledger precision and returns its canonical form.
func parseAmount(amount string) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil || !d.IsPositive() || !d.Equal(d.Truncate(amountDecimals)) {
		return "", fmt.Errorf("%w: %s", types.ErrValidation, types.ErrBadAmount)
	}

	return d.String(), nil
}

// reason extracts the most descriptive message of a horizon error: result codes for failed transactions, problem
// title and detail otherwise.
func reason(err error) string {
	hErr := horizonclient.GetError(err)
	if hErr == nil {
		return err.Error()
	}

	if codes, errCodes := hErr.ResultCodes(); errCodes == nil && codes != nil && codes.TransactionCode != "" {
		msg := codes.TransactionCode
		if len(codes.OperationCodes) > 0 {
			msg += " [" + strings.Join(codes.OperationCodes, ", ") + "]"
		}

		return msg
	}

	if hErr.Problem.Detail != "" {
		return hErr.Problem.Title + ": " + hErr.Problem.Detail
	}

	return hErr.Problem.Title
}
