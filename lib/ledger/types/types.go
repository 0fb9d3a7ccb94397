// Package types common ledger types.
package types

import (
	"context"
	"errors"
	"time"
)

// NativeAsset is the asset identifier of the ledger currency.
const NativeAsset = "XLM"

// MaxMemoBytes is the maximum length of a text memo.
const MaxMemoBytes = 28

// Error codes.
var (
	ErrValidation      = errors.New("validation error")
	ErrAccountNotFound = errors.New("account not found")
	ErrBuild           = errors.New("failed to create payment transaction")
	ErrSubmission      = errors.New("failed to submit transaction")
	ErrUnknownNetwork  = errors.New(`network must be either "testnet" or "mainnet"`)
	ErrNotTestnet      = errors.New("can only fund test accounts on testnet")
	ErrFund            = errors.New("failed to fund test account")
	ErrHistory         = errors.New("failed to get transaction history")
	ErrBadPublicKey    = errors.New("invalid public key")
	ErrBadSecret       = errors.New("invalid secret key")
	ErrBadAsset        = errors.New("malformed asset, expected XLM or code:issuer")
	ErrMemoTooLong     = errors.New("memo exceeds 28 bytes")
	ErrBadAmount       = errors.New("amount must be positive with at most 7 decimal places")
)

// NetworkInfo identifies the network a client is bound to.
type NetworkInfo struct {
	Network    string `json:"network"`
	HorizonURL string `json:"horizonUrl"`
	Passphrase string `json:"passphrase"`
}

// Keypair is a freshly generated account keypair.
type Keypair struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// Balance of one asset held by an account.
type Balance struct {
	Asset     string `json:"asset"`
	Balance   string `json:"balance"`
	AssetType string `json:"assetType"`
}

// Trans contains a simplified number of ledger transaction fields.
type Trans struct {
	ID         string    `json:"id"`
	Hash       string    `json:"hash"`
	Ledger     int32     `json:"ledger"`
	CreatedAt  time.Time `json:"createdAt"`
	Source     string    `json:"sourceAccount"`
	Successful bool      `json:"successful"`
	MemoType   string    `json:"memoType,omitempty"`
	Memo       string    `json:"memo,omitempty"`
	Operations int32     `json:"operationCount"`
}

// Payment is the request to build a single payment operation transaction. Amount is a decimal string and Asset is
// either NativeAsset or a code:issuer pair.
type Payment struct {
	Source      Credential
	Destination string
	Amount      string
	Asset       string
	Memo        string
}

// Envelope is a serialized (base64 XDR) transaction envelope. Signed is false when the envelope was built for a
// delegated credential without a signer and must be signed out of process.
type Envelope struct {
	XDR        string `json:"transaction"`
	Hash       string `json:"hash"`
	Signed     bool   `json:"signed"`
	Network    string `json:"network"`
	Passphrase string `json:"networkPassphrase"`
}

// Result of a transaction accepted by the ledger.
type Result struct {
	Hash       string `json:"hash"`
	Ledger     int32  `json:"ledger"`
	Successful bool   `json:"successful"`
	Envelope   string `json:"envelopeXdr,omitempty"`
	ResultXDR  string `json:"resultXdr,omitempty"`
}

// SignFunc signs a base64 XDR envelope for the given network passphrase and returns the signed envelope.
type SignFunc func(ctx context.Context, xdr, passphrase string) (string, error)

// Credential is the funding credential of a payment. It is either a ManualCredential or a DelegatedCredential.
type Credential interface {
	credential()
}

// ManualCredential holds a raw secret seed.
type ManualCredential struct {
	Secret string
}

// DelegatedCredential holds the public key of an account whose secret lives elsewhere. Sign, when set, is called to
// sign the built envelope; when nil the envelope is returned unsigned.
type DelegatedCredential struct {
	PublicKey string
	Sign      SignFunc
}

func (ManualCredential) credential()    {}
func (DelegatedCredential) credential() {}
