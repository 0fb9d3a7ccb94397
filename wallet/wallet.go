// Package wallet implements the client side wallet adapters used to pay rents.
//
// An Adapter hides where the tenant secret lives: Manual keeps a secret seed in memory for the session, Extension
// delegates to a signer that holds the keys itself and never reveals them. Both expose the same contract: the
// account public key, the network the wallet is set to and the signature of a transaction envelope.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	"github.com/tarancss/rentguard/lib/ledger/types"
)

// Errors returned by the adapters.
var (
	ErrWalletUnavailable = errors.New("wallet extension is not available")
	ErrSigningRejected   = errors.New("transaction signing was rejected")
	ErrBadEnvelope       = errors.New("cannot sign envelope")
)

// Adapter is the uniform contract of every credential source.
type Adapter interface {
	PublicKey(ctx context.Context) (string, error)
	Network(ctx context.Context) (string, error)
	// SignTransaction signs the base64 XDR envelope for the network passphrase and returns the signed envelope.
	SignTransaction(ctx context.Context, xdr, passphrase string) (string, error)
}

// Credential returns a delegated payment credential that signs with the adapter.
func Credential(ctx context.Context, a Adapter) (types.DelegatedCredential, error) {
	pk, err := a.PublicKey(ctx)
	if err != nil {
		return types.DelegatedCredential{}, err
	}

	return types.DelegatedCredential{PublicKey: pk, Sign: a.SignTransaction}, nil
}

// Manual holds a secret seed entered by the user. It lives only as long as the value.
type Manual struct {
	kp      *keypair.Full
	network string
}

// NewManual parses the secret seed of a wallet set to the named network.
func NewManual(secret, network string) (*Manual, error) {
	kp, err := keypair.ParseFull(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrValidation, types.ErrBadSecret)
	}

	return &Manual{kp: kp, network: network}, nil
}

// PublicKey returns the account of the secret seed.
func (m *Manual) PublicKey(context.Context) (string, error) {
	return m.kp.Address(), nil
}

// Network returns the network the wallet was set to.
func (m *Manual) Network(context.Context) (string, error) {
	return m.network, nil
}

// SignTransaction adds the signature of the secret seed to the envelope.
func (m *Manual) SignTransaction(_ context.Context, xdr, passphrase string) (string, error) {
	gtx, err := txnbuild.TransactionFromXDR(xdr)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadEnvelope, err)
	}

	tx, ok := gtx.Transaction()
	if !ok {
		return "", fmt.Errorf("%w: fee bump envelopes are not supported", ErrBadEnvelope)
	}

	if tx, err = tx.Sign(passphrase, m.kp); err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadEnvelope, err)
	}

	return tx.Base64()
}

// ExtensionAPI is the capability handed out by a key holding signer once access is granted.
type ExtensionAPI interface {
	IsConnected(ctx context.Context) bool
	GetPublicKey(ctx context.Context) (string, error)
	GetNetwork(ctx context.Context) (string, error)
	SignTransaction(ctx context.Context, xdr, passphrase string) (string, error)
}

// Extension adapts an ExtensionAPI. Every failure of the signer to answer is reported as ErrWalletUnavailable and a
// refused signature as ErrSigningRejected.
type Extension struct {
	api ExtensionAPI
}

// NewExtension returns an adapter for api, which is nil when the signer is not installed.
func NewExtension(ctx context.Context, api ExtensionAPI) (*Extension, error) {
	if api == nil || !api.IsConnected(ctx) {
		return nil, ErrWalletUnavailable
	}

	return &Extension{api: api}, nil
}

// PublicKey asks the signer for the account it holds.
func (e *Extension) PublicKey(ctx context.Context) (string, error) {
	pk, err := e.api.GetPublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrWalletUnavailable, err)
	}

	return pk, nil
}

// Network asks the signer which network it is set to.
func (e *Extension) Network(ctx context.Context) (string, error) {
	n, err := e.api.GetNetwork(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrWalletUnavailable, err)
	}

	return n, nil
}

// SignTransaction asks the signer to sign the envelope.
func (e *Extension) SignTransaction(ctx context.Context, xdr, passphrase string) (string, error) {
	signed, err := e.api.SignTransaction(ctx, xdr, passphrase)
	if err != nil {
		if errors.Is(err, ErrWalletUnavailable) {
			return "", err
		}

		return "", fmt.Errorf("%w: %s", ErrSigningRejected, err)
	}

	return signed, nil
}
