package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"

	"github.com/tarancss/rentguard/lib/ledger/types"
)

// envelope returns an unsigned payment envelope from src.
func envelope(t *testing.T, src string) string {
	t.Helper()

	acc := txnbuild.NewSimpleAccount(src, 100)

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &acc,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{&txnbuild.Payment{
			Destination: keypair.MustRandom().Address(), Amount: "10", Asset: txnbuild.NativeAsset{},
		}},
		BaseFee:       txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(180)},
	})
	if err != nil {
		t.Fatalf("Error building transaction:%v", err)
	}

	xdr, err := tx.Base64()
	if err != nil {
		t.Fatalf("Error encoding transaction:%v", err)
	}

	return xdr
}

// verify checks the envelope carries a valid signature of pk.
func verify(t *testing.T, xdr, pk string) {
	t.Helper()

	gtx, err := txnbuild.TransactionFromXDR(xdr)
	if err != nil {
		t.Fatalf("Error decoding signed envelope:%v", err)
	}

	tx, _ := gtx.Transaction()

	hash, err := tx.Hash(network.TestNetworkPassphrase)
	if err != nil {
		t.Fatalf("Error hashing:%v", err)
	}

	if len(tx.Signatures()) != 1 || keypair.MustParseAddress(pk).Verify(hash[:], tx.Signatures()[0].Signature) != nil {
		t.Errorf("envelope not signed by %s", pk)
	}
}

func TestManual(t *testing.T) {
	if _, err := NewManual("SNOTASECRET", "testnet"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	kp := keypair.MustRandom()

	m, err := NewManual(kp.Seed(), "testnet")
	if err != nil {
		t.Fatalf("Error creating wallet:%v", err)
	}

	ctx := context.Background()

	if pk, _ := m.PublicKey(ctx); pk != kp.Address() {
		t.Errorf("public key %s, expected %s", pk, kp.Address())
	}

	if n, _ := m.Network(ctx); n != "testnet" {
		t.Errorf("network %s", n)
	}

	signed, err := m.SignTransaction(ctx, envelope(t, kp.Address()), network.TestNetworkPassphrase)
	if err != nil {
		t.Fatalf("Error signing:%v", err)
	}

	verify(t, signed, kp.Address())

	if _, err = m.SignTransaction(ctx, "AAAA", network.TestNetworkPassphrase); !errors.Is(err, ErrBadEnvelope) {
		t.Errorf("expected ErrBadEnvelope, got %v", err)
	}
}

// fakeExtension signs with a keypair unless it is set to reject.
type fakeExtension struct {
	kp        *keypair.Full
	connected bool
	reject    bool
}

func (f *fakeExtension) IsConnected(context.Context) bool { return f.connected }

func (f *fakeExtension) GetPublicKey(context.Context) (string, error) { return f.kp.Address(), nil }

func (f *fakeExtension) GetNetwork(context.Context) (string, error) { return "testnet", nil }

func (f *fakeExtension) SignTransaction(ctx context.Context, xdr, passphrase string) (string, error) {
	if f.reject {
		return "", errors.New("user declined")
	}

	m := &Manual{kp: f.kp}

	return m.SignTransaction(ctx, xdr, passphrase)
}

func TestExtension(t *testing.T) {
	ctx := context.Background()

	if _, err := NewExtension(ctx, nil); !errors.Is(err, ErrWalletUnavailable) {
		t.Errorf("expected ErrWalletUnavailable, got %v", err)
	}

	api := &fakeExtension{kp: keypair.MustRandom()}
	if _, err := NewExtension(ctx, api); !errors.Is(err, ErrWalletUnavailable) {
		t.Errorf("disconnected extension: expected ErrWalletUnavailable, got %v", err)
	}

	api.connected = true

	ext, err := NewExtension(ctx, api)
	if err != nil {
		t.Fatalf("Error creating adapter:%v", err)
	}

	cred, err := Credential(ctx, ext)
	if err != nil || cred.PublicKey != api.kp.Address() || cred.Sign == nil {
		t.Fatalf("Error in credential %+v:%v", cred, err)
	}

	signed, err := cred.Sign(ctx, envelope(t, cred.PublicKey), network.TestNetworkPassphrase)
	if err != nil {
		t.Fatalf("Error signing:%v", err)
	}

	verify(t, signed, api.kp.Address())

	api.reject = true
	if _, err = ext.SignTransaction(ctx, envelope(t, cred.PublicKey), network.TestNetworkPassphrase); !errors.Is(err, ErrSigningRejected) {
		t.Errorf("expected ErrSigningRejected, got %v", err)
	}
}

func TestSigner(t *testing.T) {
	kp := keypair.MustRandom()
	m := &Manual{kp: kp, network: "testnet"}
	reject := false

	mux := http.NewServeMux()
	mux.HandleFunc("/publicKey", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"publicKey": kp.Address()})
	})
	mux.HandleFunc("/network", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"network": "testnet"})
	})
	mux.HandleFunc("/sign", func(w http.ResponseWriter, r *http.Request) {
		if reject {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "User declined access"})

			return
		}

		var in struct {
			Transaction       string `json:"transaction"`
			NetworkPassphrase string `json:"networkPassphrase"`
		}

		_ = json.NewDecoder(r.Body).Decode(&in)

		signed, err := m.SignTransaction(r.Context(), in.Transaction, in.NetworkPassphrase)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"signedTransaction": signed})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()

	if NewSigner("") != nil {
		t.Errorf("signer without url is not nil")
	}

	ext, err := NewExtension(ctx, NewSigner(srv.URL+"/"))
	if err != nil {
		t.Fatalf("Error connecting to signer:%v", err)
	}

	if pk, _ := ext.PublicKey(ctx); pk != kp.Address() {
		t.Errorf("public key %s, expected %s", pk, kp.Address())
	}

	signed, err := ext.SignTransaction(ctx, envelope(t, kp.Address()), network.TestNetworkPassphrase)
	if err != nil {
		t.Fatalf("Error signing:%v", err)
	}

	verify(t, signed, kp.Address())

	reject = true
	if _, err = ext.SignTransaction(ctx, envelope(t, kp.Address()), network.TestNetworkPassphrase); !errors.Is(err, ErrSigningRejected) {
		t.Errorf("expected ErrSigningRejected, got %v", err)
	}

	srv.Close()

	if _, err = ext.Network(ctx); !errors.Is(err, ErrWalletUnavailable) {
		t.Errorf("closed signer: expected ErrWalletUnavailable, got %v", err)
	}
}
