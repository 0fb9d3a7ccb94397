package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"

	"github.com/tarancss/rentguard/api"
	"github.com/tarancss/rentguard/lib/config"
	"github.com/tarancss/rentguard/lib/ledger"
	"github.com/tarancss/rentguard/lib/ledger/stellar/stellartest"
	"github.com/tarancss/rentguard/lib/store"
	"github.com/tarancss/rentguard/lib/store/memory"
	"github.com/tarancss/rentguard/wallet"
)

type env struct {
	horizon *stellartest.Server
	db      store.Store
	c       *Client
}

func setup(t *testing.T) *env {
	t.Helper()

	e := &env{horizon: stellartest.NewServer(network.TestNetworkPassphrase), db: memory.New()}
	t.Cleanup(e.horizon.Close)

	nets, err := ledger.Init([]config.NetworkConfig{e.horizon.Network(config.Testnet, true)}, config.Testnet)
	if err != nil {
		t.Fatalf("Error initialising networks:%v", err)
	}

	svc := api.New(config.ServiceConfig{FrontendURL: "http://localhost:3000", RateWindow: time.Minute}, e.db, nil,
		nets)
	t.Cleanup(svc.Stop)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	e.c = New(srv.URL+"/", "")

	return e
}

// rental creates a rental between two funded accounts.
func (e *env) rental(t *testing.T) (store.Rental, *keypair.Full) {
	t.Helper()

	landlord, tenant := keypair.MustRandom(), keypair.MustRandom()
	e.horizon.AddAccount(landlord.Address(), "1")
	e.horizon.AddAccount(tenant.Address(), "500")

	r, err := e.db.CreateRental(context.Background(), store.Rental{
		PropertyID:        "p1",
		TenantPublicKey:   tenant.Address(),
		LandlordPublicKey: landlord.Address(),
		MonthlyRent:       decimal.NewFromInt(120),
		Currency:          store.CurrencyXLM,
		StartDate:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:            store.StatusActive,
	})
	if err != nil {
		t.Fatalf("Error creating rental:%v", err)
	}

	return r, tenant
}

func TestInfo(t *testing.T) {
	e := setup(t)

	info, err := e.c.Info(context.Background())
	if err != nil || info.Network != config.Testnet || info.Passphrase != network.TestNetworkPassphrase {
		t.Errorf("Error in info %+v:%v", info, err)
	}

	e.c.Network = "futurenet"

	var apiErr *Error
	if _, err = e.c.Info(context.Background()); !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Errorf("expected api error, got %v", err)
	}
}

func TestPayRent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	r, tenant := e.rental(t)

	w, err := wallet.NewManual(tenant.Seed(), config.Testnet)
	if err != nil {
		t.Fatalf("Error creating wallet:%v", err)
	}

	pay, res, err := e.c.PayRent(ctx, w, r.ID, r.MonthlyRent, "")
	if err != nil {
		t.Fatalf("Error paying rent:%v", err)
	}

	if pay.TransactionHash != res.Hash || !pay.Amount.Equal(r.MonthlyRent) || pay.Memo != ("Rent " + r.ID)[:28] {
		t.Errorf("Unexpected payment %+v %+v", pay, res)
	}

	if got := e.horizon.Balance(r.LandlordPublicKey); got != "121.0000000" {
		t.Errorf("landlord balance %s", got)
	}

	got, err := e.c.Rental(ctx, r.ID)
	if err != nil || len(got.Payments) != 1 {
		t.Errorf("Error reading rental back %+v:%v", got, err)
	}

	// another account cannot pay the rental
	other := keypair.MustRandom()
	w, _ = wallet.NewManual(other.Seed(), config.Testnet)

	if _, _, err = e.c.PayRent(ctx, w, r.ID, r.MonthlyRent, ""); err == nil {
		t.Errorf("payment from other account accepted")
	}

	// wallet set to another network
	w, _ = wallet.NewManual(tenant.Seed(), config.Mainnet)
	if _, _, err = e.c.PayRent(ctx, w, r.ID, r.MonthlyRent, ""); !errors.Is(err, ErrNetworkMismatch) {
		t.Errorf("expected ErrNetworkMismatch, got %v", err)
	}

	var apiErr *Error
	if _, _, err = e.c.PayRent(ctx, w, "nope", r.MonthlyRent, ""); !errors.As(err, &apiErr) ||
		apiErr.Message != "Rental not found" {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSubmit(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	r, tenant := e.rental(t)

	env, err := e.c.BuildPayment(ctx, tenant.Address(), r.LandlordPublicKey, decimal.NewFromInt(5), "", "tip")
	if err != nil || env.Signed {
		t.Fatalf("Error building payment %+v:%v", env, err)
	}

	w, _ := wallet.NewManual(tenant.Seed(), config.Testnet)

	signed, err := w.SignTransaction(ctx, env.XDR, env.Passphrase)
	if err != nil {
		t.Fatalf("Error signing:%v", err)
	}

	res, err := e.c.Submit(ctx, signed)
	if err != nil || res.Hash != env.Hash {
		t.Errorf("Error submitting %+v:%v", res, err)
	}

	if _, err = e.c.Submit(ctx, signed); err == nil {
		t.Errorf("replayed envelope accepted")
	}
}
