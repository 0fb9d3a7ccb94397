package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const signerTimeout = 2 * time.Minute

// Signer is an ExtensionAPI served over HTTP by a local signer that holds the keys, such as a browser extension
// bridge or a hardware wallet daemon. The signer exposes:
//
//	GET  /publicKey  -> {"publicKey":"G..."}
//	GET  /network    -> {"network":"testnet"}
//	POST /sign       {"transaction":"<xdr>","networkPassphrase":"..."} -> {"signedTransaction":"<xdr>"}
//
// A 4xx reply to /sign means the user rejected the request.
type Signer struct {
	URL  string
	HTTP *http.Client
}

// NewSigner returns a Signer for the base url, or nil if url is empty so NewExtension reports the wallet as
// unavailable.
func NewSigner(url string) ExtensionAPI {
	if url == "" {
		return nil
	}

	return &Signer{URL: strings.TrimSuffix(url, "/"), HTTP: &http.Client{Timeout: signerTimeout}}
}

func (s *Signer) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body bytes.Buffer

	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.URL+path, &body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrWalletUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: signer replied %s", ErrWalletUnavailable, resp.Status)
	case resp.StatusCode >= http.StatusBadRequest:
		var e struct {
			Error string `json:"error"`
		}

		_ = json.NewDecoder(resp.Body).Decode(&e)

		return fmt.Errorf("signer replied %s %s", resp.Status, e.Error)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// IsConnected reports whether the signer answers.
func (s *Signer) IsConnected(ctx context.Context) bool {
	_, err := s.GetNetwork(ctx)

	return err == nil
}

// GetPublicKey returns the account held by the signer.
func (s *Signer) GetPublicKey(ctx context.Context) (string, error) {
	var res struct {
		PublicKey string `json:"publicKey"`
	}

	if err := s.do(ctx, http.MethodGet, "/publicKey", nil, &res); err != nil {
		return "", err
	}

	return res.PublicKey, nil
}

// GetNetwork returns the network the signer is set to.
func (s *Signer) GetNetwork(ctx context.Context) (string, error) {
	var res struct {
		Network string `json:"network"`
	}

	if err := s.do(ctx, http.MethodGet, "/network", nil, &res); err != nil {
		return "", err
	}

	return res.Network, nil
}

// SignTransaction asks the signer to sign the envelope for the network passphrase.
func (s *Signer) SignTransaction(ctx context.Context, xdr, passphrase string) (string, error) {
	var res struct {
		SignedTransaction string `json:"signedTransaction"`
	}

	in := map[string]string{"transaction": xdr, "networkPassphrase": passphrase}
	if err := s.do(ctx, http.MethodPost, "/sign", in, &res); err != nil {
		return "", err
	}

	return res.SignedTransaction, nil
}
