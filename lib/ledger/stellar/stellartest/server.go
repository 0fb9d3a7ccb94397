// Package stellartest provides an in-process Horizon server for tests. It keeps accounts with native balances and
// sequence numbers, accepts payment transactions, serves account history and funds accounts like friendbot.
package stellartest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	"github.com/tarancss/rentguard/lib/config"
)

// FriendbotAmount is the native balance given to accounts funded through the friendbot endpoint.
const FriendbotAmount = "10000"

const problemPrefix = "https://stellar.org/horizon-errors/"

// Submission is a payment accepted by the server.
type Submission struct {
	Hash        string
	Source      string
	Destination string
	Amount      string
	Asset       string
	Memo        string
}

type record struct {
	id, hash, source, memoType, memo string
	ledger                           int32
	ops                              int32
	at                               time.Time
}

type account struct {
	seq     int64
	balance decimal.Decimal
	history []record
}

// Server is a fake Horizon endpoint for a single network.
type Server struct {
	*httptest.Server
	Passphrase string

	mu        sync.Mutex
	ledger    int32
	accounts  map[string]*account
	submitted []Submission
}

// NewServer starts a server for the network with the given passphrase. Callers must Close it.
func NewServer(passphrase string) *Server {
	s := &Server{Passphrase: passphrase, ledger: 1000, accounts: make(map[string]*account)}

	r := mux.NewRouter()
	r.HandleFunc("/accounts/{id}", s.accountHandler).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/transactions", s.historyHandler).Methods(http.MethodGet)
	r.HandleFunc("/transactions", s.submitHandler).Methods(http.MethodPost)
	r.HandleFunc("/friendbot", s.friendbotHandler).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)

	return s
}

// Network returns the network configuration pointing to the server. friendbot sets the friendbot url.
func (s *Server) Network(name string, friendbot bool) config.NetworkConfig {
	n := config.NetworkConfig{Name: name, Horizon: s.URL, Passphrase: s.Passphrase}
	if friendbot {
		n.Friendbot = s.URL + "/friendbot"
	}

	return n
}

// AddAccount creates an account holding xlm native units.
func (s *Server) AddAccount(pk, xlm string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[pk] = &account{seq: int64(s.ledger) << 32, balance: decimal.RequireFromString(xlm)}
}

// Sequence returns the current sequence number of the account, or -1 if it does not exist.
func (s *Server) Sequence(pk string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[pk]; ok {
		return a.seq
	}

	return -1
}

// Balance returns the native balance of the account.
func (s *Server) Balance(pk string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[pk]; ok {
		return a.balance.StringFixed(7)
	}

	return ""
}

// Submitted returns the payments accepted so far.
func (s *Server) Submitted() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Submission(nil), s.submitted...)
}

func (s *Server) accountHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	a, ok := s.accounts[id]

	var body map[string]interface{}
	if ok {
		body = map[string]interface{}{
			"id":             id,
			"account_id":     id,
			"sequence":       strconv.FormatInt(a.seq, 10),
			"subentry_count": 0,
			"balances": []map[string]interface{}{
				{"balance": a.balance.StringFixed(7), "asset_type": "native"},
			},
			"signers": []map[string]interface{}{
				{"key": id, "weight": 1, "type": "ed25519_public_key"},
			},
		}
	}
	s.mu.Unlock()

	if !ok {
		problem(w, http.StatusNotFound, "not_found", "Resource Missing", nil)

		return
	}

	reply(w, http.StatusOK, body)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	a, ok := s.accounts[id]

	records := []map[string]interface{}{}

	if ok {
		for i := len(a.history) - 1; i >= 0 && len(records) < limit; i-- {
			records = append(records, a.history[i].json())
		}
	}
	s.mu.Unlock()

	if !ok {
		problem(w, http.StatusNotFound, "not_found", "Resource Missing", nil)

		return
	}

	reply(w, http.StatusOK, map[string]interface{}{"_embedded": map[string]interface{}{"records": records}})
}

//nolint:funlen // validation of the envelope against the account state
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		problem(w, http.StatusBadRequest, "bad_request", "Bad Request", nil)

		return
	}

	gtx, err := txnbuild.TransactionFromXDR(r.PostForm.Get("tx"))
	if err != nil {
		problem(w, http.StatusBadRequest, "transaction_malformed", "Transaction Malformed", nil)

		return
	}

	tx, ok := gtx.Transaction()
	if !ok {
		problem(w, http.StatusBadRequest, "transaction_malformed", "Transaction Malformed", nil)

		return
	}

	src := tx.SourceAccount()

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[src.AccountID]
	if !ok {
		failed(w, "tx_no_source_account")

		return
	}

	if src.Sequence != acc.seq+1 {
		failed(w, "tx_bad_seq")

		return
	}

	hash, err := tx.Hash(s.Passphrase)
	if err != nil || len(tx.Signatures()) == 0 {
		failed(w, "tx_bad_auth")

		return
	}

	kp, err := keypair.ParseAddress(src.AccountID)
	if err != nil || kp.Verify(hash[:], tx.Signatures()[0].Signature) != nil {
		failed(w, "tx_bad_auth")

		return
	}

	hashHex := fmt.Sprintf("%x", hash)

	memoType, memo := "none", ""
	if m, isText := tx.Memo().(txnbuild.MemoText); isText {
		memoType, memo = "text", string(m)
	}

	var subs []Submission

	for _, op := range tx.Operations() {
		p, isPayment := op.(*txnbuild.Payment)
		if !isPayment {
			failed(w, "tx_failed", "op_not_supported")

			return
		}

		dst, exists := s.accounts[p.Destination]
		if !exists {
			failed(w, "tx_failed", "op_no_destination")

			return
		}

		amt := decimal.RequireFromString(p.Amount)
		asset := "XLM"

		if p.Asset.IsNative() {
			if acc.balance.LessThan(amt) {
				failed(w, "tx_failed", "op_underfunded")

				return
			}

			acc.balance = acc.balance.Sub(amt)
			dst.balance = dst.balance.Add(amt)
		} else {
			asset = p.Asset.GetCode() + ":" + p.Asset.GetIssuer()
		}

		subs = append(subs, Submission{
			Hash: hashHex, Source: src.AccountID, Destination: p.Destination, Amount: p.Amount, Asset: asset, Memo: memo,
		})
	}

	s.ledger++
	acc.seq = src.Sequence

	rec := record{
		id: hashHex, hash: hashHex, source: src.AccountID, memoType: memoType, memo: memo, ledger: s.ledger,
		ops: int32(len(subs)), at: time.Now().UTC(),
	}
	acc.history = append(acc.history, rec)

	for _, sub := range subs {
		if sub.Destination != src.AccountID {
			dst := s.accounts[sub.Destination]
			dst.history = append(dst.history, rec)
		}
	}

	s.submitted = append(s.submitted, subs...)

	body := rec.json()
	body["envelope_xdr"] = r.PostForm.Get("tx")
	body["result_xdr"] = "AAAAAAAAAGQAAAAAAAAAAQAAAAAAAAABAAAAAAAAAAA="

	reply(w, http.StatusOK, body)
}

func (s *Server) friendbotHandler(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("addr")
	if _, err := keypair.ParseAddress(addr); err != nil {
		problem(w, http.StatusBadRequest, "bad_request", "Bad Request", nil)

		return
	}

	s.mu.Lock()
	if _, ok := s.accounts[addr]; ok {
		s.mu.Unlock()
		problem(w, http.StatusBadRequest, "bad_request", "Bad Request", map[string]interface{}{
			"detail": "createAccountAlreadyExist",
		})

		return
	}

	s.ledger++
	s.accounts[addr] = &account{seq: int64(s.ledger) << 32, balance: decimal.RequireFromString(FriendbotAmount)}
	hash := fmt.Sprintf("%064x", s.ledger)
	ledger := s.ledger
	s.mu.Unlock()

	reply(w, http.StatusOK, map[string]interface{}{"hash": hash, "ledger": ledger, "successful": true})
}

func (rec record) json() map[string]interface{} {
	return map[string]interface{}{
		"id":                      rec.id,
		"paging_token":            strconv.Itoa(int(rec.ledger)),
		"successful":              true,
		"hash":                    rec.hash,
		"ledger":                  rec.ledger,
		"created_at":              rec.at.Format(time.RFC3339),
		"source_account":          rec.source,
		"source_account_sequence": "0",
		"fee_account":             rec.source,
		"fee_charged":             "100",
		"max_fee":                 "100",
		"operation_count":         rec.ops,
		"memo_type":               rec.memoType,
		"memo":                    rec.memo,
		"signatures":              []string{},
	}
}

func failed(w http.ResponseWriter, code string, ops ...string) {
	codes := map[string]interface{}{"transaction": code}
	if len(ops) > 0 {
		codes["operations"] = ops
	}

	problem(w, http.StatusBadRequest, "transaction_failed", "Transaction Failed", map[string]interface{}{
		"detail": "The transaction failed when submitted to the stellar network.",
		"extras": map[string]interface{}{"result_codes": codes},
	})
}

func problem(w http.ResponseWriter, status int, kind, title string, extra map[string]interface{}) {
	body := map[string]interface{}{"type": problemPrefix + kind, "title": title, "status": status}
	for k, v := range extra {
		body[k] = v
	}

	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	reply(w, status, body)
}

func reply(w http.ResponseWriter, status int, body interface{}) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/hal+json; charset=utf-8")
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
