package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLedger(t *testing.T) {
	ok := testutil.ToFloat64(LedgerRequests.WithLabelValues("testnet", "submit", "ok"))
	ko := testutil.ToFloat64(LedgerRequests.WithLabelValues("testnet", "submit", "error"))

	var err error
	ObserveLedger("testnet", "submit", time.Now(), &err)

	err = errors.New("tx_bad_seq")
	ObserveLedger("testnet", "submit", time.Now(), &err)

	if got := testutil.ToFloat64(LedgerRequests.WithLabelValues("testnet", "submit", "ok")); got != ok+1 {
		t.Errorf("ok counter %v expected %v", got, ok+1)
	}

	if got := testutil.ToFloat64(LedgerRequests.WithLabelValues("testnet", "submit", "error")); got != ko+1 {
		t.Errorf("error counter %v expected %v", got, ko+1)
	}
}

func TestMiddleware(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Middleware)
	r.HandleFunc("/api/properties/{id}", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("/api/properties/{id}", http.MethodGet, "404"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/properties/abc", nil))

	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues("/api/properties/{id}", http.MethodGet, "404")); got != before+1 {
		t.Errorf("http counter %v expected %v", got, before+1)
	}
}
