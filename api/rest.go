package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/tarancss/rentguard/lib/logging"
	"github.com/tarancss/rentguard/lib/metrics"
)

const timeout = 15

// maxBody is the largest request body accepted.
const maxBody = 10 << 20

// Handler returns the http handler serving the RESTful API: the router wrapped with panic recovery, the combined
// access log, CORS for the frontend origin, the per-IP rate limit and security headers.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)

	st := r.PathPrefix("/api/stellar").Subrouter()
	st.HandleFunc("/network", s.networkHandler).Methods(http.MethodGet)
	st.HandleFunc("/network", s.switchNetworkHandler).Methods(http.MethodPost)
	st.HandleFunc("/keypair", s.keypairHandler).Methods(http.MethodPost)
	st.HandleFunc("/account/{publicKey}", s.accountHandler).Methods(http.MethodGet)
	st.HandleFunc("/fund", s.fundHandler).Methods(http.MethodPost)
	st.HandleFunc("/payment", s.paymentHandler).Methods(http.MethodPost)
	st.HandleFunc("/submit", s.submitHandler).Methods(http.MethodPost)
	st.HandleFunc("/transactions/{publicKey}", s.transactionsHandler).Methods(http.MethodGet)

	pr := r.PathPrefix("/api/properties").Subrouter()
	pr.HandleFunc("", s.listPropertiesHandler).Methods(http.MethodGet)
	pr.HandleFunc("", s.createPropertyHandler).Methods(http.MethodPost)
	pr.HandleFunc("/{id}", s.getPropertyHandler).Methods(http.MethodGet)
	pr.HandleFunc("/{id}", s.updatePropertyHandler).Methods(http.MethodPut)
	pr.HandleFunc("/{id}", s.deletePropertyHandler).Methods(http.MethodDelete)

	re := r.PathPrefix("/api/rentals").Subrouter()
	re.HandleFunc("", s.listRentalsHandler).Methods(http.MethodGet)
	re.HandleFunc("", s.createRentalHandler).Methods(http.MethodPost)
	re.HandleFunc("/payment", s.rentPaymentHandler).Methods(http.MethodPost)
	re.HandleFunc("/{id}", s.getRentalHandler).Methods(http.MethodGet)
	re.HandleFunc("/{id}", s.updateRentalHandler).Methods(http.MethodPut)
	re.HandleFunc("/{id}", s.deleteRentalHandler).Methods(http.MethodDelete)
	re.HandleFunc("/{id}/status", s.rentalStatusHandler).Methods(http.MethodPut)
	re.HandleFunc("/{id}/payments", s.rentalPaymentsHandler).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		reply(rw, req, http.StatusNotFound, nil, errRouteNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		reply(rw, req, http.StatusMethodNotAllowed, nil, errMethodNotAllowed)
	})

	std := logging.Std()

	var h http.Handler = securityHeaders(r)
	h = s.lim.Middleware(h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{s.conf.FrontendURL}),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(h)
	h = handlers.CombinedLoggingHandler(std.Writer(), h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(std), handlers.PrintRecoveryStack(true))(h)

	return h
}

// securityHeaders sets the response headers that restrict how browsers handle API responses and caps the request
// body size.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		h := rw.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")

		r.Body = http.MaxBytesReader(rw, r.Body, maxBody)
		next.ServeHTTP(rw, r)
	})
}

// Init sets up and starts the http/https server to service the RESTful API. If sslPort, sslCert and sslKey are
// informed, it will also start an https (TLS) server on the specified endpoint. It returns once Stop is called, or
// with the error of a server that could not start or failed, after stopping the service.
func (s *Service) Init(endpoint, port, sslPort, sslCert, sslKey string) error {
	var (
		err, errTLS error
		wg          sync.WaitGroup
	)

	h := s.Handler()

	// both servers must exist before either can fail and call Stop
	if port != "" {
		s.s = &http.Server{
			Handler:      h,
			Addr:         endpoint + ":" + port,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
			ErrorLog:     logging.Std(),
		}
	}

	if sslPort != "" && sslCert != "" && sslKey != "" {
		s.ss = &http.Server{
			Handler:      h,
			Addr:         endpoint + ":" + sslPort,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
			ErrorLog:     logging.Std(),
		}
	}

	if s.s != nil {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err = s.s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Errorf("http server failed:%v", err)
				s.Stop()
			}
		}()

		logging.Infof("Listening to API http requests on %s:%s", endpoint, port)
	}

	if s.ss != nil {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if errTLS = s.ss.ListenAndServeTLS(sslCert, sslKey); !errors.Is(errTLS, http.ErrServerClosed) {
				logging.Errorf("https server failed:%v", errTLS)
				s.Stop()
			}
		}()

		logging.Infof("Listening to API https requests on %s:%s", endpoint, sslPort)
	}

	// wait for servers to be shutdown
	<-s.sc
	wg.Wait()

	switch {
	case err != nil && !errors.Is(err, http.ErrServerClosed):
		return fmt.Errorf("http server: %w", err)
	case errTLS != nil && !errors.Is(errTLS, http.ErrServerClosed):
		return fmt.Errorf("https server: %w", errTLS)
	}

	return nil
}
