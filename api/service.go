// Package api implements the rentguard REST service.
//
// The service lists properties, keeps rental agreements and their rent payments in a record store, and wraps a
// ledger network for keypairs, balances, history, payment building and submission. Every response is a JSON
// envelope {"success":true,...} or {"success":false,"error":...}.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tarancss/rentguard/lib/config"
	"github.com/tarancss/rentguard/lib/ledger"
	"github.com/tarancss/rentguard/lib/logging"
	"github.com/tarancss/rentguard/lib/msg"
	"github.com/tarancss/rentguard/lib/ratelimit"
	"github.com/tarancss/rentguard/lib/store"
	"github.com/tarancss/rentguard/lib/store/db"
)

const shutdownTimeout = 10 * time.Second

// Service contains the data necessary to deliver the service.
type Service struct {
	conf config.ServiceConfig
	db   store.Store      // record store
	nets *ledger.Networks // ledger clients
	mb   msg.MsgBroker    // optional
	lim  *ratelimit.Limiter
	s    *http.Server  // http server
	ss   *http.Server  // https server
	sc   chan struct{} // closed once the servers are shut down
	stop sync.Once
}

// New returns a pointer to a new rentguard service. mb may be nil when no broker is configured.
func New(conf config.ServiceConfig, dbConn store.Store, mb msg.MsgBroker, nets *ledger.Networks) *Service {
	return &Service{
		conf: conf,
		db:   dbConn,
		nets: nets,
		mb:   mb,
		lim:  ratelimit.New(conf.RateLimit, conf.RateWindow),
		sc:   make(chan struct{}),
	}
}

// Stop shuts down the http servers and closes gracefully the connections to the message broker, the ledger
// networks and the record store.
func (s *Service) Stop() {
	s.stop.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if s.s != nil {
			if err := s.s.Shutdown(ctx); err != nil {
				logging.Errorf("Error in http server shutdown:%v", err)
			}
		}

		if s.ss != nil {
			if err := s.ss.Shutdown(ctx); err != nil {
				logging.Errorf("Error in https server shutdown:%v", err)
			}
		}

		close(s.sc)

		if s.mb != nil {
			if err := s.mb.Close(); err != nil {
				logging.Errorf("Error closing message broker:%v", err)
			}
		}

		s.nets.End()

		if s.db != nil {
			err := db.Close(s.conf.DBType, s.db)
			logging.Infof("Disconnecting %v record store, err:%v", s.conf.DBType, err)
		}
	})
}

// ManageEvents starts go routines consuming the payment events of every network from the message broker. Events
// are logged and acknowledged.
func (s *Service) ManageEvents() error {
	if s.mb == nil {
		return nil
	}

	for _, net := range s.nets.Names() {
		mut := new(sync.Mutex)
		mut.Lock()

		eveCh, errCh, err := s.mb.GetPayments(net, mut)
		if err != nil {
			return err
		}

		go func(netName string) {
			logging.Infof("[%s] Start listening to payment events", netName)

			for eve := range eveCh {
				logging.Infof("[%s] Rent payment %s of %s %s recorded for rental %s", netName, eve.Hash, eve.Amount,
					eve.Currency, eve.RentalID)
				mut.Unlock()
			}

			logging.Infof("[%s] Stop listening to payment events", netName)
		}(net)

		go func(netName string) {
			for e := range errCh {
				logging.Warnf("[%s] Received broker error %v", netName, e)
			}
		}(net)
	}

	return nil
}
