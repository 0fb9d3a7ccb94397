// Package main: rentguard service.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tarancss/rentguard/api"
	"github.com/tarancss/rentguard/lib/config"
	"github.com/tarancss/rentguard/lib/ledger"
	"github.com/tarancss/rentguard/lib/logging"
	"github.com/tarancss/rentguard/lib/metrics"
	"github.com/tarancss/rentguard/lib/msg"
	"github.com/tarancss/rentguard/lib/msg/amqp"
	"github.com/tarancss/rentguard/lib/store/db"
)

const (
	metricsAddr = ":9100"
	brokerRetry = 10 * time.Second
)

func main() {
	var (
		confPath string
		monitor  bool
	)

	cmd := &cobra.Command{
		Use:          "rentguard",
		Short:        "Rental listings and rent payments over the Stellar network",
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			return run(confPath, monitor)
		},
	}

	cmd.Flags().StringVarP(&confPath, "config", "c", "", "configuration json file")
	cmd.Flags().BoolVarP(&monitor, "monitor", "m", false, "serve Prometheus metrics at http://localhost"+metricsAddr)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(confPath string, monitor bool) error {
	// extract configuration
	conf, err := config.ExtractConfiguration(confPath)
	if err != nil {
		return err
	}

	if err = logging.SetLevel(conf.LogLevel); err != nil {
		return err
	}

	logging.Infof("Configuration: network:%s networks:%d dbtype:%s mbtype:%s port:%s", conf.Network,
		len(conf.Networks), conf.DBType, conf.MbType, conf.Port)

	// connect to record store
	dbConn, err := db.New(conf.DBType, conf.DBConn)
	if err != nil {
		return err
	}

	logging.Infof("Connected to %s record store", conf.DBType)

	// load all ledger networks
	nets, err := ledger.Init(conf.Networks, conf.Network)
	if err != nil {
		_ = db.Close(conf.DBType, dbConn)

		return err
	}

	logging.Infof("Ledger clients loaded: %v, active:%s", nets.Names(), conf.Network)

	// load Prometheus monitor
	if monitor {
		go func() {
			logging.Infof("Serving metrics API on %s", metricsAddr)

			h := http.NewServeMux()
			h.Handle("/metrics", metrics.Handler())

			if errM := http.ListenAndServe(metricsAddr, h); errM != nil {
				logging.Errorf("metrics server failed:%v", errM)
			}
		}()
	}

	// load message broker
	mb, err := broker(conf)
	if err != nil {
		nets.End()
		_ = db.Close(conf.DBType, dbConn)

		return err
	}

	s := api.New(conf, dbConn, mb, nets)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		logging.Infof("Program killed !")
		s.Stop()
	}()

	// log payment events
	if err = s.ManageEvents(); err != nil {
		logging.Errorf("Error setting up broker readers for payment events:%v", err)
	}

	// init RESTful API and wait for its return
	if err = s.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey); err != nil {
		return err
	}

	logging.Infof("rentguard: shutdown")

	return nil
}

// broker connects to the configured message broker. It returns nil when none is configured.
func broker(conf config.ServiceConfig) (msg.MsgBroker, error) {
	switch conf.MbType {
	case "":
		logging.Infof("No message broker configured, payment events are not published")

		return nil, nil
	case "amqp":
		mb, err := amqp.New(conf.MbConn)
		if err != nil {
			logging.Warnf("Message broker not ready, retrying in %v:%v", brokerRetry, err)
			time.Sleep(brokerRetry)

			if mb, err = amqp.New(conf.MbConn); err != nil {
				return nil, err
			}
		}

		if err = mb.Setup(); err != nil {
			_ = mb.Close()

			return nil, err
		}

		return mb, nil
	}

	logging.Warnf("Unknown message broker type: %s, payment events are not published", conf.MbType)

	return nil, nil
}
