// Command busd exposes a local focuser bus to bus.Remote clients over HTTP.
package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/grbsystems/indi-grbsystems/bus"
	"github.com/grbsystems/indi-grbsystems/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	addr       = flag.String("addr", "127.0.0.1:8503", "address to listen on")
	password   = flag.String("password", "", "password to require on remote connections")
	configFile = flag.String("config", "", "YAML config file describing the local transport")
)

func main() {
	flag.Parse()
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			logrus.Fatal(err)
		}
	}
	cfg.Log.Apply()
	if cfg.Transport.Kind == "remote" {
		logrus.Fatal("busd cannot serve a remote transport")
	}
	t, sim, err := cfg.BuildTransport()
	if err != nil {
		logrus.Fatal(err)
	}
	if sim != nil {
		go sim.Run(context.Background())
	}
	log := logrus.WithField("bus", t.String())

	srv := &http.Server{
		Handler:      newRouter(t, *password, log),
		Addr:         *addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Infof("listening on %v", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

// newRouter serves transactions on /api/tx and nothing else.
func newRouter(t bus.Transport, password string, log *logrus.Entry) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/tx", &bus.Handler{Transport: t, Password: password, Log: log}).Methods(http.MethodPost)
	return r
}
