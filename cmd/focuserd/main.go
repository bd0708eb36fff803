// Command focuserd runs a focuser controller and serves it over HTTP and focusctl.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/grbsystems/indi-grbsystems/focuser"
	"github.com/grbsystems/indi-grbsystems/internal/config"
	"github.com/grbsystems/indi-grbsystems/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	configFile = flag.String("config", "", "YAML config file")
	simulate   = flag.Bool("simulate", false, "use a simulated focuser")
	staticDir  = flag.String("static_dir", "", "directory containing static files")
	addr       = flag.String("addr", "", "HTTP listen address, overrides the config")
)

func loadConfig() (*config.Config, error) {
	if *configFile == "" {
		cfg := config.Default()
		config.Normalize(cfg)
		return cfg, nil
	}
	return config.Load(*configFile)
}

// connectLoop retries Connect once a second until it succeeds.
func connectLoop(ctx context.Context, c *focuser.Controller) {
	for {
		if err := c.Connect(ctx); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
	}
}

func main() {
	flag.Parse()
	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatal(err)
	}
	if *simulate {
		cfg.Transport.Kind = "sim"
		cfg.Codec.Dialect = "smbus"
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	cfg.Log.Apply()
	log := logrus.WithField("device", cfg.Transport.Kind)

	drv, sim, err := cfg.BuildDriver(log)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if sim != nil {
		g.Go(func() error { return sim.Run(ctx) })
	}

	s := NewServer()
	s.c = focuser.New(drv, cfg.Focuser(), s.statusCallback)
	g.Go(func() error {
		connectLoop(ctx, s.c)
		<-ctx.Done()
		s.c.Disconnect()
		return nil
	})

	if cfg.Server.FocusctlAddr != "" {
		if _, err := s.ListenFocusctl(ctx, cfg.Server.FocusctlAddr); err != nil {
			log.Fatal(err)
		}
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	r.Handle("/metrics", metrics.Handler())
	if *staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(*staticDir)))
	}
	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Server.Addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})
	g.Go(func() error {
		log.Infof("listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
