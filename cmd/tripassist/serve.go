package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fentz26/tripassist/internal/audit"
	"github.com/fentz26/tripassist/internal/config"
	"github.com/fentz26/tripassist/internal/engine"
	"github.com/fentz26/tripassist/internal/gateway"
	"github.com/fentz26/tripassist/internal/itinerary"
	"github.com/fentz26/tripassist/internal/logging"
	"github.com/fentz26/tripassist/internal/metrics"
	"github.com/fentz26/tripassist/internal/notify"
	"github.com/fentz26/tripassist/internal/reaper"
	"github.com/fentz26/tripassist/internal/sessionstore"
)

const shutdownTimeout = 30 * time.Second

var (
	listenAddr   string
	storeBackend string
	discipline   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tripassist server",
	Long:  `Starts the HTTP API that accepts submissions, receives engine callbacks and delivers results.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	serveCmd.Flags().StringVar(&storeBackend, "store", "", "Session store backend: memory, file, redis or sqlite (overrides config)")
	serveCmd.Flags().StringVar(&discipline, "discipline", "", "Submission discipline: async or sync (overrides config)")
}

func loadServeConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if storeBackend != "" {
		cfg.Store.Backend = storeBackend
	}
	if discipline != "" {
		cfg.Discipline = discipline
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	logger := logging.NewLogger("serve")
	logger.Info("Starting tripassist...")

	// Initialize store
	st, err := sessionstore.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("Closing session store...")
		if err := st.Close(); err != nil {
			logger.WithError(err).Warn("Session store close error")
		}
	}()

	validator, err := itinerary.NewValidator()
	if err != nil {
		return err
	}

	// Initialize components
	m := metrics.New()
	pdr := audit.NewRecorder(nil)
	hub := notify.NewHub()

	var eng engine.Client
	if cfg.EngineURL != "" {
		eng = engine.NewWebhookClient(cfg.EngineURL, cfg.Engine.Timeout)
	} else {
		logger.Warnf("%s is not set; submissions will be rejected", config.EnvEngineURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// Cross-process delivery: redis pub/sub for shared redis stores, directory
	// events for shared file stores. Other backends rely on the stream's periodic
	// store check.
	var notifier notify.Notifier = hub
	switch s := st.(type) {
	case *sessionstore.RedisStore:
		broker := notify.NewRedisBroker(hub, s.Client(), s.Prefix())
		notifier = broker
		g.Go(func() error {
			if err := broker.Run(gctx); err != nil {
				logger.WithError(err).Warn("Redis relay stopped; results from other instances arrive by store check only")
			}
			return nil
		})
	case *sessionstore.FileStore:
		watcher, err := notify.NewDirWatcher(s.Dir(), hub, s)
		if err != nil {
			logger.WithError(err).Warn("Session directory watch unavailable")
			break
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	// Create service and server
	service := gateway.NewService(gateway.ServiceConfig{
		Discipline:    cfg.Discipline,
		PublicBaseURL: cfg.PublicBaseURL,
		SessionTTL:    cfg.Store.TTL,
	}, st, notifier, eng, validator, pdr, m)

	server := gateway.NewServer(service, m, cfg.Listen, gateway.ServerOptions{
		KeepAlive:     cfg.Stream.KeepAlive,
		StreamTimeout: cfg.Stream.Timeout,
		StoreBackend:  cfg.Store.Backend,
		Version:       version,
	})

	sweeper := reaper.New(st, pdr, m, &reaper.Config{Interval: cfg.Store.SweepInterval})

	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("Shutting down HTTP server...")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("HTTP server shutdown error")
		}
		logger.Info("Waiting for in-flight engine calls...")
		if err := service.Wait(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Engine calls still running at shutdown")
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Shutdown complete")
	return err
}
