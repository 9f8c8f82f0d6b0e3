package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"gallery/internal/changes"
	"gallery/internal/database"
	"gallery/internal/handlers"
	"gallery/internal/indexer"
	"gallery/internal/logging"
	"gallery/internal/memory"
	"gallery/internal/metrics"
	"gallery/internal/middleware"
	"gallery/internal/session"
	"gallery/internal/source"
	"gallery/internal/startup"
	"gallery/internal/watcher"
)

const (
	shutdownTimeout = 30 * time.Second
	statsInterval   = time.Minute
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		port        string
		metricsPort string
		noMetrics   bool
		noWatch     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index the media directory and serve media lists over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("metrics-port") {
				cfg.MetricsPort = metricsPort
			}
			if noMetrics {
				cfg.MetricsEnabled = false
			}
			if noWatch {
				cfg.Watch = false
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "HTTP port")
	cmd.Flags().StringVar(&metricsPort, "metrics-port", "", "Prometheus metrics port")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Disable the metrics server")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable the filesystem watcher")

	return cmd
}

func runServe(ctx context.Context, cfg *startup.Config) error {
	startTime := time.Now()
	memory.Configure(os.Getenv)

	if err := cfg.Prepare(); err != nil {
		return err
	}

	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	metrics.InitializeMetrics()

	// Background work stops with runCtx; ctx only signals shutdown.
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startup.Section("Services")
	dbStart := time.Now()
	hub := changes.NewHub()
	db, err := database.New(runCtx, cfg.DatabasePath, hub)
	if err != nil {
		return err
	}
	startup.Ready("Database opened in %v", time.Since(dbStart).Round(time.Millisecond))

	idx := indexer.New(db, cfg.MediaDir)
	go idx.Run(runCtx, cfg.IndexInterval.Duration)
	if cfg.IndexInterval.Duration > 0 {
		startup.Ready("Indexer started, full pass every %v", cfg.IndexInterval)
	} else {
		startup.Ready("Indexer started, startup pass only")
	}

	watched := 0
	if cfg.Watch {
		w, err := watcher.New(cfg.MediaDir, idx)
		if err != nil {
			logging.Warn("Filesystem watcher unavailable: %v", err)
		} else {
			watched = w.Watched()
			go func() {
				if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					logging.Error("Watcher stopped: %v", err)
				}
			}()
		}
	}
	switch {
	case !cfg.Watch:
		logging.Info("  Filesystem watching disabled, changes apply on the next index")
	case watched > 0:
		startup.Ready("Watching %d directories for changes", watched)
	}

	collector := metrics.NewCollector(db, statsInterval)
	hub.Subscribe(func(changes.Change) { collector.Refresh() })
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		collector.Run(runCtx)
	}()

	sessions := session.NewManager(
		source.NewRouter(db, source.NewDirectory(db)),
		hub,
		session.Options{
			WindowSize:  cfg.WindowSize,
			Seed:        cfg.ShuffleSeed,
			IdleTimeout: cfg.SessionIdle.Duration,
		},
	)
	sessionsDone := make(chan struct{})
	go func() {
		defer close(sessionsDone)
		sessions.Run(runCtx)
	}()

	router := handlers.New(db, idx, sessions).Router()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	startup.LogRoutes(router, cfg.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = cfg.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	startup.LogListening(cfg, time.Since(startTime))

	var runErr error
	var sd *startup.Shutdown
	select {
	case <-ctx.Done():
		sd = startup.BeginShutdown("signal")
	case runErr = <-serveErr:
		logging.Error("Server error: %v", runErr)
		sd = startup.BeginShutdown("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	sd.Step("HTTP server stopped", srv.Shutdown(shutdownCtx))
	if metricsSrv != nil {
		sd.Step("Metrics server stopped", metricsSrv.Shutdown(shutdownCtx))
	}

	// Stops the indexer, watcher, collector and sessions.
	cancel()
	sd.Step("Sessions closed", waitDone(shutdownCtx, sessionsDone))
	sd.Step("Metrics collector stopped", waitDone(shutdownCtx, collectorDone))

	sd.Step("Database closed", db.Close())
	sd.Finish()
	return runErr
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gave up waiting: %w", ctx.Err())
	}
}
