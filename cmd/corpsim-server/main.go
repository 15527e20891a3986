package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corpsim/internal/config"
	"corpsim/internal/engine"
	"corpsim/internal/metadata"
	"corpsim/internal/observe"
	"corpsim/internal/server"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var commandLog, eventLog, noRedrive bool
	cmd := &cobra.Command{
		Use:          "corpsim-server",
		Short:        "Run the authoritative corpsim game server",
		SilenceUsage: true,
		Version:      version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			switch {
			case commandLog:
				cfg.Redrive = config.RedriveCommand
			case eventLog:
				cfg.Redrive = config.RedriveEvent
			case noRedrive:
				cfg.Redrive = config.RedriveNone
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVarP(&commandLog, "redrive-command-log", "c", false, "rebuild games by re-running their command logs")
	cmd.Flags().BoolVarP(&eventLog, "redrive-event-log", "e", false, "rebuild games by replaying their event logs (default)")
	cmd.Flags().BoolVar(&noRedrive, "no-redrive", false, "start every game from a freshly generated world")
	cmd.MarkFlagsMutuallyExclusive("redrive-command-log", "redrive-event-log", "no-redrive")
	return cmd
}

func run(ctx context.Context, cfg config.ServerConfig) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	shutdownMetrics, err := observe.InitProvider(ctx, "corpsim-server", version)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			logger.Warn("metrics shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	store, closeStore, err := metadata.Open(ctx, metadata.Options{
		Backend:     cfg.MetadataBackend,
		DataDir:     cfg.DataDir,
		DatabaseURL: cfg.DatabaseURL,
		URL:         cfg.MetadataURL,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer closeStore()

	eng := engine.New(engine.Config{
		DataDir:         cfg.DataDir,
		TickEvery:       cfg.TickEvery(),
		StartWeek:       uint16(cfg.StartWeek),
		OrgCount:        cfg.OrgCount,
		Redrive:         cfg.Redrive,
		CommandQueue:    cfg.CommandQueue,
		MetadataTimeout: cfg.MetadataTimeout,
	}, metadata.NewInstrumented(store, metrics), metrics, logger)

	if err := eng.Redrive(ctx); err != nil {
		return fmt.Errorf("redrive: %w", err)
	}

	srv := server.New(eng, server.Config{
		ClientQueue:      cfg.ClientQueue,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Addr) })
	if cfg.MetricsAddr != "" {
		httpServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsRouter(srv),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	logger.Info("corpsim server starting",
		"addr", cfg.Addr,
		"tick_rate", cfg.TickRate,
		"redrive", cfg.Redrive,
		"metadata", cfg.MetadataBackend,
	)
	err = g.Wait()
	logger.Info("corpsim server stopped")
	return err
}

func metricsRouter(srv *server.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"clients":%d}`+"\n", srv.Connections())
	})
	r.Handle("/metrics", observe.Handler())
	return r
}
