package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"device_tuner/internal/config"
	"device_tuner/internal/handlers"
	"device_tuner/internal/live"
	"device_tuner/internal/logger"
	"device_tuner/internal/metrics"
	"device_tuner/internal/property"
	"device_tuner/internal/repository"
	"device_tuner/internal/repository/db"
	"device_tuner/internal/server"
	"device_tuner/internal/service"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tuning HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	log := logger.New(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	catalog, err := property.NewCatalog(cfg.Sequences)
	if err != nil {
		return fmt.Errorf("load sequences: %w", err)
	}

	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// live values come from the in-process plant unless a feed is configured
	var (
		hub  *live.Hub
		feed *live.WSSource
		src  live.Source
	)
	if cfg.Live.FeedURL == "" {
		hub = live.NewHub()
		defer hub.Close()
		src = hub
	} else {
		feed = live.NewWSSource(cfg.Live.FeedURL, cfg.Live.ReconnectDelay, log.Named("feed"))
		src = feed
	}

	m := metrics.New()
	repos := repository.NewRepository(conn)
	services := service.NewService(repos, service.Deps{
		Catalog: catalog,
		Source:  src,
		Hub:     hub,
		Config:  cfg,
		Metrics: m,
		Log:     log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := services.Restore(ctx, cfg.DefaultSequence); err != nil {
		log.Warnw("session_restore_failed", "err", err)
	}

	go services.Plant.Run(ctx, cfg.Live.Tick)
	if feed != nil {
		go feed.Run(ctx)
	}

	apiHandler := handlers.NewHandler(services, m.Handler(), log.Named("http"))
	srv := server.New(cfg.Port, apiHandler.InitRoutes())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()
	log.Infow("listening", "addr", server.Addr(cfg.Port), "sequence", cfg.DefaultSequence, "feed", cfg.Live.FeedURL)

	return waitForShutdown(cancel, srv, errCh, log)
}

// waitForShutdown blocks until a termination signal or a server failure,
// then stops background goroutines and drains in-flight requests.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, errCh <-chan error, log *logger.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		cancel()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	log.Infow("shutting down server...")
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
