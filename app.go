package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"

	"github.com/ilievs/pinboard/api"
	"github.com/ilievs/pinboard/config"
	"github.com/ilievs/pinboard/core"
	"github.com/ilievs/pinboard/metrics"
	"github.com/ilievs/pinboard/mqtt"
	"github.com/ilievs/pinboard/storage"
)

const shutdownTimeout = 10 * time.Second

type dashboardSource interface {
	core.Persister
	LoadDashboards(ctx context.Context) ([]*core.Dashboard, error)
}

// openStorage picks Postgres when a database is configured and memory
// otherwise. Dashboards come from the database; the profile file seeds an
// empty one.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (dashboardSource, func(), error) {
	var source dashboardSource = storage.NewMemory()
	closeFn := func() {}
	if cfg.Database.URL != "" {
		pg, err := storage.NewPostgres(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, nil, err
		}
		source, closeFn = pg, pg.Close
	}
	return source, closeFn, nil
}

func loadDashboards(ctx context.Context, cfg config.Config, source dashboardSource, logger *slog.Logger) ([]*core.Dashboard, error) {
	dashboards, err := source.LoadDashboards(ctx)
	if err != nil {
		return nil, err
	}
	if len(dashboards) > 0 || cfg.ProfilePath == "" {
		return dashboards, nil
	}
	dashboards, err = storage.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	logger.Info("dashboards seeded from profile", "path", cfg.ProfilePath, "count", len(dashboards))
	return dashboards, nil
}

func RunApplication(ctx context.Context, cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	metrics.Init()

	source, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStorage()

	dashboards, err := loadDashboards(ctx, cfg, source, logger)
	if err != nil {
		return fmt.Errorf("load dashboards: %w", err)
	}

	store := core.NewStore(dashboards...)
	router := core.NewRouter(logger, cfg.Router.QueueSize)
	persistQueue := core.NewPersistQueue(store, source, logger, cfg.Database.PersistTimeout)
	handler := core.NewHandler(store, router, persistQueue, logger)

	persistCtx, stopPersist := context.WithCancel(context.Background())
	persistDone := make(chan struct{})
	go func() {
		persistQueue.Run(persistCtx)
		close(persistDone)
	}()

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       logger,
	})
	broker := mqtt.NewMochiBroker(server, logger)
	err = broker.Start(cfg.MQTT.Address, mqtt.Ledger(cfg),
		[]mochi.Hook{new(mqtt.SessionHook)},
		[]any{&mqtt.HookOptions{
			Publisher: mqtt.NewMochiClient(server),
			Handler:   handler,
			Accounts:  cfg,
			Logger:    logger,
		}})
	if err != nil {
		stopPersist()
		<-persistDone
		return fmt.Errorf("start mqtt broker: %w", err)
	}

	apiServer := api.NewServer(handler, logger)
	e := apiServer.Echo()
	httpErr := make(chan error, 1)
	go func() {
		// Start server
		if err := e.Start(cfg.HTTP.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()
	logger.Info("pinboard started", "mqtt", cfg.MQTT.Address, "http", cfg.HTTP.Address, "dashboards", len(dashboards))

	select {
	case <-ctx.Done():
	case err = <-httpErr:
		logger.Error("failed to start server", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	apiServer.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := broker.Close(); err != nil {
		logger.Warn("mqtt shutdown", "error", err)
	}
	router.Close()
	stopPersist()
	<-persistDone
	logger.Info("pinboard stopped")
	return err
}
