package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/bots/handlers"
	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/cooldown"
	"github.com/nextlevelbuilder/messenger/internal/gateway"
	httpapi "github.com/nextlevelbuilder/messenger/internal/http"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
	"github.com/nextlevelbuilder/messenger/internal/metrics"
	"github.com/nextlevelbuilder/messenger/internal/queue"
	"github.com/nextlevelbuilder/messenger/internal/storage"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/tracing"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket gateway and bot workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv.load_failed", "error", err)
	}

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing.shutdown_failed", "error", err)
		}
	}()

	stores, db, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	slog.Info("stores opened", "mode", cfg.Database.Mode)

	eventBus := bus.New()
	hub := gateway.NewServer(cfg, stores.Participants)

	m := messenger.New(messenger.Options{
		Config:      cfg,
		Stores:      stores,
		Broadcaster: broadcast.New(hub, stores.Participants),
		Bus:         eventBus,
		Uploader:    storage.NewDisk(cfg.Storage.Root),
		Resolver:    store.StaticResolver{},
	})

	registry := bots.NewRegistry()
	if err := handlers.Register(registry, m); err != nil {
		return fmt.Errorf("register bot handlers: %w", err)
	}
	cooldowns := cooldown.New()
	gate := bots.NewGate(cooldowns)
	dispatcher := bots.NewDispatcher(bots.DispatcherOptions{
		Config:   cfg,
		Stores:   stores,
		Registry: registry,
		Gate:     gate,
		Bus:      eventBus,
	})
	dispatcher.Subscribe(eventBus)
	admin := bots.NewAdmin(cfg, stores, registry, gate, eventBus)

	g, gctx := errgroup.WithContext(ctx)

	q, err := queue.New(gctx, cfg.Bots.Queue, dispatcher.RunJob)
	if err != nil {
		return fmt.Errorf("open bot queue: %w", err)
	}
	if q != nil {
		dispatcher.SetQueue(q)
		g.Go(func() error { return q.Run(gctx) })
		defer q.Close()
	}

	g.Go(func() error { return cooldown.RunSweeper(gctx, cooldowns, cfg.Bots.SweepCron) })
	g.Go(func() error {
		err := config.Watch(gctx, cfgPath, cfg, func(f config.FeaturesConfig) {
			eventBus.Broadcast(bus.Event{Name: protocol.BusFeaturesReloaded, Payload: f})
		})
		if err != nil {
			slog.Warn("config.watch.disabled", "path", cfgPath, "error", err)
		}
		return nil
	})

	hub.BuildMux(
		func(mux *http.ServeMux) { httpapi.RegisterAPI(mux, cfg, m, admin) },
		func(mux *http.ServeMux) { mux.Handle("GET /metrics", metrics.Handler()) },
	)
	g.Go(func() error { return hub.Start(gctx) })

	slog.Info("messenger started", "version", Version, "queue", cfg.Bots.Queue.Driver)
	err = g.Wait()
	slog.Info("messenger stopped")
	return err
}
