package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/gatekeeper/internal/auth"
	"github.com/dukerupert/gatekeeper/internal/clock"
	"github.com/dukerupert/gatekeeper/internal/command"
	"github.com/dukerupert/gatekeeper/internal/config"
	"github.com/dukerupert/gatekeeper/internal/database"
	"github.com/dukerupert/gatekeeper/internal/freetier"
	"github.com/dukerupert/gatekeeper/internal/logging"
	"github.com/dukerupert/gatekeeper/internal/metrics"
	"github.com/dukerupert/gatekeeper/internal/ratelimit"
	"github.com/dukerupert/gatekeeper/internal/server"
	"github.com/dukerupert/gatekeeper/internal/store"
	"github.com/dukerupert/gatekeeper/internal/subscription"
	"github.com/dukerupert/gatekeeper/internal/sweeper"
	"github.com/dukerupert/gatekeeper/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatekeeper: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	tg, err := telegram.New(telegram.Config{Token: cfg.BotToken, SkipGetMe: true}, logger.With("component", "telegram"))
	if err != nil {
		return err
	}
	if cfg.BotIdentity != "" {
		tg.SetIdentity(cfg.BotIdentity)
	}
	identity, err := tg.Identity(ctx)
	if err != nil {
		return fmt.Errorf("resolve bot identity: %w", err)
	}
	logger = logger.With("bot", identity)

	clk := clock.Real{}
	m := metrics.New()
	admins := auth.NewAdminSet(cfg.OwnerID, cfg.Admins...)

	subStore := store.NewSubscriptionStore(db)
	settingsStore := store.NewSettingsStore(db)

	meter := freetier.NewMeter(store.NewUsageStore(db), cfg.Location, cfg.StoreTimeout, logger.With("component", "freetier"))
	manager := subscription.NewManager(subStore, cfg.StoreTimeout, logger.With("component", "subscription"))
	engine := auth.NewEngine(admins, subStore, meter, auth.Config{
		FreeTierMaxHours: cfg.FreeTierMaxHours,
		StoreTimeout:     cfg.StoreTimeout,
	}, logger.With("component", "auth"))

	limiter := ratelimit.New(cfg.CommandRate, cfg.CommandBurst, clk)
	dispatcher := command.NewDispatcher(engine, meter, limiter, clk, m, logger.With("component", "command"))
	handlers := command.NewHandlers(command.Deps{
		Engine:           engine,
		Subscriptions:    manager,
		Meter:            meter,
		Settings:         settingsStore,
		Gateway:          tg,
		Clock:            clk,
		FreeTierMaxHours: cfg.FreeTierMaxHours,
		Location:         cfg.Location,
		Logger:           logger.With("component", "command"),
	})
	dispatcher.Register(handlers.Commands()...)
	dispatcher.SetDefault(handlers.Upload())

	sw := sweeper.New(manager, settingsStore, tg, admins, clk, m, sweeper.Config{
		BotIdentity: identity,
		Interval:    cfg.SweepInterval,
	}, logger.With("component", "sweeper"))

	srv := server.New(db, m, logger)

	logger.Info("gatekeeper starting",
		"admins", len(admins.IDs()),
		"free_tier_hours", cfg.FreeTierMaxHours,
		"sweep_interval", cfg.SweepInterval,
		"http_addr", cfg.HTTPAddr,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tg.Run(ctx, dispatcher)
	})
	g.Go(func() error {
		// Catch up on anything that expired while the bot was down.
		sw.Sweep(ctx)
		sw.Start(ctx)
		<-ctx.Done()
		sw.Stop()
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				limiter.Cleanup(3 * time.Minute)
			}
		}
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.HTTPAddr)
	})

	err = g.Wait()
	slog.Info("gatekeeper stopped")
	return err
}
