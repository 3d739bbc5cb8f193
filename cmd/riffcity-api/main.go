package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"riffcity/internal/api"
	"riffcity/internal/config"
	"riffcity/internal/db"
	"riffcity/internal/jobrun"
	"riffcity/internal/notify"
	"riffcity/internal/sim"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	notifier := notify.New(pool, logger)
	if cfg.DiscordBotToken != "" && cfg.DiscordChannelID != "" {
		if err := notifier.EnableDiscord(cfg.DiscordBotToken, cfg.DiscordChannelID); err != nil {
			logger.Error("discord relay disabled", "err", err)
		} else {
			defer notifier.Close()
		}
	}

	ledger := jobrun.NewLedger(pool, logger)
	simSvc := sim.NewService(pool, cfg, logger, ledger, notifier)

	server := api.New(cfg, logger, simSvc, ledger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("riffcity api listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
