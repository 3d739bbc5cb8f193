package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

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
	svc := sim.NewService(pool, cfg, logger, ledger, notifier)

	if seed := strings.TrimSpace(os.Getenv("RIFFCITY_WORKER_SEED")); seed != "" {
		if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
			svc.SeedRandom(n)
			logger.Info("random source seeded", "seed", n)
		}
	}

	trig := sim.Trigger{TriggeredBy: "worker"}
	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("RIFFCITY_WORKER_RUN_ONCE")), "true")
	if runOnce {
		res, err := svc.RunDaily(ctx, trig)
		if err != nil {
			logger.Error("daily run failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "processed", res.Processed, "errors", res.Errors)
		return
	}

	ticker := time.NewTicker(cfg.WorkerTickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.WorkerTickEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			res, err := svc.RunDaily(ctx, trig)
			if err != nil {
				logger.Error("daily run failed", "err", err)
				continue
			}
			logger.Info("daily run complete", "processed", res.Processed, "errors", res.Errors)
		}
	}
}
