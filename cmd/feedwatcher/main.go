package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"feedwatcher/internal/bot"
	"feedwatcher/internal/config"
	"feedwatcher/internal/fetcher"
	"feedwatcher/internal/matcher"
	"feedwatcher/internal/scheduler"
	"feedwatcher/internal/seed"
	"feedwatcher/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.SeedFile != "" {
		file, err := seed.Load(cfg.SeedFile)
		if err != nil {
			log.Error("load seed file", "path", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		sum, err := seed.Apply(ctx, store, file, time.Now())
		if err != nil {
			log.Error("apply seed file", "path", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		log.Info("seed applied",
			"feeds_added", sum.FeedsAdded,
			"queries_added", sum.QueriesAdded,
			"queries_updated", sum.QueriesUpdated,
		)
	}

	f := fetcher.New(&http.Client{})
	f.SetTimeout(cfg.FetchTimeout)

	m := matcher.New(f, store, log)
	m.SetConcurrency(cfg.SweepConcurrency)

	if cfg.Headless() {
		sched := scheduler.New(m, &logNotifier{log: log}, log)
		sched.SetTickInterval(cfg.SweepInterval)

		log.Info("starting headless", "interval", cfg.SweepInterval)
		sched.Run(ctx)
		log.Info("stopped")
		return
	}

	b, err := bot.New(cfg.TelegramBotToken, store, f, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(m, b, log)
	sched.SetTickInterval(cfg.SweepInterval)
	b.SetChecker(sched)

	log.Info("starting bot", "interval", cfg.SweepInterval)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}
