package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/maltedev/channel-catalog-scraper/internal/config"
	"github.com/maltedev/channel-catalog-scraper/internal/consumer"
	"github.com/maltedev/channel-catalog-scraper/internal/database"
	"github.com/maltedev/channel-catalog-scraper/internal/downloader"
	"github.com/maltedev/channel-catalog-scraper/internal/logger"
	"github.com/maltedev/channel-catalog-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis", "addr", cfg.Redis.Addr)

	db, err := database.Connect(ctx, cfg.Database.DSN(), nil)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var audio consumer.AudioFetcher
	if cfg.Consumer.DownloadAudio {
		ledger, err := storage.NewLedger(filepath.Join(cfg.Downloader.OutputDir, "downloads.json"))
		if err != nil {
			logger.Error("failed to open download ledger", "error", err)
			os.Exit(1)
		}
		d, err := downloader.New(downloader.Options{
			Binary:    cfg.Downloader.Binary,
			OutputDir: cfg.Downloader.OutputDir,
			Delay:     cfg.Downloader.Delay,
		}, downloader.ExecRunner{}, ledger, logger)
		if err != nil {
			logger.Error("failed to initialize downloader", "error", err)
			os.Exit(1)
		}
		audio = d
	}

	c := consumer.New(rdb, database.NewCrawlRepository(db), audio, consumer.Config{
		Group:     cfg.Consumer.Group,
		Name:      cfg.Consumer.Name,
		ExportDir: cfg.Consumer.ExportDir,
		ClaimIdle: cfg.Consumer.ClaimIdle,
	}, logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down...")
		cancel()
	}()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
}
