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

	"github.com/maltedev/channel-catalog-scraper/internal/api"
	"github.com/maltedev/channel-catalog-scraper/internal/browser"
	"github.com/maltedev/channel-catalog-scraper/internal/config"
	"github.com/maltedev/channel-catalog-scraper/internal/database"
	"github.com/maltedev/channel-catalog-scraper/internal/events"
	"github.com/maltedev/channel-catalog-scraper/internal/jobs"
	"github.com/maltedev/channel-catalog-scraper/internal/logger"
	"github.com/maltedev/channel-catalog-scraper/internal/queue"
	"github.com/maltedev/channel-catalog-scraper/internal/scraper"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to create schema", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Redis.PollInterval,
		BatchSize:    cfg.Redis.BatchSize,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	policy := browser.DefaultPolicy()
	if len(cfg.Scraper.UserAgents) > 0 {
		policy.UserAgents = cfg.Scraper.UserAgents
	}
	settings := scraper.DefaultSettings()
	settings.NavigationTimeout = cfg.Scraper.NavigationTimeout
	settings.ContentTimeout = cfg.Scraper.ContentTimeout
	settings.MaxStagnantAttempts = cfg.Scraper.MaxStagnantAttempts

	browserOpts := browser.DefaultOptions()
	browserOpts.Timeout = cfg.Browser.Timeout
	browserOpts.ViewportWidth = cfg.Browser.ViewportWidth
	browserOpts.ViewportHeight = cfg.Browser.ViewportHeight
	browserOpts.AcceptLanguage = cfg.Browser.AcceptLanguage
	browserOpts.TimezoneID = cfg.Browser.TimezoneID
	browserOpts.Locale = cfg.Browser.Locale
	browserOpts.ProxyServer = cfg.Browser.ProxyServer

	crawler := scraper.NewChannelScraper(
		scraper.PlaywrightOpener{Options: browserOpts, Policy: policy},
		policy, settings, logger)

	jobQueue := queue.NewInMemoryQueue(0)
	defer jobQueue.Close()

	jobManager := jobs.NewManager(
		database.NewCrawlRepository(db),
		crawler,
		events.NewPublisher(db, logger),
		jobQueue,
		jobs.Options{
			JobTimeout:         cfg.Scraper.JobTimeout,
			Headless:           cfg.Browser.Headless,
			DefaultMaxItems:    cfg.Scraper.MaxItems,
			IncludeVideos:      cfg.Scraper.IncludeVideos,
			IncludeLivestreams: cfg.Scraper.IncludeLivestreams,
		},
		logger)

	go jobManager.StartWorker(ctx)

	handlers := api.NewHandlers(jobManager, relay,
		rate.NewLimiter(rate.Limit(cfg.Server.CreateRate), cfg.Server.CreateBurst), logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, api.RouterConfig{RequestTimeout: cfg.Server.WriteTimeout}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
