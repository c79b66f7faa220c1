package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/browser"
	"github.com/maltedev/channel-catalog-scraper/internal/config"
	"github.com/maltedev/channel-catalog-scraper/internal/logger"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
	"github.com/maltedev/channel-catalog-scraper/internal/scraper"
	"github.com/maltedev/channel-catalog-scraper/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		channelURL = flag.String("url", "", "Channel URL, e.g. https://www.youtube.com/@creator")
		maxItems   = flag.Int("max", 10000, "Maximum number of catalog entries")
		headless   = flag.Bool("headless", false, "Run browser in headless mode")
		videos     = flag.Bool("videos", cfg.Scraper.IncludeVideos, "Crawl the videos listing (default from SCRAPER_INCLUDE_VIDEOS)")
		streams    = flag.Bool("streams", cfg.Scraper.IncludeLivestreams, "Crawl the streams listing (default from SCRAPER_INCLUDE_LIVESTREAMS)")
		output     = flag.String("out", "", "Output file (default youtube_content_<ms>.json)")
		timeout    = flag.Duration("timeout", 0, "Abort the crawl after this long, keeping what was found")
	)
	flag.Parse()

	if *channelURL == "" {
		fmt.Fprintln(os.Stderr, "usage: channel-scraper -url https://www.youtube.com/@creator [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := scraper.ValidateChannelURL(*channelURL); err != nil {
		log.Fatalf("Invalid channel: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if !*videos && !*streams {
		log.Fatal("Nothing to crawl: enable -videos or -streams")
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	logger.Info("starting channel scraper", "url", *channelURL, "max_items", *maxItems)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, finishing with partial results")
		cancel()
	}()

	if *timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, *timeout)
		defer timeoutCancel()
	}

	policy := browser.DefaultPolicy()
	if len(cfg.Scraper.UserAgents) > 0 {
		policy.UserAgents = cfg.Scraper.UserAgents
	}

	settings := scraper.DefaultSettings()
	settings.NavigationTimeout = cfg.Scraper.NavigationTimeout
	settings.ContentTimeout = cfg.Scraper.ContentTimeout
	settings.MaxStagnantAttempts = cfg.Scraper.MaxStagnantAttempts

	opener := scraper.PlaywrightOpener{
		Options: browserOptions(cfg),
		Policy:  policy,
	}
	s := scraper.NewChannelScraper(opener, policy, settings, logger)

	start := time.Now()
	items, err := s.ScrapeChannel(ctx, scraper.ChannelOptions{
		ChannelURL:         *channelURL,
		MaxItems:           *maxItems,
		Headless:           *headless,
		IncludeVideos:      *videos,
		IncludeLivestreams: *streams,
	})
	if err != nil && len(items) == 0 {
		logger.Error("crawl failed", "error", err)
		os.Exit(1)
	}
	if err != nil {
		logger.Warn("crawl interrupted, writing partial catalog", "error", err)
	}

	path := *output
	if path == "" {
		path = storage.DefaultCatalogName(time.Now())
	}
	if err := storage.WriteCatalog(path, items); err != nil {
		logger.Error("failed to write catalog", "path", path, "error", err)
		os.Exit(1)
	}

	counts := models.CountByType(items)
	logger.Info("catalog written",
		"path", path,
		"items", len(items),
		"videos", counts[models.ItemTypeVideo],
		"livestreams", counts[models.ItemTypeLivestream],
		"upcoming", counts[models.ItemTypeUpcoming],
		"duration", time.Since(start).Round(time.Second))
}

func browserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	return opts
}
