package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/maltedev/channel-catalog-scraper/internal/config"
	"github.com/maltedev/channel-catalog-scraper/internal/downloader"
	"github.com/maltedev/channel-catalog-scraper/internal/logger"
	"github.com/maltedev/channel-catalog-scraper/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		outDir = flag.String("out", cfg.Downloader.OutputDir, "Directory for extracted audio")
		binary = flag.String("bin", cfg.Downloader.Binary, "yt-dlp executable")
		delay  = flag.Duration("delay", cfg.Downloader.Delay, "Pause between downloads")
		resume = flag.Bool("resume", true, "Skip entries already downloaded in a previous run")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: audio-downloader [flags] <catalog.json>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	items, err := storage.ReadCatalog(flag.Arg(0))
	if err != nil {
		logger.Error("failed to read catalog", "path", flag.Arg(0), "error", err)
		os.Exit(1)
	}
	logger.Info("catalog loaded", "path", flag.Arg(0), "items", len(items))

	var ledger *storage.Ledger
	if *resume {
		ledger, err = storage.NewLedger(filepath.Join(*outDir, "downloads.json"))
		if err != nil {
			logger.Error("failed to open download ledger", "error", err)
			os.Exit(1)
		}
	}

	d, err := downloader.New(downloader.Options{
		Binary:    *binary,
		OutputDir: *outDir,
		Delay:     *delay,
	}, downloader.ExecRunner{}, ledger, logger)
	if err != nil {
		logger.Error("failed to initialize downloader", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	summary, err := d.ProcessAll(ctx, items)
	if ledger != nil {
		stats := ledger.Stats()
		logger.Info("download ledger",
			"completed", stats[storage.StatusCompleted],
			"failed", stats[storage.StatusFailed],
			"total", stats["total"])
	}
	if err != nil {
		logger.Warn("download batch interrupted", "error", err,
			"downloaded", summary.Downloaded, "failed", summary.Failed)
		os.Exit(1)
	}

	for _, f := range summary.Failures {
		fmt.Fprintf(os.Stderr, "failed: %s (%s): %v\n", f.Title, f.URL, f.Err)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
