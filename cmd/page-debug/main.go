package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"

	"github.com/maltedev/channel-catalog-scraper/internal/browser"
	"github.com/maltedev/channel-catalog-scraper/internal/config"
	"github.com/maltedev/channel-catalog-scraper/internal/logger"
	"github.com/maltedev/channel-catalog-scraper/internal/scraper"
)

// page-debug loads one listing page the way a crawl does and reports which
// locators still match, so layout changes can be diagnosed without a full run.
func main() {
	var (
		url        = flag.String("url", "", "Listing URL to debug, e.g. https://www.youtube.com/@creator/videos")
		screenshot = flag.String("screenshot", "debug.png", "Screenshot filename")
		html       = flag.String("html", "debug.html", "HTML output filename")
		headless   = flag.Bool("headless", false, "Run browser in headless mode")
	)
	flag.Parse()

	if *url == "" {
		fmt.Println("Please provide a URL with -url")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, "text")
	slog.SetDefault(logger)
	logger.Info("starting debug mode", "url", *url)

	opts := browser.DefaultOptions()
	opts.Headless = *headless
	opts.ProxyServer = cfg.Browser.ProxyServer

	b, err := browser.New(opts, browser.DefaultPolicy())
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	settings := scraper.DefaultSettings()
	page := b.Page()

	if err := page.Goto(*url, settings.NavigationTimeout); err != nil {
		logger.Error("failed to navigate", "error", err)
		os.Exit(1)
	}
	if dismissed, err := page.DismissConsent(settings.ConsentTimeout); err != nil {
		logger.Warn("consent handling failed", "error", err)
	} else if dismissed {
		logger.Info("consent overlay dismissed")
	}
	if err := page.WaitForContent(scraper.ContentSelector, settings.ContentTimeout); err != nil {
		logger.Warn("no content tiles appeared", "error", err)
	}

	if err := page.Screenshot(*screenshot); err != nil {
		logger.Error("failed to take screenshot", "error", err)
	} else {
		logger.Info("screenshot saved", "file", *screenshot)
	}

	content, err := page.Content()
	if err != nil {
		logger.Error("failed to get content", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*html, []byte(content), 0o644); err != nil {
		logger.Error("failed to save HTML", "error", err)
	} else {
		logger.Info("HTML saved", "file", *html)
	}

	title, _ := page.Title()
	logger.Info("page loaded", "title", title, "final_url", page.URL(), "user_agent", b.UserAgent())

	tiles, report, err := scraper.InspectLocators(content, scraper.DefaultFieldLocators())
	if err != nil {
		logger.Error("failed to parse content", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\n%d content tiles\n", tiles)
	for _, field := range report {
		names := make([]string, 0, len(field.Hits))
		for name := range field.Hits {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Printf("\n%s (missing in %d)\n", field.Field, field.Missing)
		for _, name := range names {
			fmt.Printf("  %-32s %d\n", name, field.Hits[name])
		}
	}
}
