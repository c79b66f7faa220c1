package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/channel-catalog-scraper/internal/browser"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
)

type ChannelOptions struct {
	ChannelURL         string
	MaxItems           int
	Headless           bool
	IncludeLivestreams bool
	IncludeVideos      bool
}

// ChannelScraper runs one crawl per call: one session, targets visited
// strictly one after another on the same tab.
type ChannelScraper struct {
	opener    SessionOpener
	paginator *Paginator
	extractor *Extractor
	logger    *slog.Logger
}

func NewChannelScraper(opener SessionOpener, policy *browser.Policy, settings Settings, logger *slog.Logger) *ChannelScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelScraper{
		opener:    opener,
		paginator: NewPaginator(policy, settings, logger),
		extractor: NewExtractor(logger),
		logger:    logger.With("component", "channel_scraper"),
	}
}

// ScrapeChannel returns the deduplicated catalog of a channel, capped at
// opts.MaxItems. Only a failed session launch or a done ctx is returned as an
// error; failing targets and elements just contribute fewer items.
func (s *ChannelScraper) ScrapeChannel(ctx context.Context, opts ChannelOptions) ([]models.ScrapedItem, error) {
	targets := ChannelTargets(opts.ChannelURL, opts.IncludeVideos, opts.IncludeLivestreams)
	s.logger.Info("scraping channel",
		"channel", opts.ChannelURL,
		"targets", len(targets),
		"max_items", opts.MaxItems)

	session, err := s.opener.Open(opts.Headless)
	if err != nil {
		if !errors.Is(err, ErrSessionLaunch) {
			err = fmt.Errorf("%w: %v", ErrSessionLaunch, err)
		}
		return nil, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			s.logger.Error("failed to close browser session", "error", closeErr)
		}
	}()

	page := session.Page()
	var raw []models.ScrapedItem

	for i, target := range targets {
		collected := len(Finalize(raw, opts.MaxItems))
		if collected >= opts.MaxItems {
			s.logger.Info("item budget reached, skipping target", "target", target.Kind, "items", collected)
			continue
		}

		found, err := s.scrapeTarget(ctx, page, target, i == 0, opts.MaxItems-collected)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Finalize(raw, opts.MaxItems), ctxErr
			}
			s.logger.Warn("skipping target", "target", target.Kind, "url", target.URL, "error", err)
			continue
		}
		raw = append(raw, found...)
	}

	items := Finalize(raw, opts.MaxItems)
	s.logger.Info("channel scraped", "channel", opts.ChannelURL, "raw", len(raw), "items", len(items))
	return items, nil
}

func (s *ChannelScraper) scrapeTarget(ctx context.Context, page Page, target Target, first bool, remaining int) ([]models.ScrapedItem, error) {
	if _, err := s.paginator.LoadAndScroll(ctx, page, target, first, remaining); err != nil {
		return nil, err
	}

	html, err := page.Content()
	if err != nil {
		return nil, err
	}

	baseURL := page.URL()
	if baseURL == "" || baseURL == "about:blank" {
		baseURL = target.URL
	}
	return s.extractor.Extract(html, baseURL, target.Kind)
}
