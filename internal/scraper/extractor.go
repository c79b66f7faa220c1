package scraper

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
)

// thumbnailUpgrades rewrites low-resolution thumbnail names to the largest variant.
var thumbnailUpgrades = strings.NewReplacer(
	"hqdefault", "maxresdefault",
	"mqdefault", "maxresdefault",
)

// Extractor turns a fully scrolled listing into catalog entries. It works on
// a serialized DOM snapshot and never touches the live page.
type Extractor struct {
	locators FieldLocators
	logger   *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return NewExtractorWithLocators(DefaultFieldLocators(), logger)
}

func NewExtractorWithLocators(locators FieldLocators, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		locators: locators,
		logger:   logger.With("component", "extractor"),
	}
}

// Extract returns one item per content tile in page order. Tiles without a
// title link are ignored, malformed tiles are logged and skipped, and links
// that do not point at a single video are dropped.
func (e *Extractor) Extract(html, baseURL string, kind models.TargetKind) ([]models.ScrapedItem, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		items     []models.ScrapedItem
		malformed int
		ignored   int
	)

	doc.Find(ContentSelector).Each(func(i int, el *goquery.Selection) {
		item, ok, err := e.extractElement(el, base, kind)
		switch {
		case err != nil:
			malformed++
			e.logger.Warn("skipping malformed element", "index", i, "target", kind, "error", err)
		case !ok || !IsContentURL(item.URL):
			ignored++
		default:
			items = append(items, item)
		}
	})

	e.logger.Info("extracted items",
		"target", kind,
		"items", len(items),
		"malformed", malformed,
		"ignored", ignored)

	return items, nil
}

func (e *Extractor) extractElement(el *goquery.Selection, base *url.URL, kind models.TargetKind) (item models.ScrapedItem, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrElementExtraction, r)
		}
	}()

	anchor, _ := e.locators.Anchor.Find(el)
	if anchor == nil {
		return item, false, nil
	}

	link, err := resolveLink(base, anchor.AttrOr("href", ""))
	if err != nil {
		return item, false, fmt.Errorf("%w: %v", ErrElementExtraction, err)
	}

	title := strings.TrimSpace(anchor.AttrOr("title", ""))
	if title == "" {
		title = strings.TrimSpace(anchor.Text())
	}

	item = models.NewScrapedItem(link, title)
	item.Thumbnail = e.thumbnail(el)

	if kind == models.TargetStreams {
		e.fillStreamFields(el, &item)
	} else {
		e.fillVideoFields(el, &item)
	}

	return item, true, nil
}

func (e *Extractor) fillVideoFields(el *goquery.Selection, item *models.ScrapedItem) {
	item.Duration = e.locators.Duration.Text(el)
	item.Views = e.locators.Views.Text(el)
	item.UploadDate = e.locators.UploadDate.Text(el)
}

func (e *Extractor) fillStreamFields(el *goquery.Selection, item *models.ScrapedItem) {
	signals := StreamSignals{LiveBadge: e.locators.LiveBadge.Present(el)}
	if !signals.LiveBadge {
		e.fillVideoFields(el, item)
		signals.Duration = item.Duration
	}

	item.Type = ClassifyStream(signals)
	item.IsLive = item.Type == models.ItemTypeLivestream

	switch item.Type {
	case models.ItemTypeLivestream:
		item.ConcurrentViewers = e.locators.ConcurrentViewers.Text(el)
	case models.ItemTypeUpcoming:
		item.ScheduledStartTime = e.locators.ScheduledStart.Text(el)
	}
}

func (e *Extractor) thumbnail(el *goquery.Selection) string {
	img, _ := e.locators.Thumbnail.Find(el)
	if img == nil {
		return ""
	}

	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" {
		src = strings.TrimSpace(img.AttrOr("data-src", ""))
	}
	return thumbnailUpgrades.Replace(src)
}

func resolveLink(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", nil
	}

	ref, err := base.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}
	return ref.String(), nil
}
