package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/browser"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
)

var (
	// ErrSessionLaunch aborts the whole crawl.
	ErrSessionLaunch = errors.New("browser session failed to launch")
	// ErrNavigation skips one target.
	ErrNavigation = errors.New("navigation failed")
	// ErrContentNotFound skips one target.
	ErrContentNotFound = errors.New("no content appeared")
	// ErrElementExtraction skips one element.
	ErrElementExtraction = errors.New("element extraction failed")
	// ErrInvalidChannel rejects a crawl before any browser is started.
	ErrInvalidChannel = errors.New("invalid channel URL")
)

// ContentSelector matches the three tile variants a channel listing renders.
const ContentSelector = "ytd-rich-item-renderer, ytd-grid-video-renderer, ytd-grid-stream-renderer"

// Page is the slice of a browser tab the crawl needs.
type Page interface {
	Goto(url string, timeout time.Duration) error
	DismissConsent(timeout time.Duration) (bool, error)
	WaitForContent(selector string, timeout time.Duration) error
	ScrollBy(viewportFraction float64) error
	Measure(selector string) (browser.PageMetrics, error)
	Content() (string, error)
	URL() string
}

// Session owns one browser process and its tab. Close must be called on
// every exit path.
type Session interface {
	Page() Page
	Close() error
}

type SessionOpener interface {
	Open(headless bool) (Session, error)
}

// Target is one listing page visited during a crawl.
type Target struct {
	Kind models.TargetKind
	URL  string
}

// ValidateChannelURL accepts absolute http(s) links on youtube.com.
func ValidateChannelURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChannel, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q is not an http(s) link", ErrInvalidChannel, raw)
	}
	if !isYouTubeHost(u.Hostname()) {
		return fmt.Errorf("%w: %q is not on youtube.com", ErrInvalidChannel, raw)
	}
	return nil
}

// ChannelTargets builds the listing URLs for a channel, videos first.
func ChannelTargets(channelURL string, includeVideos, includeStreams bool) []Target {
	base := strings.TrimSuffix(strings.TrimSpace(channelURL), "/")

	var targets []Target
	if includeVideos {
		targets = append(targets, Target{Kind: models.TargetVideos, URL: base + "/videos"})
	}
	if includeStreams {
		targets = append(targets, Target{Kind: models.TargetStreams, URL: base + "/streams"})
	}
	return targets
}

// Settings are the fixed budgets of the pagination phase.
type Settings struct {
	NavigationTimeout   time.Duration
	ConsentTimeout      time.Duration
	ContentTimeout      time.Duration
	MaxStagnantAttempts int
	ScrollSteps         int
	ScrollFraction      float64
}

func DefaultSettings() Settings {
	return Settings{
		NavigationTimeout:   60 * time.Second,
		ConsentTimeout:      5 * time.Second,
		ContentTimeout:      10 * time.Second,
		MaxStagnantAttempts: 5,
		ScrollSteps:         3,
		ScrollFraction:      0.8,
	}
}

// PlaywrightOpener opens real browser sessions.
type PlaywrightOpener struct {
	Options *browser.Options
	Policy  *browser.Policy
}

func (o PlaywrightOpener) Open(headless bool) (Session, error) {
	opts := browser.DefaultOptions()
	if o.Options != nil {
		copied := *o.Options
		opts = &copied
	}
	opts.Headless = headless

	b, err := browser.New(opts, o.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionLaunch, err)
	}
	return &playwrightSession{browser: b}, nil
}

type playwrightSession struct {
	browser *browser.Browser
}

func (s *playwrightSession) Page() Page {
	return s.browser.Page()
}

func (s *playwrightSession) Close() error {
	return s.browser.Close()
}
