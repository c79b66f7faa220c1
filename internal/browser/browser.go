package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// blockedResourceTypes are aborted by the request filter. Markup, scripts,
// stylesheets and data requests pass through.
var blockedResourceTypes = map[string]bool{
	"image": true,
	"font":  true,
	"media": true,
	"other": true,
}

// ShouldBlock reports whether a request of the given playwright resource
// type is dropped.
func ShouldBlock(resourceType string) bool {
	return blockedResourceTypes[resourceType]
}

// Browser is one live browser process with a single context and tab.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    *Page
	logger  *slog.Logger

	userAgent string
}

type Options struct {
	Headless       bool
	SlowMo         time.Duration
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		SlowMo:         80 * time.Millisecond,
		Timeout:        30 * time.Second,
		ViewportWidth:  1280,
		ViewportHeight: 900,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"DNT": "1",
		},
	}
}

// RequestHeaders returns the extra headers sent with every request.
// AcceptLanguage wins over an Accept-Language entry in ExtraHeaders.
func RequestHeaders(opts *Options) map[string]string {
	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}
	return headers
}

// LaunchArgs are the Chromium flags used for every session.
func LaunchArgs(opts *Options) []string {
	return []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-web-security",
		"--disable-features=IsolateOrigins,site-per-process",
		fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
	}
}

// New starts playwright, launches Chromium and opens the single tab a crawl
// works in. Everything started before a failure is torn down again.
func New(opts *Options, policy *Policy) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if policy == nil {
		policy = DefaultPolicy()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     LaunchArgs(opts),
	}
	if !opts.Headless && opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	userAgent := policy.UserAgent()
	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(userAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: RequestHeaders(opts),
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	b := &Browser{
		pw:        pw,
		browser:   browser,
		context:   context,
		logger:    slog.Default().With("component", "browser"),
		userAgent: userAgent,
	}

	if err := context.Route("**/*", b.filterRequest); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to install request filter: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
	b.page = newPage(page, b.logger)

	b.logger.Info("browser session opened",
		"headless", opts.Headless,
		"user_agent", userAgent,
		"viewport", fmt.Sprintf("%dx%d", opts.ViewportWidth, opts.ViewportHeight))

	return b, nil
}

func (b *Browser) filterRequest(route playwright.Route) {
	resourceType := route.Request().ResourceType()
	if ShouldBlock(resourceType) {
		if err := route.Abort(); err != nil {
			b.logger.Debug("failed to abort request", "type", resourceType, "error", err)
		}
		return
	}
	if err := route.Continue(); err != nil {
		b.logger.Debug("failed to continue request", "type", resourceType, "error", err)
	}
}

// Page returns the session's only tab.
func (b *Browser) Page() *Page {
	return b.page
}

func (b *Browser) UserAgent() string {
	return b.userAgent
}

// Close releases the tab, context, browser process and playwright driver.
func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	b.logger.Info("browser session closed")
	return nil
}
