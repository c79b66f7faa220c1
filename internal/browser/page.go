package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ConsentSelector matches the "Accept all" button of the cookie overlay.
const ConsentSelector = `button[aria-label="Accept all"], button:has-text("Accept all")`

// PageMetrics are the two growth signals sampled after each scroll round.
type PageMetrics struct {
	Height    int
	ItemCount int
}

// Page drives the session's tab. Every method maps to one round trip into
// the page; only primitive values cross back.
type Page struct {
	page   playwright.Page
	logger *slog.Logger
}

func newPage(page playwright.Page, logger *slog.Logger) *Page {
	return &Page{page: page, logger: logger}
}

func (p *Page) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// DismissConsent clicks the consent button if it shows up within timeout.
// It reports false without error when no overlay appears.
func (p *Page) DismissConsent(timeout time.Duration) (bool, error) {
	button := p.page.Locator(ConsentSelector).First()

	err := button.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return false, nil
	}

	if err := button.Click(); err != nil {
		return false, fmt.Errorf("failed to click consent button: %w", err)
	}
	return true, nil
}

func (p *Page) WaitForContent(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to wait for %q: %w", selector, err)
	}
	return nil
}

// ScrollBy scrolls down by the given fraction of the viewport height.
func (p *Page) ScrollBy(viewportFraction float64) error {
	_, err := p.page.Evaluate(`(fraction) => { window.scrollBy(0, window.innerHeight * fraction); }`, viewportFraction)
	if err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (p *Page) Measure(selector string) (PageMetrics, error) {
	result, err := p.page.Evaluate(`(selector) => ({
		height: document.body.scrollHeight,
		count: document.querySelectorAll(selector).length
	})`, selector)
	if err != nil {
		return PageMetrics{}, fmt.Errorf("failed to measure page: %w", err)
	}

	values, ok := result.(map[string]interface{})
	if !ok {
		return PageMetrics{}, fmt.Errorf("unexpected measure result %T", result)
	}

	return PageMetrics{
		Height:    toInt(values["height"]),
		ItemCount: toInt(values["count"]),
	}, nil
}

// Content returns the serialized DOM of the rendered page.
func (p *Page) Content() (string, error) {
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

func (p *Page) URL() string {
	return p.page.URL()
}

func (p *Page) Title() (string, error) {
	return p.page.Title()
}

// Screenshot saves a full-page PNG to path.
func (p *Page) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}
	return nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
