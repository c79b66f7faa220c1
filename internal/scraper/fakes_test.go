package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/browser"
)

// fakePage replays scripted responses for the browser tab.
type fakePage struct {
	gotoErrs     map[string]error
	contentErrs  map[string]error
	htmlByURL    map[string]string
	consentShown bool
	metrics      []browser.PageMetrics
	measureErr   error
	panicOnHTML  bool

	current      string
	visited      []string
	consentCalls int
	scrolls      int
	measures     int
}

func newFakePage() *fakePage {
	return &fakePage{
		gotoErrs:    make(map[string]error),
		contentErrs: make(map[string]error),
		htmlByURL:   make(map[string]string),
	}
}

func (p *fakePage) Goto(url string, timeout time.Duration) error {
	p.visited = append(p.visited, url)
	if err := p.gotoErrs[url]; err != nil {
		return err
	}
	p.current = url
	return nil
}

func (p *fakePage) DismissConsent(timeout time.Duration) (bool, error) {
	p.consentCalls++
	return p.consentShown, nil
}

func (p *fakePage) WaitForContent(selector string, timeout time.Duration) error {
	return p.contentErrs[p.current]
}

func (p *fakePage) ScrollBy(viewportFraction float64) error {
	p.scrolls++
	return nil
}

// Measure walks through the scripted metrics and then repeats the last one.
func (p *fakePage) Measure(selector string) (browser.PageMetrics, error) {
	if p.measureErr != nil {
		return browser.PageMetrics{}, p.measureErr
	}
	i := p.measures
	p.measures++
	if len(p.metrics) == 0 {
		return browser.PageMetrics{Height: 1000, ItemCount: 10}, nil
	}
	if i >= len(p.metrics) {
		i = len(p.metrics) - 1
	}
	return p.metrics[i], nil
}

func (p *fakePage) Content() (string, error) {
	if p.panicOnHTML {
		panic("renderer crashed")
	}
	html, ok := p.htmlByURL[p.current]
	if !ok {
		return "", errors.New("no content scripted")
	}
	return html, nil
}

func (p *fakePage) URL() string {
	return p.current
}

type fakeSession struct {
	page   *fakePage
	closed int
}

func (s *fakeSession) Page() Page {
	return s.page
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeOpener struct {
	session  *fakeSession
	err      error
	headless []bool
}

func (o *fakeOpener) Open(headless bool) (Session, error) {
	o.headless = append(o.headless, headless)
	if o.err != nil {
		return nil, o.err
	}
	return o.session, nil
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func constantMetrics(height, count int) []browser.PageMetrics {
	return []browser.PageMetrics{{Height: height, ItemCount: count}}
}

// Fixture builders for listing tiles.

func listingPage(tiles ...string) string {
	return "<html><body><div id=\"contents\">" + strings.Join(tiles, "\n") + "</div></body></html>"
}

func videoTile(id string) string {
	return fmt.Sprintf(`<ytd-rich-item-renderer>
	<ytd-thumbnail>
		<yt-image><img src="https://i.ytimg.com/vi/%[1]s/hqdefault.jpg?sqp=abc"></yt-image>
		<div class="ytd-thumbnail-overlay-time-status-renderer"><span id="text">12:34</span></div>
	</ytd-thumbnail>
	<a id="video-title-link" href="/watch?v=%[1]s&pp=tracking" title="Video %[1]s">Video %[1]s</a>
	<ytd-video-meta-block>
		<div id="metadata-line"><span>1.2K views</span><span>3 days ago</span></div>
	</ytd-video-meta-block>
</ytd-rich-item-renderer>`, id)
}

func gridVideoTile(id string) string {
	return fmt.Sprintf(`<ytd-grid-video-renderer>
	<img id="img" data-src="https://i.ytimg.com/vi/%[1]s/mqdefault.jpg">
	<div class="ytd-thumbnail-overlay-time-status-renderer"> 4:05 </div>
	<a id="video-title" href="https://www.youtube.com/watch?v=%[1]s">  Grid %[1]s  </a>
	<div id="metadata-line"><span>99 views</span><span>1 year ago</span></div>
</ytd-grid-video-renderer>`, id)
}

func liveTile(id string) string {
	return fmt.Sprintf(`<ytd-grid-stream-renderer>
	<div class="style-scope ytd-grid-stream-renderer">
		<span class="ytd-thumbnail-overlay-time-status-renderer" aria-label="LIVE NOW">LIVE</span>
		<a id="video-title" href="/watch?v=%[1]s" title="Live %[1]s">Live %[1]s</a>
		<div class="ytd-video-meta-block"><span>1,234 watching</span></div>
	</div>
</ytd-grid-stream-renderer>`, id)
}

func pastStreamTile(id string) string {
	return fmt.Sprintf(`<ytd-rich-item-renderer>
	<div class="ytd-thumbnail-overlay-time-status-renderer"><span id="text">1:02:03</span></div>
	<a id="video-title-link" href="/watch?v=%[1]s" title="Stream %[1]s">Stream %[1]s</a>
	<ytd-video-meta-block>
		<div id="metadata-line"><span>10K views</span><span>Streamed 2 days ago</span></div>
	</ytd-video-meta-block>
</ytd-rich-item-renderer>`, id)
}

func upcomingTile(id string) string {
	return fmt.Sprintf(`<ytd-rich-item-renderer>
	<a id="video-title-link" href="/watch?v=%[1]s" title="Upcoming %[1]s">Upcoming %[1]s</a>
	<div id="metadata-line"><span>Scheduled for 10/20/26, 7:00 PM</span></div>
</ytd-rich-item-renderer>`, id)
}
