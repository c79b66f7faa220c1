package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Locator is one way of finding a field inside a content tile.
type Locator struct {
	Name     string
	Selector string
}

// LocatorChain is tried in order; the first locator that matches an element
// decides the field, even when that element's text is empty.
type LocatorChain []Locator

// Find returns the first element matched by any locator in the chain.
func (c LocatorChain) Find(s *goquery.Selection) (*goquery.Selection, *Locator) {
	for i := range c {
		found := s.Find(c[i].Selector).First()
		if found.Length() > 0 {
			return found, &c[i]
		}
	}
	return nil, nil
}

// Text returns the trimmed text of the first match, or "" when nothing matches.
func (c LocatorChain) Text(s *goquery.Selection) string {
	found, _ := c.Find(s)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.Text())
}

// Present reports whether any locator in the chain matches.
func (c LocatorChain) Present(s *goquery.Selection) bool {
	found, _ := c.Find(s)
	return found != nil
}

// FieldLocators groups the chains for every field of a tile. Layout variants
// differ in where the metadata sits, so most chains carry alternatives.
type FieldLocators struct {
	Anchor            LocatorChain
	Thumbnail         LocatorChain
	Duration          LocatorChain
	Views             LocatorChain
	UploadDate        LocatorChain
	LiveBadge         LocatorChain
	ConcurrentViewers LocatorChain
	ScheduledStart    LocatorChain
}

func DefaultFieldLocators() FieldLocators {
	return FieldLocators{
		Anchor: LocatorChain{
			{Name: "rich-item title link", Selector: "a#video-title-link"},
			{Name: "grid title link", Selector: "a#video-title"},
		},
		Thumbnail: LocatorChain{
			{Name: "yt-image", Selector: "yt-image img"},
			{Name: "img#img", Selector: "img#img"},
		},
		Duration: LocatorChain{
			{Name: "overlay text", Selector: "span#text"},
			{Name: "time status overlay", Selector: ".ytd-thumbnail-overlay-time-status-renderer"},
		},
		Views: LocatorChain{
			{Name: "meta block", Selector: "ytd-video-meta-block span"},
			{Name: "metadata line first", Selector: "#metadata-line span:nth-child(1)"},
		},
		UploadDate: LocatorChain{
			{Name: "metadata line second", Selector: "#metadata-line span:nth-child(2)"},
			{Name: "metadata line second of type", Selector: "div#metadata-line > span:nth-of-type(2)"},
			{Name: "meta block second", Selector: "ytd-video-meta-block span:nth-child(2)"},
		},
		LiveBadge: LocatorChain{
			{Name: "live now label", Selector: ".ytd-thumbnail-overlay-time-status-renderer[aria-label='LIVE NOW']"},
			{Name: "live overlay style", Selector: "ytd-thumbnail-overlay-time-status-renderer[overlay-style='LIVE']"},
		},
		ConcurrentViewers: LocatorChain{
			{Name: "stream meta block", Selector: ".ytd-grid-stream-renderer .ytd-video-meta-block span"},
			{Name: "metadata line first", Selector: "#metadata-line span:nth-child(1)"},
		},
		ScheduledStart: LocatorChain{
			{Name: "stream meta block", Selector: ".ytd-grid-stream-renderer .ytd-video-meta-block span"},
			{Name: "metadata line first", Selector: "#metadata-line span:nth-child(1)"},
		},
	}
}

// LocatorHits counts, for one field, how many tiles each locator of its
// chain decided. Tiles where nothing matched are counted under Missing.
type LocatorHits struct {
	Field   string
	Hits    map[string]int
	Missing int
}

// InspectLocators reports which locator wins for every field of every tile
// in html. It is used to spot layout changes that silently empty a field.
func InspectLocators(html string, locators FieldLocators) (tiles int, report []LocatorHits, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, nil, err
	}

	fields := []struct {
		name  string
		chain LocatorChain
	}{
		{"anchor", locators.Anchor},
		{"thumbnail", locators.Thumbnail},
		{"duration", locators.Duration},
		{"views", locators.Views},
		{"upload_date", locators.UploadDate},
		{"live_badge", locators.LiveBadge},
		{"concurrent_viewers", locators.ConcurrentViewers},
		{"scheduled_start", locators.ScheduledStart},
	}

	report = make([]LocatorHits, len(fields))
	for i, f := range fields {
		report[i] = LocatorHits{Field: f.name, Hits: make(map[string]int)}
	}

	doc.Find(ContentSelector).Each(func(_ int, el *goquery.Selection) {
		tiles++
		for i, f := range fields {
			if _, loc := f.chain.Find(el); loc != nil {
				report[i].Hits[loc.Name]++
			} else {
				report[i].Missing++
			}
		}
	})

	return tiles, report, nil
}
