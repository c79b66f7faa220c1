package scraper

import (
	"net/url"
	"strings"

	"github.com/maltedev/channel-catalog-scraper/internal/models"
)

// shortFormPrefixes are paths that address a single video outside /watch.
var shortFormPrefixes = []string{"/shorts/", "/live/"}

// Canonicalize reduces a video link to its identity: everything after the
// first '&' is dropped, short-form links become /watch?v=<id> and the share
// tracking parameter is removed. A watch link whose v parameter is not first
// is rebuilt around v.
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '&'); i >= 0 {
		s = s[:i]
	}
	s = rewriteShortForm(s)
	if i := strings.Index(s, "?si="); i >= 0 {
		s = s[:i]
	}
	if !IsContentURL(s) {
		if rebuilt, ok := watchLink(strings.TrimSpace(raw)); ok {
			return rebuilt
		}
	}
	return s
}

func watchLink(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Path != "/watch" || !isYouTubeHost(u.Host) {
		return "", false
	}
	id := u.Query().Get("v")
	if id == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host + "/watch?v=" + url.QueryEscape(id), true
}

func rewriteShortForm(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}

	id := shortFormID(u)
	if id == "" {
		return s
	}

	host := u.Host
	if isShortHost(host) {
		host = "www.youtube.com"
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + host + "/watch?v=" + id
}

// shortFormID extracts the video ID from youtu.be/<id>, /shorts/<id> and
// /live/<id> links.
func shortFormID(u *url.URL) string {
	var rest string
	switch {
	case isShortHost(u.Host):
		rest = u.Path
	case isYouTubeHost(u.Host):
		for _, prefix := range shortFormPrefixes {
			if after, ok := strings.CutPrefix(u.Path, prefix); ok {
				rest = after
				break
			}
		}
	}

	id := strings.Trim(rest, "/")
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}

func isShortHost(host string) bool {
	return strings.EqualFold(host, "youtu.be") || strings.EqualFold(host, "www.youtu.be")
}

func isYouTubeHost(host string) bool {
	host = strings.ToLower(host)
	return host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// IsContentURL reports whether raw points at a single video rather than a
// channel, playlist or other listing.
func IsContentURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if !isYouTubeHost(u.Host) && !isShortHost(u.Host) {
		return false
	}
	if u.Path == "/watch" {
		return u.Query().Get("v") != ""
	}
	return shortFormID(u) != ""
}

// Deduplicate keeps the first item seen for each URL, preserving order.
func Deduplicate(items []models.ScrapedItem) []models.ScrapedItem {
	seen := make(map[string]bool, len(items))
	unique := make([]models.ScrapedItem, 0, len(items))

	for _, item := range items {
		if seen[item.URL] {
			continue
		}
		seen[item.URL] = true
		unique = append(unique, item)
	}
	return unique
}

// Finalize canonicalizes every URL, drops items that no longer address a
// single video, collapses duplicates in discovery order and caps the result
// at maxItems. The input slice is left untouched.
func Finalize(raw []models.ScrapedItem, maxItems int) []models.ScrapedItem {
	cleaned := make([]models.ScrapedItem, 0, len(raw))
	for _, item := range raw {
		item.URL = Canonicalize(item.URL)
		if !IsContentURL(item.URL) {
			continue
		}
		cleaned = append(cleaned, item)
	}

	unique := Deduplicate(cleaned)
	if maxItems < 0 {
		maxItems = 0
	}
	if len(unique) > maxItems {
		unique = unique[:maxItems]
	}
	return unique
}
