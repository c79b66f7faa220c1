package scraper

import "github.com/maltedev/channel-catalog-scraper/internal/models"

// StreamSignals are the in-page hints available for a streams-listing tile.
type StreamSignals struct {
	LiveBadge bool
	Duration  string
}

// ClassifyStream infers the type of a streams-listing tile. The listing
// carries no explicit flag, so a tile without a live badge and without a
// rendered duration is taken to be a scheduled broadcast. A stream that has
// just gone live but not yet rendered its badge lands in upcoming.
func ClassifyStream(s StreamSignals) models.ItemType {
	switch {
	case s.LiveBadge:
		return models.ItemTypeLivestream
	case s.Duration == "":
		return models.ItemTypeUpcoming
	default:
		return models.ItemTypeVideo
	}
}
