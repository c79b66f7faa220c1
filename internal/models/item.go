package models

// ItemType discriminates which optional fields of a ScrapedItem are meaningful.
type ItemType string

const (
	ItemTypeVideo      ItemType = "video"
	ItemTypeLivestream ItemType = "livestream"
	ItemTypeUpcoming   ItemType = "upcoming"
)

// TargetKind identifies which channel listing a page belongs to.
type TargetKind string

const (
	TargetVideos  TargetKind = "videos"
	TargetStreams TargetKind = "streams"
)

// ScrapedItem is one catalog entry. The JSON field names are the contract
// consumed by the audio downloader and must stay stable.
type ScrapedItem struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Type      ItemType `json:"type"`
	IsLive    bool     `json:"isLive"`

	// Set for videos and finished streams.
	Duration   string `json:"duration,omitempty"`
	Views      string `json:"views,omitempty"`
	UploadDate string `json:"uploadDate,omitempty"`

	// Set for live broadcasts.
	ConcurrentViewers string `json:"concurrentViewers,omitempty"`

	// Set for scheduled broadcasts.
	ScheduledStartTime string `json:"scheduledStartTime,omitempty"`
}

// NewScrapedItem returns the base record every extracted element starts from.
func NewScrapedItem(url, title string) ScrapedItem {
	return ScrapedItem{
		URL:   url,
		Title: title,
		Type:  ItemTypeVideo,
	}
}

// CountByType tallies items per type.
func CountByType(items []ScrapedItem) map[ItemType]int {
	counts := make(map[ItemType]int)
	for _, item := range items {
		counts[item.Type]++
	}
	return counts
}

func (i *ScrapedItem) Validate() []string {
	var errors []string

	if i.URL == "" {
		errors = append(errors, "URL is required")
	}

	switch i.Type {
	case ItemTypeVideo, ItemTypeUpcoming:
		if i.IsLive {
			errors = append(errors, "isLive must be false unless type is livestream")
		}
	case ItemTypeLivestream:
		if !i.IsLive {
			errors = append(errors, "isLive must be true for livestreams")
		}
	default:
		errors = append(errors, "unknown type: "+string(i.Type))
	}

	return errors
}
