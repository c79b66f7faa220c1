package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/maltedev/channel-catalog-scraper/internal/database"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrawlCompleted(t *testing.T) {
	items := []models.ScrapedItem{
		{URL: "a", Type: models.ItemTypeVideo},
		{URL: "b", Type: models.ItemTypeVideo},
		{URL: "c", Type: models.ItemTypeLivestream, IsLive: true},
		{URL: "d", Type: models.ItemTypeUpcoming},
	}

	event, err := CrawlCompleted("job-1", "https://www.youtube.com/@creator", items)
	require.NoError(t, err)

	assert.Equal(t, "crawl_job", event.AggregateType)
	assert.Equal(t, "job-1", event.AggregateID)
	assert.Equal(t, string(EventTypeCrawlCompleted), event.EventType)
	assert.Equal(t, database.CatalogStream, event.TargetStream)
	assert.NoError(t, event.Validate())

	var payload CrawlPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.NotEmpty(t, payload.EventID)
	assert.False(t, payload.Timestamp.IsZero())
	assert.Equal(t, "https://www.youtube.com/@creator", payload.ChannelURL)
	assert.Equal(t, 4, payload.ItemCount)
	assert.Equal(t, 2, payload.Videos)
	assert.Equal(t, 1, payload.Livestreams)
	assert.Equal(t, 1, payload.Upcoming)
	assert.Equal(t, "channel-scraper", payload.Source)
	assert.Empty(t, payload.Error)
}

func TestCrawlFailed(t *testing.T) {
	event, err := CrawlFailed("job-2", "https://www.youtube.com/@creator", errors.New("browser session failed to launch"))
	require.NoError(t, err)

	assert.Equal(t, string(EventTypeCrawlFailed), event.EventType)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "browser session failed to launch", payload["error"])
	assert.Equal(t, float64(0), payload["item_count"])
}

func TestEventIDsAreUnique(t *testing.T) {
	first, err := CrawlCompleted("job-1", "c", nil)
	require.NoError(t, err)
	second, err := CrawlCompleted("job-1", "c", nil)
	require.NoError(t, err)

	var a, b CrawlPayload
	require.NoError(t, json.Unmarshal(first.Payload, &a))
	require.NoError(t, json.Unmarshal(second.Payload, &b))
	assert.NotEqual(t, a.EventID, b.EventID)
}
