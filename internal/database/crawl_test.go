package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string) *CrawlJob {
	return &CrawlJob{
		ID:                 id,
		ChannelURL:         "https://www.youtube.com/@creator",
		MaxItems:           100,
		IncludeVideos:      true,
		IncludeLivestreams: true,
		Status:             JobStatusPending,
		CreatedAt:          time.Now(),
	}
}

func TestCrawlRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewCrawlRepository(db)
	require.NoError(t, repo.CreateJob(ctx, newJob("job-1")))

	require.NoError(t, repo.MarkRunning(ctx, "job-1"))
	job, err := repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	items := []models.ScrapedItem{
		{URL: "https://www.youtube.com/watch?v=b", Title: "B", Type: models.ItemTypeVideo, Duration: "1:00"},
		{URL: "https://www.youtube.com/watch?v=a", Title: "A", Type: models.ItemTypeLivestream, IsLive: true},
	}
	event := &OutboxEvent{
		AggregateType: "crawl_job",
		AggregateID:   "job-1",
		EventType:     "CRAWL_COMPLETED",
		Payload:       json.RawMessage(`{"job_id":"job-1"}`),
	}
	require.NoError(t, repo.CompleteJob(ctx, "job-1", items, event))

	job, err = repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.ItemCount)

	stored, err := repo.GetItems(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, items, stored, "items keep discovery order")

	pending, err := NewOutboxRepository(db).GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "job-1", pending[0].AggregateID)
}

func TestCrawlRepository_Errors(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewCrawlRepository(db)

	_, err := repo.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, repo.MarkRunning(ctx, "missing"), ErrJobNotFound)

	require.NoError(t, repo.CreateJob(ctx, newJob("job-2")))
	require.NoError(t, repo.MarkFailed(ctx, "job-2", assert.AnError))

	jobs, err := repo.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, JobStatusFailed, jobs[0].Status)
	assert.Equal(t, assert.AnError.Error(), jobs[0].Error)
}
