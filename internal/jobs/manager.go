package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/channel-catalog-scraper/internal/database"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
	"github.com/maltedev/channel-catalog-scraper/internal/queue"
	"github.com/maltedev/channel-catalog-scraper/internal/scraper"
)

var (
	ErrInvalidRequest = errors.New("invalid crawl request")
	ErrJobNotFinished = errors.New("crawl job has not completed")
	ErrWorkerStopped  = errors.New("worker stopped before the job ran")
)

// Store persists jobs and catalogs. *database.CrawlRepository implements it.
type Store interface {
	CreateJob(ctx context.Context, job *database.CrawlJob) error
	GetJob(ctx context.Context, id string) (*database.CrawlJob, error)
	ListJobs(ctx context.Context, limit int) ([]*database.CrawlJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, jobErr error) error
	CompleteJob(ctx context.Context, id string, items []models.ScrapedItem, event *database.OutboxEvent) error
	GetItems(ctx context.Context, id string) ([]models.ScrapedItem, error)
}

// Crawler runs one channel crawl. *scraper.ChannelScraper implements it.
type Crawler interface {
	ScrapeChannel(ctx context.Context, opts scraper.ChannelOptions) ([]models.ScrapedItem, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event *database.OutboxEvent) error
}

// Options tunes the manager. IncludeVideos and IncludeLivestreams apply to
// requests that leave the matching field unset; with both false, both
// listings are crawled.
type Options struct {
	JobTimeout         time.Duration
	Headless           bool
	DefaultMaxItems    int
	IncludeVideos      bool
	IncludeLivestreams bool
	ListLimit          int
}

// Request is a crawl as submitted by a client. A nil include flag takes the
// manager's default.
type Request struct {
	ChannelURL         string
	MaxItems           int
	IncludeVideos      *bool
	IncludeLivestreams *bool
	Priority           int
}

// crawlTargets is a Request with its defaults applied.
type crawlTargets struct {
	videos  bool
	streams bool
}

func (r *Request) normalize(opts Options) (crawlTargets, error) {
	targets := crawlTargets{
		videos:  boolOr(r.IncludeVideos, opts.IncludeVideos),
		streams: boolOr(r.IncludeLivestreams, opts.IncludeLivestreams),
	}
	r.ChannelURL = strings.TrimSpace(r.ChannelURL)
	if err := scraper.ValidateChannelURL(r.ChannelURL); err != nil {
		return targets, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.MaxItems < 0 {
		return targets, fmt.Errorf("%w: max_items cannot be negative", ErrInvalidRequest)
	}
	if r.MaxItems == 0 {
		r.MaxItems = opts.DefaultMaxItems
	}
	if !targets.videos && !targets.streams {
		return targets, fmt.Errorf("%w: nothing to crawl, enable videos or livestreams", ErrInvalidRequest)
	}
	return targets, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Manager accepts crawl requests and hands them to a single worker, so at
// most one browser runs at a time.
type Manager struct {
	store     Store
	crawler   Crawler
	publisher EventPublisher
	queue     queue.Queue
	opts      Options
	logger    *slog.Logger
}

// NewManager wires the job pipeline. publisher may be nil, in which case
// failed crawls are only recorded on the job.
func NewManager(store Store, crawler Crawler, publisher EventPublisher, q queue.Queue, opts Options, logger *slog.Logger) *Manager {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}
	if opts.DefaultMaxItems <= 0 {
		opts.DefaultMaxItems = 1000
	}
	if !opts.IncludeVideos && !opts.IncludeLivestreams {
		opts.IncludeVideos, opts.IncludeLivestreams = true, true
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:     store,
		crawler:   crawler,
		publisher: publisher,
		queue:     q,
		opts:      opts,
		logger:    logger.With("component", "job_manager"),
	}
}

func (m *Manager) CreateJob(ctx context.Context, req Request) (*database.CrawlJob, error) {
	targets, err := req.normalize(m.opts)
	if err != nil {
		return nil, err
	}

	job := &database.CrawlJob{
		ID:                 uuid.New().String(),
		ChannelURL:         req.ChannelURL,
		MaxItems:           req.MaxItems,
		IncludeVideos:      targets.videos,
		IncludeLivestreams: targets.streams,
		Status:             database.JobStatusPending,
		CreatedAt:          time.Now(),
	}

	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if err := m.queue.Push(&queue.Task{JobID: job.ID, Priority: req.Priority, CreatedAt: job.CreatedAt}); err != nil {
		if markErr := m.store.MarkFailed(ctx, job.ID, err); markErr != nil {
			m.logger.Error("failed to mark unqueued job as failed", "id", job.ID, "error", markErr)
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "channel", job.ChannelURL, "max_items", job.MaxItems)
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (*database.CrawlJob, error) {
	return m.store.GetJob(ctx, id)
}

func (m *Manager) ListJobs(ctx context.Context) ([]*database.CrawlJob, error) {
	return m.store.ListJobs(ctx, m.opts.ListLimit)
}

// GetJobItems returns the catalog of a completed job.
func (m *Manager) GetJobItems(ctx context.Context, id string) ([]models.ScrapedItem, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != database.JobStatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotFinished, job.Status)
	}
	return m.store.GetItems(ctx, id)
}

// QueueSize reports how many jobs wait for the worker.
func (m *Manager) QueueSize() int {
	return m.queue.Size()
}
