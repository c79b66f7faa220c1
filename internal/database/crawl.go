package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

var ErrJobNotFound = errors.New("crawl job not found")

// CrawlJob is one requested crawl of a channel.
type CrawlJob struct {
	ID                 string     `json:"id"`
	ChannelURL         string     `json:"channel_url"`
	MaxItems           int        `json:"max_items"`
	IncludeVideos      bool       `json:"include_videos"`
	IncludeLivestreams bool       `json:"include_livestreams"`
	Status             string     `json:"status"`
	ItemCount          int        `json:"item_count"`
	Error              string     `json:"error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// CrawlRepository persists crawl jobs and their finished catalogs.
type CrawlRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewCrawlRepository(db *DB) *CrawlRepository {
	return &CrawlRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
	}
}

func (r *CrawlRepository) CreateJob(ctx context.Context, job *CrawlJob) error {
	query := `
		INSERT INTO crawl_jobs
		(id, channel_url, max_items, include_videos, include_livestreams, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.ChannelURL, job.MaxItems, job.IncludeVideos, job.IncludeLivestreams,
		job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

const jobColumns = `
	id, channel_url, max_items, include_videos, include_livestreams, status,
	item_count, error, created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*CrawlJob, error) {
	job := &CrawlJob{}
	err := row.Scan(
		&job.ID, &job.ChannelURL, &job.MaxItems, &job.IncludeVideos, &job.IncludeLivestreams,
		&job.Status, &job.ItemCount, &job.Error, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *CrawlRepository) GetJob(ctx context.Context, id string) (*CrawlJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (r *CrawlRepository) ListJobs(ctx context.Context, limit int) ([]*CrawlJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*CrawlJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return jobs, nil
}

func (r *CrawlRepository) MarkRunning(ctx context.Context, id string) error {
	return r.updateStatus(ctx,
		`UPDATE crawl_jobs SET status = $1, started_at = $2 WHERE id = $3`,
		JobStatusRunning, time.Now(), id)
}

func (r *CrawlRepository) MarkFailed(ctx context.Context, id string, jobErr error) error {
	return r.updateStatus(ctx,
		`UPDATE crawl_jobs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		JobStatusFailed, time.Now(), jobErr.Error(), id)
}

func (r *CrawlRepository) updateStatus(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

var itemColumns = []string{
	"job_id", "position", "url", "title", "thumbnail", "type", "is_live",
	"duration", "views", "upload_date", "concurrent_viewers", "scheduled_start_time",
}

// CompleteJob stores the catalog, marks the job completed and enqueues event
// in the outbox, all in one transaction.
func (r *CrawlRepository) CompleteJob(ctx context.Context, id string, items []models.ScrapedItem, event *OutboxEvent) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"crawl_items"}, itemColumns,
			pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
				item := items[i]
				return []any{
					id, i, item.URL, item.Title, item.Thumbnail, string(item.Type), item.IsLive,
					item.Duration, item.Views, item.UploadDate, item.ConcurrentViewers, item.ScheduledStartTime,
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("failed to insert items: %w", err)
		}

		result, err := tx.Exec(ctx,
			`UPDATE crawl_jobs SET status = $1, item_count = $2, completed_at = $3 WHERE id = $4`,
			JobStatusCompleted, len(items), time.Now(), id)
		if err != nil {
			return fmt.Errorf("failed to complete job: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrJobNotFound
		}

		if event != nil {
			if err := r.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItems returns a job's catalog in discovery order.
func (r *CrawlRepository) GetItems(ctx context.Context, id string) ([]models.ScrapedItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT url, title, thumbnail, type, is_live, duration, views, upload_date,
		       concurrent_viewers, scheduled_start_time
		FROM crawl_items
		WHERE job_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	items := make([]models.ScrapedItem, 0)
	for rows.Next() {
		var item models.ScrapedItem
		var itemType string
		err := rows.Scan(
			&item.URL, &item.Title, &item.Thumbnail, &itemType, &item.IsLive,
			&item.Duration, &item.Views, &item.UploadDate,
			&item.ConcurrentViewers, &item.ScheduledStartTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.Type = models.ItemType(itemType)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return items, nil
}
