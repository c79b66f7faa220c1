package jobs

import (
	"context"
	"errors"

	"github.com/maltedev/channel-catalog-scraper/internal/database"
	"github.com/maltedev/channel-catalog-scraper/internal/events"
	"github.com/maltedev/channel-catalog-scraper/internal/queue"
	"github.com/maltedev/channel-catalog-scraper/internal/scraper"
)

// StartWorker processes queued jobs one at a time until ctx is done or the
// queue is closed.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")
	defer m.abandonQueued(ctx)

	for ctx.Err() == nil {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				break
			}
			m.logger.Error("failed to take next job", "error", err)
			continue
		}

		m.processJob(ctx, task.JobID)
	}
	m.logger.Info("job worker stopping")
}

// abandonQueued fails jobs still waiting when the worker stops. The queue
// lives in memory, so they would otherwise stay pending forever.
func (m *Manager) abandonQueued(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for {
		task, err := m.queue.TryPop()
		if err != nil {
			return
		}
		if err := m.store.MarkFailed(ctx, task.JobID, ErrWorkerStopped); err != nil {
			m.logger.Error("failed to mark abandoned job", "id", task.JobID, "error", err)
			continue
		}
		m.logger.Warn("job abandoned at shutdown", "id", task.JobID)
	}
}

func (m *Manager) processJob(ctx context.Context, jobID string) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Error("failed to load job", "id", jobID, "error", err)
		return
	}

	m.logger.Info("processing job", "id", job.ID, "channel", job.ChannelURL)

	if err := m.store.MarkRunning(ctx, job.ID); err != nil {
		m.logger.Error("failed to update job status", "id", job.ID, "error", err)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, m.opts.JobTimeout)
	defer cancel()

	items, err := m.crawler.ScrapeChannel(jobCtx, scraper.ChannelOptions{
		ChannelURL:         job.ChannelURL,
		MaxItems:           job.MaxItems,
		Headless:           m.opts.Headless,
		IncludeVideos:      job.IncludeVideos,
		IncludeLivestreams: job.IncludeLivestreams,
	})
	if err != nil {
		// A job that ran out of time still delivers what it found.
		if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil || len(items) == 0 {
			m.fail(ctx, job, err)
			return
		}
		m.logger.Warn("job timed out, keeping partial catalog", "id", job.ID, "items", len(items))
	}

	event, err := events.CrawlCompleted(job.ID, job.ChannelURL, items)
	if err != nil {
		m.fail(ctx, job, err)
		return
	}

	if err := m.store.CompleteJob(ctx, job.ID, items, event); err != nil {
		m.fail(ctx, job, err)
		return
	}

	m.logger.Info("job completed", "id", job.ID, "items", len(items))
}

func (m *Manager) fail(ctx context.Context, job *database.CrawlJob, jobErr error) {
	m.logger.Error("job failed", "id", job.ID, "error", jobErr)

	// The job row must be settled even when shutdown cancelled ctx.
	ctx = context.WithoutCancel(ctx)

	if err := m.store.MarkFailed(ctx, job.ID, jobErr); err != nil {
		m.logger.Error("failed to mark job as failed", "id", job.ID, "error", err)
	}

	if m.publisher == nil {
		return
	}
	event, err := events.CrawlFailed(job.ID, job.ChannelURL, jobErr)
	if err != nil {
		m.logger.Error("failed to build failure event", "id", job.ID, "error", err)
		return
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Error("failed to publish failure event", "id", job.ID, "error", err)
	}
}
