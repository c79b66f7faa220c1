package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/channel-catalog-scraper/internal/database"
	"github.com/maltedev/channel-catalog-scraper/internal/jobs"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
	"golang.org/x/time/rate"
)

// JobService is the part of *jobs.Manager the handlers use.
type JobService interface {
	CreateJob(ctx context.Context, req jobs.Request) (*database.CrawlJob, error)
	GetJob(ctx context.Context, id string) (*database.CrawlJob, error)
	ListJobs(ctx context.Context) ([]*database.CrawlJob, error)
	GetJobItems(ctx context.Context, id string) ([]models.ScrapedItem, error)
	QueueSize() int
}

// OutboxStats reports relay backlog. *database.Relay implements it.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	jobs    JobService
	outbox  OutboxStats
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHandlers builds the handlers. A nil limiter admits every request and a
// nil outbox leaves the outbox section out of /health.
func NewHandlers(jobs JobService, outbox OutboxStats, limiter *rate.Limiter, logger *slog.Logger) *Handlers {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		jobs:    jobs,
		outbox:  outbox,
		limiter: limiter,
		logger:  logger.With("component", "api"),
	}
}

type CreateCrawlRequest struct {
	ChannelURL         string `json:"channel_url"`
	MaxItems           int    `json:"max_items"`
	IncludeVideos      *bool  `json:"include_videos"`
	IncludeLivestreams *bool  `json:"include_livestreams"`
	Priority           int    `json:"priority"`
}

type CreateCrawlResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateCrawl queues a channel crawl. Omitted include flags take the
// service's configured defaults.
func (h *Handlers) CreateCrawl(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		h.respondError(w, http.StatusTooManyRequests, "too many crawl requests, retry later")
		return
	}

	var req CreateCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), jobs.Request{
		ChannelURL:         req.ChannelURL,
		MaxItems:           req.MaxItems,
		IncludeVideos:      req.IncludeVideos,
		IncludeLivestreams: req.IncludeLivestreams,
		Priority:           req.Priority,
	})
	if errors.Is(err, jobs.ErrInvalidRequest) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateCrawlResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Crawl queued",
	})
}

func (h *Handlers) GetCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, database.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListCrawls(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

// GetCrawlItems returns the catalog of a completed crawl.
func (h *Handlers) GetCrawlItems(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	items, err := h.jobs.GetJobItems(r.Context(), jobID)
	switch {
	case errors.Is(err, database.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobs.ErrJobNotFinished):
		h.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to get job items", "id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get items")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"count":  len(items),
		"counts": models.CountByType(items),
		"items":  items,
	})
}

const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":      "ok",
		"queued_jobs": h.jobs.QueueSize(),
	}
	status := http.StatusOK

	if h.outbox != nil {
		pending, err := h.outbox.GetPendingCount(r.Context())
		if err != nil {
			h.logger.Warn("failed to count pending events", "error", err)
		}
		deadLetter, err := h.outbox.GetDeadLetterCount(r.Context())
		if err != nil {
			h.logger.Warn("failed to count dead letter events", "error", err)
		}

		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > deadLetterFailThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
