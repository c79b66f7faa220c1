package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/channel-catalog-scraper/internal/database"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
)

type EventType string

const (
	EventTypeCrawlCompleted EventType = "CRAWL_COMPLETED"
	EventTypeCrawlFailed    EventType = "CRAWL_FAILED"

	aggregateType = "crawl_job"
	source        = "channel-scraper"
)

// CrawlPayload is the body of every crawl lifecycle event.
type CrawlPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	JobID       string    `json:"job_id"`
	ChannelURL  string    `json:"channel_url"`
	ItemCount   int       `json:"item_count"`
	Videos      int       `json:"videos"`
	Livestreams int       `json:"livestreams"`
	Upcoming    int       `json:"upcoming"`
	Error       string    `json:"error,omitempty"`
	Source      string    `json:"source"`
}

// CrawlCompleted builds the outbox entry announcing a finished catalog.
func CrawlCompleted(jobID, channelURL string, items []models.ScrapedItem) (*database.OutboxEvent, error) {
	counts := models.CountByType(items)
	return newEvent(&CrawlPayload{
		EventType:   string(EventTypeCrawlCompleted),
		JobID:       jobID,
		ChannelURL:  channelURL,
		ItemCount:   len(items),
		Videos:      counts[models.ItemTypeVideo],
		Livestreams: counts[models.ItemTypeLivestream],
		Upcoming:    counts[models.ItemTypeUpcoming],
	})
}

func CrawlFailed(jobID, channelURL string, crawlErr error) (*database.OutboxEvent, error) {
	return newEvent(&CrawlPayload{
		EventType:  string(EventTypeCrawlFailed),
		JobID:      jobID,
		ChannelURL: channelURL,
		Error:      crawlErr.Error(),
	})
}

func newEvent(payload *CrawlPayload) (*database.OutboxEvent, error) {
	payload.EventID = uuid.New().String()
	payload.Timestamp = time.Now()
	payload.Source = source

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   payload.JobID,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  database.CatalogStream,
	}, nil
}

// Publisher writes standalone events to the outbox in their own transaction.
type Publisher struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, event *database.OutboxEvent) error {
	err := p.db.Transaction(ctx, func(tx pgx.Tx) error {
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", event.EventType,
		"job_id", event.AggregateID,
		"outbox_id", event.ID)
	return nil
}
