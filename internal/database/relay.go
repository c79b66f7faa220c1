package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RelaySource identifies this service in published stream entries.
const RelaySource = "channel-scraper"

type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay drains the outbox into Redis streams. Delivery is at least once: an
// entry that reached Redis but could not be marked processed is sent again.
type Relay struct {
	redis  RedisClient
	outbox OutboxRepo
	logger *slog.Logger
	cfg    RelayConfig
}

// BatchResult counts the outcome of one outbox drain.
type BatchResult struct {
	Published int
	Failed    int
}

func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	return newRelay(NewOutboxRepository(db), redisClient, logger, cfg)
}

func newRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		logger: logger.With("component", "relay"),
		cfg:    cfg,
	}
}

// Start drains once immediately and then on every tick until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		res, err := r.Drain(ctx)
		switch {
		case err != nil:
			r.logger.Error("outbox drain failed", "error", err)
		case res.Published+res.Failed > 0:
			r.logger.Debug("outbox drained", "published", res.Published, "failed", res.Failed)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch of due events. A failing event is recorded on its
// row and does not stop the rest of the batch.
func (r *Relay) Drain(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	pending, err := r.outbox.GetPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to get pending events: %w", err)
	}

	for _, event := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if r.deliver(ctx, event) {
			res.Published++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (r *Relay) deliver(ctx context.Context, event *OutboxEvent) bool {
	log := r.logger.With("event_id", event.ID, "event_type", event.EventType, "aggregate_id", event.AggregateID)

	if err := r.publish(ctx, event); err != nil {
		log.Warn("publish failed", "retry_count", event.RetryCount, "error", err)
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			log.Error("failed to record publish failure", "error", markErr)
		}
		return false
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		log.Error("published but not marked processed", "error", err)
		return false
	}

	log.Info("event published", "stream", event.TargetStream)
	return true
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	values, err := StreamValues(event)
	if err != nil {
		return err
	}
	err = r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// StreamValues renders event as the field map of a stream entry. The "data"
// field holds the full envelope as JSON; the flat fields let consumers filter
// without decoding it.
func StreamValues(event *OutboxEvent) (map[string]interface{}, error) {
	var payload json.RawMessage
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	envelope := struct {
		ID            string          `json:"id"`
		Type          string          `json:"type"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		Timestamp     string          `json:"timestamp"`
		Payload       json.RawMessage `json:"payload"`
		Metadata      streamMetadata  `json:"metadata"`
	}{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.Format(time.RFC3339),
		Payload:       payload,
		Metadata: streamMetadata{
			Source:       RelaySource,
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream data: %w", err)
	}

	return map[string]interface{}{
		"data":           string(data),
		"event_type":     event.EventType,
		"aggregate_id":   event.AggregateID,
		"aggregate_type": event.AggregateType,
		"original_id":    event.ID.String(),
		"timestamp":      strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
	}, nil
}

type streamMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

// GetPendingCount counts events still waiting to be published.
func (r *Relay) GetPendingCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
}

func (r *Relay) GetDeadLetterCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusDeadLetter)
}
