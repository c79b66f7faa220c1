package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/channel-catalog-scraper/internal/database"
	"github.com/maltedev/channel-catalog-scraper/internal/downloader"
	"github.com/maltedev/channel-catalog-scraper/internal/events"
	"github.com/maltedev/channel-catalog-scraper/internal/models"
	"github.com/maltedev/channel-catalog-scraper/internal/ratelimit"
	"github.com/maltedev/channel-catalog-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

var ErrMalformedMessage = errors.New("malformed stream message")

// StreamClient is the consumer-group slice of *redis.Client.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
}

// ItemSource loads a finished catalog. *database.CrawlRepository implements it.
type ItemSource interface {
	GetItems(ctx context.Context, id string) ([]models.ScrapedItem, error)
}

type AudioFetcher interface {
	ProcessAll(ctx context.Context, items []models.ScrapedItem) (downloader.Summary, error)
}

// Config names the stream and group. Entries left pending longer than
// ClaimIdle, by this or a dead consumer, are claimed and retried.
type Config struct {
	Stream     string
	Group      string
	Name       string
	Block      time.Duration
	ClaimIdle  time.Duration
	ClaimBatch int64
	ExportDir  string
}

// Consumer follows the catalog stream and exports every completed crawl to
// <ExportDir>/<job id>.json, optionally extracting audio for it.
type Consumer struct {
	client StreamClient
	items  ItemSource
	audio  AudioFetcher
	cfg    Config
	logger *slog.Logger

	lastClaim time.Time
}

// New builds a consumer. audio may be nil to only export catalogs.
func New(client StreamClient, items ItemSource, audio AudioFetcher, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = database.CatalogStream
	}
	if cfg.Group == "" {
		cfg.Group = "catalog-consumer-group"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	if cfg.ClaimBatch <= 0 {
		cfg.ClaimBatch = 10
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "catalogs"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		client: client,
		items:  items,
		audio:  audio,
		cfg:    cfg,
		logger: logger.With("component", "consumer"),
	}
}

// Run reads the stream until ctx is done. A failed message stays pending and
// is retried once it has been idle for ClaimIdle; a malformed one is
// acknowledged and dropped.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if time.Since(c.lastClaim) >= c.cfg.ClaimIdle {
			c.reclaim(ctx)
			c.lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    1,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			if sleepErr := ratelimit.Sleep(ctx, time.Second); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.process(ctx, message)
			}
		}
	}
}

// reclaim takes over entries that have sat unacknowledged for ClaimIdle.
func (c *Consumer) reclaim(ctx context.Context) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		MinIdle:  c.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    c.cfg.ClaimBatch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("failed to claim pending messages", "error", err)
		}
		return
	}

	if len(messages) > 0 {
		c.logger.Info("retrying pending messages", "count", len(messages))
	}
	for _, message := range messages {
		c.process(ctx, message)
	}
}

func (c *Consumer) process(ctx context.Context, message redis.XMessage) {
	if err := c.handleMessage(ctx, message); err != nil {
		if !errors.Is(err, ErrMalformedMessage) {
			c.logger.Error("failed to process message", "id", message.ID, "error", err)
			return
		}
		c.logger.Warn("dropping malformed message", "id", message.ID, "error", err)
	}
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, message.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", message.ID, "error", err)
	}
}

type streamEnvelope struct {
	Payload events.CrawlPayload `json:"payload"`
}

func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) error {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(events.EventTypeCrawlCompleted) {
		c.logger.Debug("skipping event", "id", msg.ID, "event_type", eventType)
		return nil
	}

	jobID, _ := msg.Values["aggregate_id"].(string)
	if jobID == "" {
		return fmt.Errorf("%w: missing aggregate_id", ErrMalformedMessage)
	}

	var envelope streamEnvelope
	if data, ok := msg.Values["data"].(string); ok && data != "" {
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
	}

	items, err := c.items.GetItems(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load items for job %s: %w", jobID, err)
	}

	path := filepath.Join(c.cfg.ExportDir, jobID+".json")
	if err := storage.WriteCatalog(path, items); err != nil {
		return err
	}
	c.logger.Info("catalog exported",
		"job_id", jobID,
		"channel", envelope.Payload.ChannelURL,
		"items", len(items),
		"path", path)

	if c.audio == nil || len(items) == 0 {
		return nil
	}

	summary, err := c.audio.ProcessAll(ctx, items)
	if err != nil {
		return fmt.Errorf("audio extraction interrupted: %w", err)
	}
	c.logger.Info("audio extracted",
		"job_id", jobID,
		"downloaded", summary.Downloaded,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	return nil
}
