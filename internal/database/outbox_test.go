package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to TEST_DATABASE_URL and applies the schema, or skips.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn, nil)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))

	_, err = db.Exec(ctx, `TRUNCATE outbox_event, crawl_items, crawl_jobs`)
	require.NoError(t, err)
	return db
}

func TestOutboxEvent_Validate(t *testing.T) {
	valid := OutboxEvent{
		AggregateType: "crawl_job",
		AggregateID:   "job-1",
		EventType:     "CRAWL_COMPLETED",
		Payload:       json.RawMessage(`{}`),
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*OutboxEvent)
	}{
		{"missing aggregate type", func(e *OutboxEvent) { e.AggregateType = "" }},
		{"missing aggregate id", func(e *OutboxEvent) { e.AggregateID = "" }},
		{"missing event type", func(e *OutboxEvent) { e.EventType = "" }},
		{"missing payload", func(e *OutboxEvent) { e.Payload = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := valid
			tt.mutate(&event)
			assert.ErrorIs(t, event.Validate(), ErrInvalidEvent)
		})
	}
}

func TestNextRetryTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(2*time.Second), NextRetryTime(now, 1))
	assert.Equal(t, now.Add(16*time.Second), NextRetryTime(now, 4))
	assert.Equal(t, now.Add(5*time.Minute), NextRetryTime(now, 9))
	assert.Equal(t, now.Add(5*time.Minute), NextRetryTime(now, 64))
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("fills defaults", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "crawl_job",
			AggregateID:   "job-1",
			EventType:     "CRAWL_COMPLETED",
			Payload:       json.RawMessage(`{"job_id":"job-1"}`),
		}

		err := db.Transaction(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, CatalogStream, event.TargetStream)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rolled back with the transaction", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "crawl_job",
			AggregateID:   "job-rollback",
			EventType:     "CRAWL_COMPLETED",
			Payload:       json.RawMessage(`{}`),
		}

		err := db.Transaction(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		events, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range events {
			assert.NotEqual(t, "job-rollback", e.AggregateID)
		}
	})
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	event := &OutboxEvent{
		AggregateType: "crawl_job",
		AggregateID:   "job-1",
		EventType:     "CRAWL_COMPLETED",
		Payload:       json.RawMessage(`{}`),
		RetryCount:    MaxRetryCount - 2,
	}
	require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	}))

	require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))
	failed, err := repo.CountByStatus(ctx, OutboxStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))
	dead, err := repo.CountByStatus(ctx, OutboxStatusDeadLetter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)

	assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))
}
