package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).(int64), args.Error(1)
}

func crawlEvent(jobID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "crawl_job",
		AggregateID:   jobID,
		EventType:     "CRAWL_COMPLETED",
		Payload:       json.RawMessage(`{"job_id":"` + jobID + `","item_count":3}`),
		TargetStream:  CatalogStream,
		CreatedAt:     time.Now(),
	}
}

func newTestRelay(outbox OutboxRepo, redisClient RedisClient) *Relay {
	return newRelay(outbox, redisClient, slog.Default(), RelayConfig{BatchSize: 10, PollInterval: 50 * time.Millisecond})
}

// field reads one value of an XAdd entry; Values is declared as interface{}.
func field(args *redis.XAddArgs, key string) interface{} {
	values, ok := args.Values.(map[string]interface{})
	if !ok {
		return nil
	}
	return values[key]
}

func forJob(jobID string) interface{} {
	return mock.MatchedBy(func(args *redis.XAddArgs) bool {
		return field(args, "aggregate_id") == jobID
	})
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks every event", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockOutbox, mockRedis)

		events := []*OutboxEvent{crawlEvent("job-1"), crawlEvent("job-2")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		for _, event := range events {
			event := event
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				return args.Stream == CatalogStream &&
					field(args, "event_type") == "CRAWL_COMPLETED" &&
					field(args, "aggregate_id") == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		res, err := relay.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Published: 2}, res)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("publish failure marks the event failed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockOutbox, mockRedis)

		event := crawlEvent("job-1")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis connection failed"))
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
			return err.Error() == "failed to publish to redis: redis connection failed"
		})).Return(nil)

		res, err := relay.Drain(ctx)
		assert.NoError(t, err)
		assert.Equal(t, BatchResult{Failed: 1}, res)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("empty batch does not touch redis", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockOutbox, mockRedis)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		res, err := relay.Drain(ctx)
		require.NoError(t, err)
		assert.Zero(t, res)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("one failure does not stop the batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockOutbox, mockRedis)

		events := []*OutboxEvent{crawlEvent("job-1"), crawlEvent("job-2")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		mockRedis.On("XAdd", ctx, forJob("job-1")).Return(errors.New("redis error"))
		mockOutbox.On("MarkFailed", ctx, events[0].ID, mock.Anything).Return(nil)

		mockRedis.On("XAdd", ctx, forJob("job-2")).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, events[1].ID).Return(nil)

		res, err := relay.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Published: 1, Failed: 1}, res)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("unmarked publish counts as failed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockOutbox, mockRedis)

		event := crawlEvent("job-1")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, event.ID).Return(errors.New("conn reset"))

		res, err := relay.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Failed: 1}, res)
	})

	t.Run("outbox read failure is returned", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockOutbox, new(MockRedisClient))

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("connection refused"))

		_, err := relay.Drain(ctx)
		assert.Error(t, err)
	})
}

func TestStreamValues(t *testing.T) {
	event := crawlEvent("job-7")

	values, err := StreamValues(event)
	require.NoError(t, err)

	assert.Equal(t, "CRAWL_COMPLETED", values["event_type"])
	assert.Equal(t, "job-7", values["aggregate_id"])
	assert.Equal(t, "crawl_job", values["aggregate_type"])
	assert.Equal(t, event.ID.String(), values["original_id"])

	raw, ok := values["data"].(string)
	require.True(t, ok)

	var data struct {
		Type        string                 `json:"type"`
		AggregateID string                 `json:"aggregate_id"`
		Payload     map[string]interface{} `json:"payload"`
		Metadata    map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	assert.Equal(t, "CRAWL_COMPLETED", data.Type)
	assert.Equal(t, "job-7", data.AggregateID)
	assert.Equal(t, "job-7", data.Payload["job_id"])
	assert.Equal(t, RelaySource, data.Metadata["source"])
	assert.Equal(t, CatalogStream, data.Metadata["target_stream"])
}

func TestStreamValues_RejectsInvalidPayload(t *testing.T) {
	event := crawlEvent("job-1")
	event.Payload = json.RawMessage(`not json`)

	_, err := StreamValues(event)
	assert.Error(t, err)
}

func TestRelay_InvalidPayloadIsMarkedFailed(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(mockOutbox, mockRedis)

	event := crawlEvent("job-1")
	event.Payload = json.RawMessage(`not json`)
	mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
	mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

	_, err := relay.Drain(ctx)
	require.NoError(t, err)
	mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	mockOutbox.AssertExpectations(t)
}

func TestRelay_Counts(t *testing.T) {
	ctx := context.Background()
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(mockOutbox, new(MockRedisClient))

	mockOutbox.On("CountByStatus", ctx, []string{OutboxStatusPending, OutboxStatusFailed}).Return(int64(4), nil)
	mockOutbox.On("CountByStatus", ctx, []string{OutboxStatusDeadLetter}).Return(int64(1), nil)

	pending, err := relay.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pending)

	dead, err := relay.GetDeadLetterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestRelay_Start(t *testing.T) {
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(mockOutbox, new(MockRedisClient))

	mockOutbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- relay.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}
