package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotPreserved is returned by sinks that only record the failure in logs.
var ErrNotPreserved = errors.New("deadletter: entry not preserved")

// Entry is a stream message that failed processing, kept for later inspection.
type Entry struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
	CarID     string    `json:"car_id,omitempty"`
	Topic     string    `json:"topic"`
	Partition int       `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       string    `json:"key,omitempty"`
	Payload   []byte    `json:"payload"`
	FailedAt  time.Time `json:"failed_at"`
}

// Sink receives failed messages.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Store appends dead-letter entries to a redis list.
type Store struct {
	client listPusher
	key    string
}

// NewStore returns redis-backed store.
func NewStore(client listPusher, key string) *Store {
	return &Store{client: client, key: key}
}

// Publish appends entry as JSON. A missing ID is generated.
func (s *Store) Publish(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("deadletter: encode: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("deadletter: rpush %s: %w", s.key, err)
	}
	return nil
}

// LogSink is used when no dead-letter store is configured: the failure is logged with
// the payload and reported as lost.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns log-only sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs entry and returns ErrNotPreserved.
func (s *LogSink) Publish(_ context.Context, entry Entry) error {
	s.logger.Error("message dropped without dead-letter store",
		zap.String("stage", entry.Stage),
		zap.String("kind", entry.Kind),
		zap.String("car_id", entry.CarID),
		zap.String("topic", entry.Topic),
		zap.Int("partition", entry.Partition),
		zap.Int64("offset", entry.Offset),
		zap.ByteString("payload", entry.Payload),
		zap.String("error", entry.Error),
	)
	return ErrNotPreserved
}
