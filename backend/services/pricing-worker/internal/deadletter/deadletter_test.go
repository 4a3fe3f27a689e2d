package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeList struct {
	key    string
	values [][]byte
	err    error
}

func (f *fakeList) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "rpush", key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.key = key
	for _, v := range values {
		f.values = append(f.values, v.([]byte))
	}
	cmd.SetVal(int64(len(f.values)))
	return cmd
}

func TestStorePublish(t *testing.T) {
	list := &fakeList{}
	store := NewStore(list, "pricing:deadletter")

	failedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := store.Publish(context.Background(), Entry{
		Stage:     "enrich",
		Kind:      "timeout",
		Error:     "pricing oracle timeout",
		CarID:     "car-7",
		Topic:     "fleet-events",
		Partition: 2,
		Offset:    99,
		Payload:   []byte(`{"car_id":"car-7"}`),
		FailedAt:  failedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, "pricing:deadletter", list.key)
	require.Len(t, list.values, 1)

	var stored Entry
	require.NoError(t, json.Unmarshal(list.values[0], &stored))
	_, parseErr := uuid.Parse(stored.ID)
	assert.NoError(t, parseErr)
	assert.Equal(t, "enrich", stored.Stage)
	assert.Equal(t, int64(99), stored.Offset)
	assert.Equal(t, `{"car_id":"car-7"}`, string(stored.Payload))
	assert.True(t, stored.FailedAt.Equal(failedAt))
}

func TestStorePublishKeepsID(t *testing.T) {
	list := &fakeList{}
	store := NewStore(list, "dl")

	require.NoError(t, store.Publish(context.Background(), Entry{ID: "fixed"}))

	var stored Entry
	require.NoError(t, json.Unmarshal(list.values[0], &stored))
	assert.Equal(t, "fixed", stored.ID)
}

func TestStorePublishError(t *testing.T) {
	store := NewStore(&fakeList{err: errors.New("READONLY")}, "dl")
	err := store.Publish(context.Background(), Entry{Stage: "persist"})
	assert.ErrorContains(t, err, "READONLY")
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := NewLogSink(zap.New(core))

	err := sink.Publish(context.Background(), Entry{Stage: "decode", Kind: "schema", Offset: 7})
	assert.ErrorIs(t, err, ErrNotPreserved)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "decode", logs.All()[0].ContextMap()["stage"])
}
