package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenlane/backend/services/pricing-worker/internal/models"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []execCall
	tag   string
	err   error
}

func (f *fakeExecutor) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: arguments})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	tag := f.tag
	if tag == "" {
		tag = "INSERT 0 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func sampleRecord() models.SessionRecord {
	return models.SessionRecord{
		Time:      time.Unix(1000, 0).UTC(),
		SessionID: "session-car-7-1000",
		StationID: "station-7",
		CarID:     "car-7",
		KWhUsage:  15.5,
		PriceRate: 0.25,
		SourceRef: "fleet-events/0/42",
	}
}

func TestPersistInsertsOneRow(t *testing.T) {
	db := &fakeExecutor{}
	repo := NewSessionRepository(db, false)

	require.NoError(t, repo.Persist(context.Background(), sampleRecord()))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "INSERT INTO charging_sessions (time, session_id, station_id, car_id, kwh_usage, price_rate)")
	assert.NotContains(t, db.calls[0].sql, "source_ref")
	assert.Equal(t, []any{
		time.Unix(1000, 0).UTC(),
		"session-car-7-1000",
		"station-7",
		"car-7",
		15.5,
		0.25,
	}, db.calls[0].args)
}

func TestPersistIdempotent(t *testing.T) {
	db := &fakeExecutor{tag: "INSERT 0 0"}
	repo := NewSessionRepository(db, true)

	require.NoError(t, repo.Persist(context.Background(), sampleRecord()))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "ON CONFLICT (source_ref) DO NOTHING")
	assert.Equal(t, "fleet-events/0/42", db.calls[0].args[6])
}

func TestPersistIdempotentWithoutSourceRefFallsBack(t *testing.T) {
	db := &fakeExecutor{}
	repo := NewSessionRepository(db, true)

	record := sampleRecord()
	record.SourceRef = ""
	require.NoError(t, repo.Persist(context.Background(), record))
	assert.NotContains(t, db.calls[0].sql, "source_ref")
}

func TestPersistUnexpectedRowCount(t *testing.T) {
	db := &fakeExecutor{tag: "INSERT 0 0"}
	repo := NewSessionRepository(db, false)

	err := repo.Persist(context.Background(), sampleRecord())
	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, SinkOther, sinkErr.Kind)
}

func TestPersistClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want SinkErrorKind
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, SinkConstraint},
		{"undefined column", &pgconn.PgError{Code: "42703", Message: "column does not exist"}, SinkConstraint},
		{"numeric overflow", &pgconn.PgError{Code: "22003"}, SinkConstraint},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, SinkConnection},
		{"connection failure", &pgconn.PgError{Code: "08006"}, SinkConnection},
		{"disk full", &pgconn.PgError{Code: "53100"}, SinkOther},
		{"empty code", &pgconn.PgError{}, SinkOther},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, SinkConnection},
		{"eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), SinkConnection},
		{"deadline", context.DeadlineExceeded, SinkConnection},
		{"unknown", errors.New("boom"), SinkOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewSessionRepository(&fakeExecutor{err: tc.err}, false)
			err := repo.Persist(context.Background(), sampleRecord())

			var sinkErr *SinkError
			require.ErrorAs(t, err, &sinkErr)
			assert.Equal(t, tc.want, sinkErr.Kind)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSinkErrorKind(t *testing.T) {
	assert.False(t, SinkConstraint.Retryable())
	assert.True(t, SinkConnection.Retryable())
	assert.True(t, SinkOther.Retryable())
	assert.Equal(t, "constraint", SinkConstraint.String())
}
