package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"greenlane/backend/services/pricing-worker/internal/models"
)

const (
	insertSessionQuery = `
		INSERT INTO charging_sessions (time, session_id, station_id, car_id, kwh_usage, price_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	// Requires a unique index on charging_sessions(source_ref).
	insertSessionIdempotentQuery = `
		INSERT INTO charging_sessions (time, session_id, station_id, car_id, kwh_usage, price_rate, source_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_ref) DO NOTHING
	`
)

// Executor is the pgx subset used for inserts; *pgxpool.Pool satisfies it.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SessionRepository appends charging sessions to the time-series store.
type SessionRepository struct {
	db         Executor
	idempotent bool
}

// NewSessionRepository returns repository. With idempotent set, records carrying a
// SourceRef are deduplicated by the store.
func NewSessionRepository(db Executor, idempotent bool) *SessionRepository {
	return &SessionRepository{db: db, idempotent: idempotent}
}

// Persist writes exactly one row. Errors are *SinkError.
func (r *SessionRepository) Persist(ctx context.Context, record models.SessionRecord) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if r.idempotent && record.SourceRef != "" {
		tag, err = r.db.Exec(ctx, insertSessionIdempotentQuery,
			record.Time,
			record.SessionID,
			record.StationID,
			record.CarID,
			record.KWhUsage,
			record.PriceRate,
			record.SourceRef,
		)
		if err != nil {
			return classify(err)
		}
		// Zero rows means the message was already persisted by an earlier delivery.
		if tag.RowsAffected() > 1 {
			return &SinkError{Kind: SinkOther, Err: fmt.Errorf("insert affected %d rows", tag.RowsAffected())}
		}
		return nil
	}

	tag, err = r.db.Exec(ctx, insertSessionQuery,
		record.Time,
		record.SessionID,
		record.StationID,
		record.CarID,
		record.KWhUsage,
		record.PriceRate,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() != 1 {
		return &SinkError{Kind: SinkOther, Err: fmt.Errorf("insert affected %d rows", tag.RowsAffected())}
	}
	return nil
}
