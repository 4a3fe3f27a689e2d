// Package pipeline drives telemetry messages through decode, enrichment and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"greenlane/backend/services/pricing-worker/internal/clients"
	"greenlane/backend/services/pricing-worker/internal/deadletter"
	"greenlane/backend/services/pricing-worker/internal/decoder"
	"greenlane/backend/services/pricing-worker/internal/models"
	"greenlane/backend/services/pricing-worker/internal/repository"
	"greenlane/backend/services/pricing-worker/internal/service"
)

const (
	defaultSinkMaxAttempts    = 3
	defaultSinkBackoffInitial = 100 * time.Millisecond
	defaultSinkBackoffMax     = 2 * time.Second
	defaultSinkTimeout        = 10 * time.Second
	defaultFetchErrorPause    = time.Second
	defaultCommitTimeout      = 10 * time.Second
)

// MessageReader is the kafka-go reader subset the driver needs; *kafka.Reader satisfies it.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// RecordSink persists one session record.
type RecordSink interface {
	Persist(ctx context.Context, record models.SessionRecord) error
}

// Observer receives pipeline measurements; *metrics.Pipeline satisfies it.
type Observer interface {
	ObserveOutcome(outcome string, elapsed time.Duration)
	ObserveStageFailure(stage, kind string)
	ObserveSinkAttempt(err error)
	ObserveCommit(err error)
}

// Config tunes the driver. Zero values fall back to defaults.
type Config struct {
	CommitMode CommitMode
	// Workers above 1 switch from the sequential loop to a bounded worker pool.
	Workers int
	// UnorderedCommit lets the pool commit each message as soon as it finishes instead
	// of waiting for every earlier message of the same partition.
	UnorderedCommit    bool
	SinkMaxAttempts    int
	SinkBackoffInitial time.Duration
	SinkBackoffMax     time.Duration
	SinkTimeout        time.Duration
	FetchErrorPause    time.Duration
	CommitTimeout      time.Duration
	// IdempotentInserts stamps records with their source message reference.
	IdempotentInserts bool
}

// Dependencies are the long-lived handles the driver owns for its lifetime.
type Dependencies struct {
	Reader      MessageReader
	Oracle      clients.QuoteFetcher
	Sink        RecordSink
	DeadLetters deadletter.Sink
	Observer    Observer
	Logger      *zap.Logger
	// Clock supplies capture times; nil means time.Now.
	Clock func() time.Time
}

// Driver consumes the fleet stream and turns each telemetry event into a session row.
type Driver struct {
	reader      MessageReader
	oracle      clients.QuoteFetcher
	sink        RecordSink
	deadLetters deadletter.Sink
	observer    Observer
	logger      *zap.Logger
	now         func() time.Time
	cfg         Config
}

// NewDriver validates dependencies and applies config defaults.
func NewDriver(cfg Config, deps Dependencies) (*Driver, error) {
	if deps.Reader == nil || deps.Oracle == nil || deps.Sink == nil {
		return nil, errors.New("pipeline: reader, oracle and sink are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	if cfg.CommitMode == "" {
		cfg.CommitMode = AtMostOnce
	}
	if cfg.CommitMode != AtLeastOnce && cfg.CommitMode != AtMostOnce {
		return nil, fmt.Errorf("pipeline: unknown commit mode %q", cfg.CommitMode)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.SinkMaxAttempts < 1 {
		cfg.SinkMaxAttempts = defaultSinkMaxAttempts
	}
	if cfg.SinkBackoffInitial <= 0 {
		cfg.SinkBackoffInitial = defaultSinkBackoffInitial
	}
	if cfg.SinkBackoffMax < cfg.SinkBackoffInitial {
		cfg.SinkBackoffMax = max(defaultSinkBackoffMax, cfg.SinkBackoffInitial)
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.FetchErrorPause <= 0 {
		cfg.FetchErrorPause = defaultFetchErrorPause
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = defaultCommitTimeout
	}

	return &Driver{
		reader:      deps.Reader,
		oracle:      deps.Oracle,
		sink:        deps.Sink,
		deadLetters: deps.DeadLetters,
		observer:    deps.Observer,
		logger:      deps.Logger,
		now:         deps.Clock,
		cfg:         cfg,
	}, nil
}

// Run consumes until ctx is cancelled. Messages already received are finished and
// committed before Run returns; a nil error means a clean shutdown.
//
// Per message:
//  1. receive from the stream (commit here in at-most-once mode)
//  2. decode the telemetry payload
//  3. fetch a price quote
//  4. build the session record
//  5. persist it, retrying connection failures
//  6. commit (at-least-once mode)
//
// Failures in 2-5 route the message to the dead-letter sink and never stop the loop.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("starting pricing pipeline",
		zap.String("commit_mode", string(d.cfg.CommitMode)),
		zap.Int("workers", d.cfg.Workers),
		zap.Bool("ordered_commit", !d.cfg.UnorderedCommit),
		zap.Int("sink_max_attempts", d.cfg.SinkMaxAttempts),
	)

	var err error
	if d.cfg.Workers == 1 {
		err = d.runSequential(ctx)
	} else {
		err = d.runPool(ctx)
	}

	if err != nil {
		return err
	}
	d.logger.Info("pricing pipeline stopped")
	return nil
}

func (d *Driver) runSequential(ctx context.Context) error {
	workCtx := context.WithoutCancel(ctx)
	for {
		msg, err := d.receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if d.cfg.CommitMode == AtMostOnce {
			d.commit(ctx, msg)
		}

		d.Process(workCtx, msg)

		if d.cfg.CommitMode == AtLeastOnce {
			d.commit(ctx, msg)
		}
	}
}

// receive blocks for the next message, pausing after transient fetch errors.
func (d *Driver) receive(ctx context.Context) (kafka.Message, error) {
	for {
		msg, err := d.reader.FetchMessage(ctx)
		if err == nil {
			return msg, nil
		}
		if ctx.Err() != nil {
			return kafka.Message{}, ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return kafka.Message{}, fmt.Errorf("pipeline: stream reader closed: %w", err)
		}

		d.logger.Error("kafka fetch failed", zap.Error(err), zap.Duration("pause", d.cfg.FetchErrorPause))
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(d.cfg.FetchErrorPause):
		}
	}
}

func (d *Driver) commit(ctx context.Context, msg kafka.Message) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.CommitTimeout)
	defer cancel()

	err := d.reader.CommitMessages(commitCtx, msg)
	d.observer.ObserveCommit(err)
	if err != nil {
		d.logger.Warn("failed to commit offset",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}

// Process runs one message through decode, enrich, build and persist. It never
// returns an error: failures end in DeadLettered or Dropped.
func (d *Driver) Process(ctx context.Context, msg kafka.Message) Outcome {
	started := time.Now()
	outcome := d.process(ctx, msg)
	d.observer.ObserveOutcome(outcome.String(), time.Since(started))
	return outcome
}

func (d *Driver) process(ctx context.Context, msg kafka.Message) Outcome {
	logger := d.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	event, err := decoder.Decode(msg.Value)
	if err != nil {
		return d.fail(ctx, msg, logger, StageDecode, "", err)
	}

	logger = logger.With(zap.String("car_id", event.CarID))
	logger.Debug("telemetry received",
		zap.Float64("battery", event.Battery),
		zap.Float64("lat", event.Latitude),
		zap.Float64("lon", event.Longitude),
	)

	quote, err := d.oracle.FetchQuote(ctx)
	if err != nil {
		return d.fail(ctx, msg, logger, StageEnrich, event.CarID, err)
	}

	record := service.BuildSessionRecord(event, quote, d.now())
	if d.cfg.IdempotentInserts {
		record.SourceRef = SourceRef(msg)
	}

	if err := d.persist(ctx, record, logger); err != nil {
		return d.fail(ctx, msg, logger, StagePersist, event.CarID, err)
	}

	logger.Info("session persisted",
		zap.String("session_id", record.SessionID),
		zap.String("station_id", record.StationID),
		zap.Float64("kwh_usage", record.KWhUsage),
		zap.Float64("price_rate", record.PriceRate),
		zap.String("grid_load", quote.GridLoad),
	)
	return Delivered
}

func (d *Driver) persist(ctx context.Context, record models.SessionRecord, logger *zap.Logger) error {
	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.SinkTimeout)
		err := d.sink.Persist(attemptCtx, record)
		cancel()

		d.observer.ObserveSinkAttempt(err)
		if err == nil {
			return struct{}{}, nil
		}
		var sinkErr *repository.SinkError
		if errors.As(err, &sinkErr) && !sinkErr.Kind.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.SinkBackoffInitial
	b.MaxInterval = d.cfg.SinkBackoffMax

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.cfg.SinkMaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("persist failed",
				zap.Stringer("outcome", Retrying),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return err
}

// fail records a stage failure and routes the message to the dead-letter sink.
func (d *Driver) fail(ctx context.Context, msg kafka.Message, logger *zap.Logger, stage, carID string, err error) Outcome {
	kind := failureKind(err)
	d.observer.ObserveStageFailure(stage, kind)
	logger.Error("message processing failed",
		zap.String("stage", stage),
		zap.String("kind", kind),
		zap.Error(err),
	)

	if d.deadLetters == nil {
		return Dropped
	}

	entry := deadletter.Entry{
		Stage:     stage,
		Kind:      kind,
		Error:     err.Error(),
		CarID:     carID,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Payload:   msg.Value,
		FailedAt:  d.now().UTC(),
	}
	if pubErr := d.deadLetters.Publish(ctx, entry); pubErr != nil {
		if !errors.Is(pubErr, deadletter.ErrNotPreserved) {
			logger.Error("dead-letter publish failed", zap.String("stage", stage), zap.Error(pubErr))
		}
		return Dropped
	}

	logger.Warn("message dead-lettered", zap.String("stage", stage), zap.String("kind", kind))
	return DeadLettered
}

// SourceRef identifies msg as topic/partition/offset.
func SourceRef(msg kafka.Message) string {
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}

func failureKind(err error) string {
	var (
		decodeErr *decoder.Error
		oracleErr *clients.OracleError
		sinkErr   *repository.SinkError
	)
	switch {
	case errors.As(err, &decodeErr):
		return decodeErr.Kind.String()
	case errors.As(err, &oracleErr):
		return oracleErr.Kind.String()
	case errors.As(err, &sinkErr):
		return sinkErr.Kind.String()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(string, time.Duration) {}
func (nopObserver) ObserveStageFailure(string, string)   {}
func (nopObserver) ObserveSinkAttempt(error)             {}
func (nopObserver) ObserveCommit(error)                  {}
