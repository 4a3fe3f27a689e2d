package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"greenlane/backend/services/pricing-worker/internal/deadletter"
	"greenlane/backend/services/pricing-worker/internal/models"
)

// eventLog records the order of reader and sink calls across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fetchResult struct {
	msg kafka.Message
	err error
}

// fakeReader hands out queued results, then blocks until ctx is cancelled.
type fakeReader struct {
	mu      sync.Mutex
	queue   []fetchResult
	commits []kafka.Message
	log     *eventLog
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{}
	for _, msg := range msgs {
		r.queue = append(r.queue, fetchResult{msg: msg})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return next.msg, next.err
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.log.add("commit %d", msg.Offset)
	}
	r.commits = append(r.commits, msgs...)
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make([]int64, 0, len(r.commits))
	for _, msg := range r.commits {
		offsets = append(offsets, msg.Offset)
	}
	return offsets
}

// fakeOracle returns the queued results in order, then the fallback quote.
type fakeOracle struct {
	mu      sync.Mutex
	results []error
	quote   models.PriceQuote
	calls   int
}

func (o *fakeOracle) FetchQuote(ctx context.Context) (models.PriceQuote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if len(o.results) > 0 {
		err := o.results[0]
		o.results = o.results[1:]
		if err != nil {
			return models.PriceQuote{}, err
		}
	}
	return o.quote, nil
}

// fakeSink persists records in memory. errs are returned in order for the first calls.
type fakeSink struct {
	mu      sync.Mutex
	errs    []error
	records []models.SessionRecord
	calls   int
	log     *eventLog
	// hold, when set, is called before each persist and may block.
	hold func(record models.SessionRecord)
}

func (s *fakeSink) Persist(ctx context.Context, record models.SessionRecord) error {
	if s.hold != nil {
		s.hold(record)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.add("persist %s", record.CarID)
	s.records = append(s.records, record)
	return nil
}

func (s *fakeSink) snapshot() []models.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SessionRecord(nil), s.records...)
}

func (s *fakeSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeDeadLetters struct {
	mu      sync.Mutex
	entries []deadletter.Entry
	err     error
}

func (f *fakeDeadLetters) Publish(_ context.Context, entry deadletter.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	failures []string
	sinks    int
	commits  int
}

func (r *outcomeRecorder) ObserveOutcome(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *outcomeRecorder) ObserveStageFailure(stage, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage+"/"+kind)
}

func (r *outcomeRecorder) ObserveSinkAttempt(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks++
}

func (r *outcomeRecorder) ObserveCommit(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits++
}

func telemetryMessage(offset int64, carID string, battery float64) kafka.Message {
	return kafka.Message{
		Topic:     "fleet-events",
		Partition: 0,
		Offset:    offset,
		Key:       []byte(carID),
		Value: []byte(fmt.Sprintf(
			`{"car_id":%q,"lat":52.52,"lon":13.405,"battery":%g,"velocity":42.5,"timestamp":1000,"event_type":"telemetry"}`,
			carID, battery,
		)),
	}
}

func fixedClock() time.Time {
	return time.Unix(1000, 0)
}
