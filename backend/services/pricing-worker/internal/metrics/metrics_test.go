package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCounters(t *testing.T) {
	p := NewPipeline()

	p.ObserveOutcome("delivered", 20*time.Millisecond)
	p.ObserveOutcome("delivered", 30*time.Millisecond)
	p.ObserveOutcome("dead_lettered", time.Second)
	p.ObserveStageFailure("enrich", "timeout")
	p.ObserveOracleAttempt(nil)
	p.ObserveOracleAttempt(errors.New("refused"))
	p.ObserveSinkAttempt(context.Canceled)
	p.ObserveCommit(nil)

	assert.InDelta(t, 2, testutil.ToFloat64(p.messages.WithLabelValues("delivered")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(p.messages.WithLabelValues("dead_lettered")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(p.stageFailures.WithLabelValues("enrich", "timeout")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(p.oracleAttempts.WithLabelValues("ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(p.oracleAttempts.WithLabelValues("error")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(p.sinkAttempts.WithLabelValues("canceled")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(p.commits.WithLabelValues("ok")), 1e-9)
}

func TestPipelineHandler(t *testing.T) {
	p := NewPipeline()
	p.ObserveOutcome("delivered", time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pricing_worker_messages_total{outcome="delivered"} 1`)
	assert.Contains(t, string(body), "pricing_worker_processing_seconds_bucket")
}
