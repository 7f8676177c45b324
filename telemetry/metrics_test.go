package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := StatusFetches
	Init()
	if StatusFetches != first {
		t.Error("Init re-registered metrics on second call")
	}
	if TokenExchanges == nil || ReconcileRuns == nil || ReconcileDuration == nil || PersistQueueDepth == nil {
		t.Error("expected all metrics to be initialized")
	}
}

func TestObserveStatusFetchStampsStaleness(t *testing.T) {
	Init()
	StatusLastSuccessTS.Set(0)

	before := testutil.ToFloat64(StatusFetches.WithLabelValues("error"))
	ObserveStatusFetch(false)
	if got := testutil.ToFloat64(StatusFetches.WithLabelValues("error")); got != before+1 {
		t.Errorf("error fetches = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(StatusLastSuccessTS); got != 0 {
		t.Errorf("failed fetch moved staleness gauge to %v", got)
	}

	ObserveStatusFetch(true)
	ts := testutil.ToFloat64(StatusLastSuccessTS)
	if ts < float64(time.Now().Add(-time.Minute).Unix()) {
		t.Errorf("staleness gauge = %v, want roughly now", ts)
	}
}

func TestObserveReconcile(t *testing.T) {
	Init()
	before := testutil.ToFloat64(ReconcileRuns.WithLabelValues("global", "ok"))
	ObserveReconcile("global", true, 250*time.Millisecond)
	if got := testutil.ToFloat64(ReconcileRuns.WithLabelValues("global", "ok")); got != before+1 {
		t.Errorf("global ok runs = %v, want %v", got, before+1)
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("expected empty correlation on bare context")
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation() = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
