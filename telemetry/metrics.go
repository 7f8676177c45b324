// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TokenExchanges *prometheus.CounterVec // result=ok|error
	StatusFetches  *prometheus.CounterVec // result=ok|error|skipped
	ReconcileRuns  *prometheus.CounterVec // flow=scoped|global, result=ok|error
	StatusWrites   *prometheus.CounterVec // result=ok|error
	PersistDropped prometheus.Counter

	// Histograms (seconds)
	ReconcileDuration *prometheus.HistogramVec // flow

	// Gauges
	PersistQueueDepth   prometheus.Gauge
	LiveStreamers       prometheus.Gauge
	StatusLastSuccessTS prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamwatch_token_exchanges_total", Help: "Client-credentials token exchanges by result"}, []string{"result"})
		StatusFetches = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamwatch_status_fetches_total", Help: "Live-status fetches by result"}, []string{"result"})
		ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamwatch_reconcile_runs_total", Help: "Reconciliation runs by flow and result"}, []string{"flow", "result"})
		StatusWrites = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamwatch_status_writes_total", Help: "Persisted status update-by-match writes by result"}, []string{"result"})
		PersistDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_persist_dropped_total", Help: "Detached status writes dropped because the queue was full"})
		ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "streamwatch_reconcile_duration_seconds", Help: "Reconciliation duration seconds", Buckets: prometheus.DefBuckets}, []string{"flow"})
		PersistQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_persist_queue_depth", Help: "Pending detached status writes"})
		LiveStreamers = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_live_streamers", Help: "Distinct twitch logins live at the last global reconciliation"})
		StatusLastSuccessTS = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_status_last_success_timestamp_seconds", Help: "Unix time of the last successful live-status fetch"})
	})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveTokenExchange counts a token exchange attempt.
func ObserveTokenExchange(ok bool) {
	if TokenExchanges != nil {
		TokenExchanges.WithLabelValues(result(ok)).Inc()
	}
}

// ObserveStatusFetch counts a status fetch; a success also stamps the staleness gauge.
func ObserveStatusFetch(ok bool) {
	if StatusFetches == nil {
		return
	}
	StatusFetches.WithLabelValues(result(ok)).Inc()
	if ok && StatusLastSuccessTS != nil {
		StatusLastSuccessTS.SetToCurrentTime()
	}
}

// ObserveStatusFetchSkipped counts a fetch short-circuited by an empty username list.
func ObserveStatusFetchSkipped() {
	if StatusFetches != nil {
		StatusFetches.WithLabelValues("skipped").Inc()
	}
}

// ObserveStatusWrite counts one update-by-match write.
func ObserveStatusWrite(ok bool) {
	if StatusWrites != nil {
		StatusWrites.WithLabelValues(result(ok)).Inc()
	}
}

// ObservePersistDropped counts a detached write that could not be queued.
func ObservePersistDropped() {
	if PersistDropped != nil {
		PersistDropped.Inc()
	}
}

// SetPersistQueueDepth records the number of queued detached writes.
func SetPersistQueueDepth(n int) {
	if PersistQueueDepth != nil {
		PersistQueueDepth.Set(float64(n))
	}
}

// SetLiveStreamers records the live count seen by the last global reconciliation.
func SetLiveStreamers(n int) {
	if LiveStreamers != nil {
		LiveStreamers.Set(float64(n))
	}
}

// ObserveReconcile records the outcome and duration of a reconciliation flow.
func ObserveReconcile(flow string, ok bool, d time.Duration) {
	if ReconcileRuns != nil {
		ReconcileRuns.WithLabelValues(flow, result(ok)).Inc()
	}
	if ReconcileDuration != nil {
		ReconcileDuration.WithLabelValues(flow).Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
