package reconcile

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// GlobalRunner is satisfied by *Reconciler.
type GlobalRunner interface {
	Global(ctx context.Context) (GlobalResult, error)
}

// StartScheduler runs a global reconciliation roughly every interval until ctx is done.
// The first run is delayed by a random fraction of the interval so replicas spread out.
func StartScheduler(ctx context.Context, r GlobalRunner, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}
	var initialJitter time.Duration
	if half := int64(interval / 2); half > 0 {
		//nolint:gosec // G404: scheduling jitter only
		initialJitter = time.Duration(rand.Int63n(half))
	}
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			runOnce(ctx, r, interval)
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextDelay(interval)):
			}
		}
	}()
	return done
}

func runOnce(ctx context.Context, r GlobalRunner, interval time.Duration) {
	timeout := interval
	if timeout < 30*time.Second {
		timeout = 30 * time.Second
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := r.Global(ctx2); err != nil && ctx.Err() == nil {
		slog.Warn("scheduled reconciliation failed", slog.Any("err", err), slog.String("component", "scheduler"))
	}
}

// nextDelay is interval +/-20%, never below half the interval.
func nextDelay(interval time.Duration) time.Duration {
	jitterRange := int64(interval / 5)
	if jitterRange <= 0 {
		return interval
	}
	//nolint:gosec // G404: scheduling jitter only
	next := interval + time.Duration(rand.Int63n(jitterRange*2)-jitterRange)
	if next < interval/2 {
		next = interval / 2
	}
	return next
}
