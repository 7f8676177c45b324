// Package reconcile ties persisted tracked accounts to fresh live status from Twitch.
//
// Two flows share the same primitives:
//   - Scoped: one user's accounts, merged in memory and returned immediately; the new
//     status is written back through a background queue the caller never waits on.
//   - Global: every twitch account across all users, written back synchronously.
//
// Status fetching fails open: any upstream error becomes an empty result, which the
// merge treats as "no change" and the write-back treats as "nothing to write".
package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/streamwatch/streamer"
	"github.com/onnwee/streamwatch/telemetry"
)

// StatusSource reports live status for a batch of usernames on the integrated platform.
type StatusSource interface {
	LiveStatus(ctx context.Context, usernames []string) (map[string]bool, error)
}

// StatusWriter applies an update to every row matching (platform, username).
type StatusWriter interface {
	UpdateStatus(ctx context.Context, platform streamer.Platform, username string, isLive bool, checkedAt time.Time) (int64, error)
}

// Store is the persistence the reconciler reads from and writes to.
type Store interface {
	StatusWriter
	ListByUser(ctx context.Context, userID string) ([]streamer.TrackedAccount, error)
	ListByPlatform(ctx context.Context, platform streamer.Platform) ([]streamer.TrackedAccount, error)
}

// UpdateQueue accepts detached status writes without blocking.
type UpdateQueue interface {
	Submit(u StatusUpdate) bool
}

// StatusUpdate is one write-back of a fetched status.
type StatusUpdate struct {
	Platform  streamer.Platform
	Username  string
	IsLive    bool
	CheckedAt time.Time
}

// Options tunes a Reconciler.
type Options struct {
	// UpdateConcurrency bounds parallel writes in the global flow (default 8).
	UpdateConcurrency int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Reconciler runs scoped and global reconciliations.
type Reconciler struct {
	store  Store
	source StatusSource
	queue  UpdateQueue

	updateConcurrency int
	now               func() time.Time
}

// New builds a Reconciler. queue receives the scoped flow's detached writes.
func New(store Store, source StatusSource, queue UpdateQueue, opts Options) *Reconciler {
	if opts.UpdateConcurrency <= 0 {
		opts.UpdateConcurrency = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		store:             store,
		source:            source,
		queue:             queue,
		updateConcurrency: opts.UpdateConcurrency,
		now:               opts.Now,
	}
}

// FetchStatus returns case-folded username -> live for the integrated platform.
// It never fails: errors are logged and yield an empty map.
func (r *Reconciler) FetchStatus(ctx context.Context, usernames []string) map[string]bool {
	if len(usernames) == 0 {
		telemetry.ObserveStatusFetchSkipped()
		return map[string]bool{}
	}
	status, err := r.source.LiveStatus(ctx, usernames)
	if err != nil {
		telemetry.ObserveStatusFetch(false)
		telemetry.LoggerWithCorr(ctx).Warn("live status fetch failed; keeping last known status",
			slog.Int("usernames", len(usernames)),
			slog.Any("err", err),
			slog.String("component", "reconcile"))
		return map[string]bool{}
	}
	telemetry.ObserveStatusFetch(true)
	if status == nil {
		status = map[string]bool{}
	}
	return status
}

// Scoped reconciles one user's tracked accounts. The merged list is returned without
// waiting for persistence; write-back is handed to the update queue.
func (r *Reconciler) Scoped(ctx context.Context, userID string) (accounts []streamer.TrackedAccount, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "reconcile", "reconcile.scoped", attribute.String("user_id", userID))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		telemetry.ObserveReconcile("scoped", err == nil, time.Since(start))
	}()

	accounts, err = r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, &LoadError{Err: err}
	}

	status := r.FetchStatus(ctx, liveUsernames(accounts))
	merged := Merge(accounts, status)

	checkedAt := r.now()
	for _, username := range sortedKeys(status) {
		u := StatusUpdate{Platform: streamer.PlatformTwitch, Username: username, IsLive: status[username], CheckedAt: checkedAt}
		if !r.queue.Submit(u) {
			telemetry.LoggerWithCorr(ctx).Warn("status write-back not queued",
				slog.String("username", username),
				slog.String("component", "reconcile"))
		}
	}
	span.SetAttributes(attribute.Int("accounts", len(merged)), attribute.Int("fetched", len(status)))
	return merged, nil
}

// Live is Scoped filtered to accounts currently live.
func (r *Reconciler) Live(ctx context.Context, userID string) ([]streamer.TrackedAccount, error) {
	all, err := r.Scoped(ctx, userID)
	if err != nil {
		return nil, err
	}
	live := make([]streamer.TrackedAccount, 0, len(all))
	for _, a := range all {
		if a.IsLive {
			live = append(live, a)
		}
	}
	return live, nil
}

// GlobalResult summarizes a global reconciliation.
type GlobalResult struct {
	Accounts    int   `json:"accounts"`
	Checked     int   `json:"checked"`
	Live        int   `json:"live"`
	RowsUpdated int64 `json:"updated"`
}

// Global reconciles every twitch account across all users and waits for the writes.
// It fails when loading fails or when any write fails.
func (r *Reconciler) Global(ctx context.Context) (res GlobalResult, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "reconcile", "reconcile.global")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		telemetry.ObserveReconcile("global", err == nil, time.Since(start))
	}()

	accounts, err := r.store.ListByPlatform(ctx, streamer.PlatformTwitch)
	if err != nil {
		return GlobalResult{}, &LoadError{Err: err}
	}
	res.Accounts = len(accounts)

	usernames := liveUsernames(accounts)
	status := r.FetchStatus(ctx, usernames)
	res.Checked = len(status)
	for _, live := range status {
		if live {
			res.Live++
		}
	}
	if len(usernames) == 0 || len(status) > 0 {
		telemetry.SetLiveStreamers(res.Live)
	}

	// A failed write does not cancel its siblings; Wait reports the first error.
	checkedAt := r.now()
	var updated atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.updateConcurrency)
	for _, username := range sortedKeys(status) {
		isLive := status[username]
		g.Go(func() error {
			n, werr := r.store.UpdateStatus(ctx, streamer.PlatformTwitch, username, isLive, checkedAt)
			telemetry.ObserveStatusWrite(werr == nil)
			if werr != nil {
				return &PersistenceError{Platform: streamer.PlatformTwitch, Username: username, Err: werr}
			}
			updated.Add(n)
			return nil
		})
	}
	err = g.Wait()
	res.RowsUpdated = updated.Load()
	if err != nil {
		return res, err
	}

	slog.Info("global reconciliation complete",
		slog.Int("accounts", res.Accounts),
		slog.Int("checked", res.Checked),
		slog.Int("live", res.Live),
		slog.Int64("rows_updated", res.RowsUpdated),
		slog.String("component", "reconcile"))
	return res, nil
}

// Merge annotates accounts with fetched status. Twitch accounts absent from status keep
// their persisted value; platforms without live integration are always offline.
func Merge(accounts []streamer.TrackedAccount, status map[string]bool) []streamer.TrackedAccount {
	out := make([]streamer.TrackedAccount, len(accounts))
	for i, a := range accounts {
		switch {
		case !a.Platform.HasLiveIntegration():
			a.IsLive = false
		default:
			if live, ok := status[streamer.NormalizeUsername(a.Username)]; ok {
				a.IsLive = live
			}
		}
		out[i] = a
	}
	return out
}

// liveUsernames returns the join keys of accounts with live integration, case-folded
// the same way Merge and the store match them.
func liveUsernames(accounts []streamer.TrackedAccount) []string {
	var out []string
	for _, a := range accounts {
		if a.Platform.HasLiveIntegration() {
			out = append(out, streamer.NormalizeUsername(a.Username))
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
