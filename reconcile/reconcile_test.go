package reconcile

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/streamwatch/streamer"
)

type fakeSource struct {
	mu     sync.Mutex
	status map[string]bool
	err    error
	calls  [][]string
}

func (f *fakeSource) LiveStatus(_ context.Context, usernames []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), usernames...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]bool, len(f.status))
	for k, v := range f.status {
		out[k] = v
	}
	return out, nil
}

type fakeStore struct {
	mu        sync.Mutex
	accounts  []streamer.TrackedAccount
	loadErr   error
	updateErr map[string]error
	updates   []StatusUpdate
}

func (f *fakeStore) ListByUser(_ context.Context, userID string) ([]streamer.TrackedAccount, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []streamer.TrackedAccount
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByPlatform(_ context.Context, platform streamer.Platform) ([]streamer.TrackedAccount, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []streamer.TrackedAccount
	for _, a := range f.accounts {
		if a.Platform == platform {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, platform streamer.Platform, username string, isLive bool, checkedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[username]; err != nil {
		return 0, err
	}
	f.updates = append(f.updates, StatusUpdate{Platform: platform, Username: username, IsLive: isLive, CheckedAt: checkedAt})
	var n int64
	for _, a := range f.accounts {
		if a.Platform == platform && streamer.NormalizeUsername(a.Username) == username {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) sortedUpdates() []StatusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]StatusUpdate(nil), f.updates...)
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

type fakeQueue struct {
	mu        sync.Mutex
	submitted []StatusUpdate
}

func (q *fakeQueue) Submit(u StatusUpdate) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = append(q.submitted, u)
	return true
}

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestReconciler(store *fakeStore, source *fakeSource) (*Reconciler, *fakeQueue) {
	q := &fakeQueue{}
	r := New(store, source, q, Options{Now: func() time.Time { return fixedNow }})
	return r, q
}

func acct(id, user string, p streamer.Platform, name string, live bool) streamer.TrackedAccount {
	return streamer.TrackedAccount{ID: id, UserID: user, Platform: p, Username: name, IsLive: live}
}

func TestScopedMergesFetchedStatus(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, "shroud", false),
		acct("2", "u1", streamer.PlatformYouTube, "pokimane", true),
	}}
	source := &fakeSource{status: map[string]bool{"shroud": true}}
	r, q := newTestReconciler(store, source)

	got, err := r.Scoped(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Scoped() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Scoped() returned %d accounts, want 2", len(got))
	}
	if !got[0].IsLive {
		t.Error("shroud should be live")
	}
	if got[1].IsLive {
		t.Error("youtube account should always be offline")
	}
	if !reflect.DeepEqual(source.calls, [][]string{{"shroud"}}) {
		t.Errorf("fetched usernames = %v, want [[shroud]]", source.calls)
	}
	want := []StatusUpdate{{Platform: streamer.PlatformTwitch, Username: "shroud", IsLive: true, CheckedAt: fixedNow}}
	if !reflect.DeepEqual(q.submitted, want) {
		t.Errorf("submitted = %+v, want %+v", q.submitted, want)
	}
	if len(store.updates) != 0 {
		t.Error("scoped flow must not write synchronously")
	}
}

func TestScopedFetchFailureKeepsPersistedStatus(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, "ninja", true),
		acct("2", "u1", streamer.PlatformTwitch, "other", false),
	}}
	source := &fakeSource{err: errors.New("upstream down")}
	r, q := newTestReconciler(store, source)

	got, err := r.Scoped(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Scoped() error = %v", err)
	}
	if !got[0].IsLive || got[1].IsLive {
		t.Errorf("persisted status not preserved: %+v", got)
	}
	if len(q.submitted) != 0 {
		t.Errorf("no write-back expected on fetch failure, got %+v", q.submitted)
	}
}

func TestScopedAbsentKeyKeepsPersistedStatus(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, "alice", true),
		acct("2", "u1", streamer.PlatformTwitch, "Bob", true),
	}}
	source := &fakeSource{status: map[string]bool{"bob": false}}
	r, _ := newTestReconciler(store, source)

	got, err := r.Scoped(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Scoped() error = %v", err)
	}
	if !got[0].IsLive {
		t.Error("alice absent from result should keep persisted live status")
	}
	if got[1].IsLive {
		t.Error("Bob should match case-insensitively and be offline")
	}
}

func TestScopedLoadError(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("db gone")}
	source := &fakeSource{}
	r, q := newTestReconciler(store, source)

	_, err := r.Scoped(context.Background(), "u1")
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Scoped() error = %v, want *LoadError", err)
	}
	if len(source.calls) != 0 || len(q.submitted) != 0 {
		t.Error("nothing should be fetched or written after a load failure")
	}
}

func TestScopedWithoutTwitchAccountsSkipsFetch(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformKick, "xqc", true),
	}}
	source := &fakeSource{}
	r, _ := newTestReconciler(store, source)

	got, err := r.Scoped(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Scoped() error = %v", err)
	}
	if len(source.calls) != 0 {
		t.Error("fetch should be skipped with no twitch usernames")
	}
	if got[0].IsLive {
		t.Error("kick account should be offline")
	}
}

func TestScopedEmptyUser(t *testing.T) {
	r, _ := newTestReconciler(&fakeStore{}, &fakeSource{})
	got, err := r.Scoped(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Scoped() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Scoped() = %+v, want empty", got)
	}
}

func TestLiveFiltersOffline(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, "a", false),
		acct("2", "u1", streamer.PlatformTwitch, "b", false),
	}}
	source := &fakeSource{status: map[string]bool{"a": false, "b": true}}
	r, _ := newTestReconciler(store, source)

	got, err := r.Live(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Live() error = %v", err)
	}
	if len(got) != 1 || got[0].Username != "b" {
		t.Errorf("Live() = %+v, want only b", got)
	}
}

func TestGlobalWritesEveryFetchedKey(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, "shroud", false),
		acct("2", "u2", streamer.PlatformTwitch, "shroud", false),
		acct("3", "u2", streamer.PlatformTwitch, "summit1g", true),
		acct("4", "u3", streamer.PlatformYouTube, "mkbhd", false),
	}}
	source := &fakeSource{status: map[string]bool{"shroud": true, "summit1g": false}}
	r, _ := newTestReconciler(store, source)

	res, err := r.Global(context.Background())
	if err != nil {
		t.Fatalf("Global() error = %v", err)
	}
	want := GlobalResult{Accounts: 3, Checked: 2, Live: 1, RowsUpdated: 3}
	if res != want {
		t.Errorf("Global() = %+v, want %+v", res, want)
	}
	updates := store.sortedUpdates()
	wantUpdates := []StatusUpdate{
		{Platform: streamer.PlatformTwitch, Username: "shroud", IsLive: true, CheckedAt: fixedNow},
		{Platform: streamer.PlatformTwitch, Username: "summit1g", IsLive: false, CheckedAt: fixedNow},
	}
	if !reflect.DeepEqual(updates, wantUpdates) {
		t.Errorf("updates = %+v, want %+v", updates, wantUpdates)
	}
}

func TestGlobalLoadErrorMakesNoCalls(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("connection refused")}
	source := &fakeSource{}
	r, _ := newTestReconciler(store, source)

	_, err := r.Global(context.Background())
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Global() error = %v, want *LoadError", err)
	}
	if len(source.calls) != 0 {
		t.Error("no fetch expected after load failure")
	}
	if len(store.updates) != 0 {
		t.Error("no updates expected after load failure")
	}
}

func TestGlobalFetchFailureWritesNothing(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, "shroud", true),
	}}
	r, _ := newTestReconciler(store, &fakeSource{err: errors.New("timeout")})

	res, err := r.Global(context.Background())
	if err != nil {
		t.Fatalf("Global() error = %v, want nil", err)
	}
	if res.Checked != 0 || len(store.updates) != 0 {
		t.Errorf("expected no writes, got result %+v updates %+v", res, store.updates)
	}
}

func TestGlobalPersistenceError(t *testing.T) {
	store := &fakeStore{
		accounts: []streamer.TrackedAccount{
			acct("1", "u1", streamer.PlatformTwitch, "a", false),
			acct("2", "u1", streamer.PlatformTwitch, "b", false),
		},
		updateErr: map[string]error{"b": errors.New("disk full")},
	}
	r, _ := newTestReconciler(store, &fakeSource{status: map[string]bool{"a": true, "b": true}})

	_, err := r.Global(context.Background())
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Global() error = %v, want *PersistenceError", err)
	}
	if pe.Username != "b" {
		t.Errorf("PersistenceError.Username = %q, want b", pe.Username)
	}
}

func TestGlobalIsIdempotent(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, "a", false),
		acct("2", "u1", streamer.PlatformTwitch, "b", false),
	}}
	r, _ := newTestReconciler(store, &fakeSource{status: map[string]bool{"a": true, "b": false}})

	if _, err := r.Global(context.Background()); err != nil {
		t.Fatalf("first Global() error = %v", err)
	}
	first := store.sortedUpdates()
	store.updates = nil
	if _, err := r.Global(context.Background()); err != nil {
		t.Fatalf("second Global() error = %v", err)
	}
	if second := store.sortedUpdates(); !reflect.DeepEqual(first, second) {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
}

func TestScopedIsIdempotent(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, "shroud", false),
		acct("2", "u1", streamer.PlatformTwitch, "lirik", true),
		acct("3", "u1", streamer.PlatformKick, "xqc", true),
	}}
	r, q := newTestReconciler(store, &fakeSource{status: map[string]bool{"shroud": true, "lirik": false}})

	first, err := r.Scoped(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first Scoped() error = %v", err)
	}
	second, err := r.Scoped(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second Scoped() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("merged output differs: %+v vs %+v", first, second)
	}

	if len(q.submitted) != 4 {
		t.Fatalf("submitted %d updates, want 2 per run", len(q.submitted))
	}
	if !reflect.DeepEqual(q.submitted[:2], q.submitted[2:]) {
		t.Errorf("write-back payloads differ: %+v vs %+v", q.submitted[:2], q.submitted[2:])
	}
}

func TestScopedNormalizesStoredUsernames(t *testing.T) {
	store := &fakeStore{accounts: []streamer.TrackedAccount{
		acct("1", "u1", streamer.PlatformTwitch, " Shroud ", false),
	}}
	source := &fakeSource{status: map[string]bool{"shroud": true}}
	r, q := newTestReconciler(store, source)

	got, err := r.Scoped(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Scoped() error = %v", err)
	}
	if !reflect.DeepEqual(source.calls, [][]string{{"shroud"}}) {
		t.Errorf("fetched usernames = %q, want [[shroud]]", source.calls)
	}
	if !got[0].IsLive {
		t.Error("padded, mixed-case username should match the fetched key")
	}
	if len(q.submitted) != 1 || q.submitted[0].Username != "shroud" {
		t.Errorf("submitted = %+v, want one write for shroud", q.submitted)
	}
}

// slowStore delays writes for one username and fails them if ctx was cancelled meanwhile.
type slowStore struct {
	*fakeStore
	slow string
}

func (s *slowStore) UpdateStatus(ctx context.Context, platform streamer.Platform, username string, isLive bool, checkedAt time.Time) (int64, error) {
	if username == s.slow {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.fakeStore.UpdateStatus(ctx, platform, username, isLive, checkedAt)
}

func TestGlobalFailedWriteDoesNotCancelSiblings(t *testing.T) {
	base := &fakeStore{
		accounts: []streamer.TrackedAccount{
			acct("1", "u1", streamer.PlatformTwitch, "a", false),
			acct("2", "u2", streamer.PlatformTwitch, "z", false),
		},
		updateErr: map[string]error{"a": errors.New("constraint violation")},
	}
	store := &slowStore{fakeStore: base, slow: "z"}
	r := New(store, &fakeSource{status: map[string]bool{"a": true, "z": true}}, &fakeQueue{}, Options{Now: func() time.Time { return fixedNow }})

	_, err := r.Global(context.Background())
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Username != "a" {
		t.Fatalf("Global() error = %v, want *PersistenceError for a", err)
	}
	want := []StatusUpdate{{Platform: streamer.PlatformTwitch, Username: "z", IsLive: true, CheckedAt: fixedNow}}
	if got := base.sortedUpdates(); !reflect.DeepEqual(got, want) {
		t.Errorf("updates = %+v, want the in-flight write for z to complete", got)
	}
}

func TestFetchStatusEmptyInput(t *testing.T) {
	source := &fakeSource{}
	r, _ := newTestReconciler(&fakeStore{}, source)
	got := r.FetchStatus(context.Background(), nil)
	if got == nil || len(got) != 0 {
		t.Errorf("FetchStatus(nil) = %v, want empty map", got)
	}
	if len(source.calls) != 0 {
		t.Error("source should not be called for empty input")
	}
}

func TestMerge(t *testing.T) {
	accounts := []streamer.TrackedAccount{
		acct("1", "u", streamer.PlatformTwitch, "x", true),
		acct("2", "u", streamer.PlatformKick, "x", true),
	}
	got := Merge(accounts, map[string]bool{"x": false})
	if got[0].IsLive || got[1].IsLive {
		t.Errorf("Merge() = %+v, want both offline", got)
	}
	if !accounts[0].IsLive {
		t.Error("Merge must not modify its input")
	}
}
