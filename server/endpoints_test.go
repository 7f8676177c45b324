package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/streamwatch/reconcile"
	"github.com/onnwee/streamwatch/streamer"
	"github.com/onnwee/streamwatch/testutil"
)

func postStreamer(t *testing.T, env *testEnv, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/users/"+userID+"/streamers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return env.do(req)
}

func decodeAccounts(t *testing.T, rr *httptest.ResponseRecorder) []streamer.TrackedAccount {
	t.Helper()
	var out []streamer.TrackedAccount
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode accounts: %v (body=%s)", err, rr.Body.String())
	}
	return out
}

func TestCreateStreamer(t *testing.T) {
	env := newTestEnv(t)

	rr := postStreamer(t, env, "user-1", `{"platform":"twitch","username":"  Shroud "}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var raw map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"id", "userId", "platform", "username", "isLive", "lastCheck", "createdAt"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("response missing %q: %v", key, raw)
		}
	}
	if raw["username"] != "shroud" || raw["userId"] != "user-1" || raw["isLive"] != false {
		t.Errorf("unexpected record: %v", raw)
	}
}

func TestCreateStreamerValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"platform":`},
		{"unknown platform", `{"platform":"myspace","username":"tom"}`},
		{"empty username", `{"platform":"twitch","username":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postStreamer(t, env, "user-1", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestListStreamersRefreshesStatus(t *testing.T) {
	env := newTestEnv(t)
	env.twitch.MockLiveLogins("shroud")
	postStreamer(t, env, "user-1", `{"platform":"twitch","username":"shroud"}`)
	postStreamer(t, env, "user-1", `{"platform":"twitch","username":"summit1g"}`)
	postStreamer(t, env, "user-1", `{"platform":"youtube","username":"pokimane"}`)
	postStreamer(t, env, "user-2", `{"platform":"twitch","username":"other"}`)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/users/user-1/streamers", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	accounts := decodeAccounts(t, rr)
	if len(accounts) != 3 {
		t.Fatalf("expected 3 accounts for user-1, got %d", len(accounts))
	}
	live := map[string]bool{}
	for _, a := range accounts {
		live[a.Username] = a.IsLive
	}
	if !live["shroud"] || live["summit1g"] || live["pokimane"] {
		t.Errorf("unexpected live map: %v", live)
	}
	if env.twitch.StreamsCalls.Load() != 1 {
		t.Errorf("expected a single batched status request, got %d", env.twitch.StreamsCalls.Load())
	}

	env.flush(t)
	stored, err := env.store.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	for _, a := range stored {
		if a.Username == "shroud" && (!a.IsLive || a.LastCheck == nil) {
			t.Errorf("shroud status not persisted: %+v", a)
		}
	}
}

func TestListStreamersFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	acct, err := env.store.Create(context.Background(), "user-1", streamer.PlatformTwitch, "ninja")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := env.store.UpdateStatus(context.Background(), streamer.PlatformTwitch, acct.Username, true, acct.CreatedAt); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	env.twitch.MockStreamsStatus(http.StatusInternalServerError, "boom")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/users/user-1/streamers", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 despite upstream failure, got %d", rr.Code)
	}
	accounts := decodeAccounts(t, rr)
	if len(accounts) != 1 || !accounts[0].IsLive {
		t.Errorf("expected persisted live status, got %+v", accounts)
	}
}

func TestListStreamersEmpty(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/users/nobody/streamers", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", rr.Body.String())
	}
	if env.twitch.StreamsCalls.Load() != 0 || env.twitch.TokenCalls.Load() != 0 {
		t.Error("no upstream calls expected for an empty list")
	}
}

func TestListLiveStreamers(t *testing.T) {
	env := newTestEnv(t)
	env.twitch.MockLiveLogins("xqc")
	postStreamer(t, env, "user-1", `{"platform":"twitch","username":"xQc"}`)
	postStreamer(t, env, "user-1", `{"platform":"twitch","username":"offline_guy"}`)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/users/user-1/streamers/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	accounts := decodeAccounts(t, rr)
	if len(accounts) != 1 || accounts[0].Username != "xqc" {
		t.Errorf("expected only xqc, got %+v", accounts)
	}
}

func TestDeleteStreamer(t *testing.T) {
	env := newTestEnv(t)
	acct, err := env.store.Create(context.Background(), "user-1", streamer.PlatformKick, "trainwreck")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rr := env.do(httptest.NewRequest(http.MethodDelete, "/api/users/user-2/streamers/"+acct.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("deleting another user's account: expected 404, got %d", rr.Code)
	}

	rr = env.do(httptest.NewRequest(http.MethodDelete, "/api/users/user-1/streamers/"+acct.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(httptest.NewRequest(http.MethodDelete, "/api/users/user-1/streamers/"+acct.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rr.Code)
	}
}

func cronRequest(secret string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/cron/update-streamers", nil)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	return req
}

func TestCronUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	for _, secret := range []string{"", "wrong"} {
		rr := env.do(cronRequest(secret))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("secret %q: expected 401, got %d", secret, rr.Code)
		}
		if strings.TrimSpace(rr.Body.String()) != "Unauthorized" {
			t.Errorf("secret %q: expected Unauthorized body, got %q", secret, rr.Body.String())
		}
	}
	if env.twitch.StreamsCalls.Load() != 0 {
		t.Error("unauthorized cron must not reach Twitch")
	}
}

func TestCronUpdatesAllUsers(t *testing.T) {
	env := newTestEnv(t)
	env.twitch.MockLiveLogins("shroud")
	ctx := context.Background()
	for _, u := range []string{"user-1", "user-2"} {
		if _, err := env.store.Create(ctx, u, streamer.PlatformTwitch, "shroud"); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := env.store.Create(ctx, "user-2", streamer.PlatformTwitch, "lirik"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rr := env.do(cronRequest(testCronSecret))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Success  bool  `json:"success"`
		Accounts int   `json:"accounts"`
		Checked  int   `json:"checked"`
		Live     int   `json:"live"`
		Updated  int64 `json:"updated"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Accounts != 3 || resp.Checked != 2 || resp.Live != 1 || resp.Updated != 3 {
		t.Errorf("unexpected cron response: %+v", resp)
	}

	accounts, err := env.store.ListByPlatform(ctx, streamer.PlatformTwitch)
	if err != nil {
		t.Fatalf("ListByPlatform: %v", err)
	}
	for _, a := range accounts {
		if a.LastCheck == nil {
			t.Errorf("%s/%s not checked", a.UserID, a.Username)
		}
		if a.IsLive != (a.Username == "shroud") {
			t.Errorf("%s/%s isLive = %v", a.UserID, a.Username, a.IsLive)
		}
	}
}

type failingReconciler struct{}

func (failingReconciler) Scoped(context.Context, string) ([]streamer.TrackedAccount, error) {
	return nil, &reconcile.LoadError{Err: errors.New("db down")}
}

func (f failingReconciler) Live(ctx context.Context, userID string) ([]streamer.TrackedAccount, error) {
	return f.Scoped(ctx, userID)
}

func (failingReconciler) Global(context.Context) (reconcile.GlobalResult, error) {
	return reconcile.GlobalResult{}, &reconcile.LoadError{Err: errors.New("db down")}
}

func TestLoadFailuresReturnInternalError(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	database, _ := testutil.SetupTestDB(t)
	h := NewMux(context.Background(), Deps{DB: database, Reconciler: failingReconciler{}, CronSecret: testCronSecret})

	for _, req := range []*http.Request{
		cronRequest(testCronSecret),
		httptest.NewRequest(http.MethodGet, "/api/users/u1/streamers", nil),
		httptest.NewRequest(http.MethodGet, "/api/users/u1/streamers/live", nil),
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", req.URL.Path, rr.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil || body["error"] != "Internal Server Error" {
			t.Errorf("%s: unexpected body %v (err=%v)", req.URL.Path, body, err)
		}
	}
}

type staticReconciler struct{ failingReconciler }

func (staticReconciler) Global(context.Context) (reconcile.GlobalResult, error) {
	return reconcile.GlobalResult{Accounts: 1, Checked: 1}, nil
}

func TestCronRejectsBeforeRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "1")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "1")
	database, _ := testutil.SetupTestDB(t)
	h := NewMux(context.Background(), Deps{DB: database, Reconciler: staticReconciler{}, CronSecret: testCronSecret})

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, cronRequest("wrong"))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("unauthorized request %d: expected 401, got %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, cronRequest(testCronSecret))
	if rr.Code != http.StatusOK {
		t.Fatalf("authorized request after rejected ones: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, cronRequest(testCronSecret))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second authorized request: expected 429, got %d", rr.Code)
	}
}
