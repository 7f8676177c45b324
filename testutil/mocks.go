package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// MockTwitchServer serves the token endpoint and Helix streams listing.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	TokenCalls   atomic.Int32
	StreamsCalls atomic.Int32
}

// NewMockTwitchServer creates a new mock Twitch API server.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			m.TokenCalls.Add(1)
		case "/helix/streams":
			m.StreamsCalls.Add(1)
		}
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// TokenURL is the mock's client-credentials endpoint.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// HelixURL is the mock's Helix base URL.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockLiveLogins answers /helix/streams with a stream object for every requested
// user_login that appears (case-insensitively) in live.
func (m *MockTwitchServer) MockLiveLogins(live ...string) {
	set := make(map[string]bool, len(live))
	for _, l := range live {
		set[strings.ToLower(l)] = true
	}
	m.Handlers["/helix/streams"] = func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]interface{}{}
		for _, login := range r.URL.Query()["user_login"] {
			if set[strings.ToLower(login)] {
				data = append(data, map[string]interface{}{
					"user_login": login,
					"type":       "live",
				})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data}) //nolint:errcheck // test mock response
	}
}

// MockStreamsResponse answers /helix/streams with a fixed payload.
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]interface{}) {
	m.Handlers["/helix/streams"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": streams}) //nolint:errcheck // test mock response
	}
}

// MockStreamsStatus answers /helix/streams with a bare status code and body.
func (m *MockTwitchServer) MockStreamsStatus(code int, body string) {
	m.Handlers["/helix/streams"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}
