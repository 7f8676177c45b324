// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for live-stream lookup, using a cached app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/streamwatch/telemetry"
)

// DefaultHelixURL is the Helix API base.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// maxLoginsPerRequest is Helix's cap on repeated user_login parameters.
const maxLoginsPerRequest = 100

// FetchError reports a failed streams query (transport, status or decode).
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("helix streams request failed (%d): %v", e.StatusCode, e.Err)
	}
	return "helix streams request failed: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// HelixClient provides the Helix calls needed for live-status reconciliation.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	// BaseURL defaults to DefaultHelixURL.
	BaseURL    string
	HTTPClient *http.Client
	// InvalidateOnUnauthorized drops the cached app token after a 401 from Helix.
	InvalidateOnUnauthorized bool
}

// Stream is the subset of a Helix stream object the service reads.
type Stream struct {
	UserLogin string    `json:"user_login"`
	UserName  string    `json:"user_name"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultHelixURL
}

// GetStreams lists the currently live streams among logins. Logins are sent in batches of 100.
func (hc *HelixClient) GetStreams(ctx context.Context, logins ...string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	var out []Stream
	for start := 0; start < len(logins); start += maxLoginsPerRequest {
		end := min(start+maxLoginsPerRequest, len(logins))
		streams, err := hc.getStreamsBatch(ctx, tok, logins[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, streams...)
	}
	return out, nil
}

func (hc *HelixClient) getStreamsBatch(ctx context.Context, tok string, logins []string) ([]Stream, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix.streams", attribute.Int("logins", len(logins)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/streams", nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	q := req.URL.Query()
	for _, l := range logins {
		q.Add("user_login", l)
	}
	// without first= Helix pages at 20 and live streams past the first page would be missed
	q.Set("first", strconv.Itoa(len(logins)))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := hc.http().Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &FetchError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized && hc.InvalidateOnUnauthorized {
			hc.AppTokenSource.Invalidate()
		}
		ferr := &FetchError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(b)))}
		telemetry.RecordError(span, ferr)
		return nil, ferr
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		telemetry.RecordError(span, err)
		return nil, &FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode streams: %w", err)}
	}
	telemetry.SetSpanSuccess(span)
	return body.Data, nil
}

// LiveStatus maps every case-folded, de-duplicated username to whether Helix reports it live.
// An empty input returns an empty map without touching the token source or the network.
func (hc *HelixClient) LiveStatus(ctx context.Context, usernames []string) (map[string]bool, error) {
	status := make(map[string]bool, len(usernames))
	if len(usernames) == 0 {
		return status, nil
	}
	logins := make([]string, 0, len(usernames))
	for _, u := range usernames {
		key := strings.ToLower(u)
		if key == "" {
			continue
		}
		if _, seen := status[key]; seen {
			continue
		}
		status[key] = false
		logins = append(logins, key)
	}
	if len(logins) == 0 {
		return status, nil
	}

	streams, err := hc.GetStreams(ctx, logins...)
	if err != nil {
		return nil, err
	}
	for _, s := range streams {
		key := strings.ToLower(s.UserLogin)
		if _, requested := status[key]; requested {
			status[key] = true
		}
	}
	return status, nil
}
