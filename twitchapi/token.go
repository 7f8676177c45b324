package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/onnwee/streamwatch/telemetry"
)

// DefaultTokenURL is Twitch's OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// AuthExchangeError reports a failed client-credentials exchange. Nothing is cached when it is returned.
type AuthExchangeError struct {
	Err error
}

func (e *AuthExchangeError) Error() string { return "twitch token exchange failed: " + e.Err.Error() }
func (e *AuthExchangeError) Unwrap() error { return e.Err }

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// One instance is meant to be shared by everything in the process that talks to Helix.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	// TokenURL defaults to DefaultTokenURL.
	TokenURL   string
	HTTPClient *http.Client
	// Now defaults to time.Now.
	Now func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns the cached token while now < expiresAt, otherwise performs a new exchange.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && ts.now().Before(ts.expiresAt) {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

// Invalidate drops the cached token so the next Get exchanges again.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiresAt = time.Time{}
	ts.mu.Unlock()
}

// ExpiresAt returns the expiry of the cached token (zero when none is cached).
func (ts *TokenSource) ExpiresAt() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.expiresAt
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	// another caller may have refreshed while we waited for the lock
	if ts.token != "" && ts.now().Before(ts.expiresAt) {
		return ts.token, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		telemetry.ObserveTokenExchange(false)
		return "", &AuthExchangeError{Err: errors.New("missing client id/secret for twitch app token")}
	}

	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cc := clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}

	start := ts.now()
	tok, err := cc.Token(ctx)
	if err != nil {
		telemetry.ObserveTokenExchange(false)
		return "", &AuthExchangeError{Err: err}
	}
	if tok.AccessToken == "" {
		telemetry.ObserveTokenExchange(false)
		return "", &AuthExchangeError{Err: errors.New("empty access_token in twitch response")}
	}

	expiresAt := tok.Expiry
	if ttl, ok := expiresIn(tok); ok {
		expiresAt = start.Add(ttl)
	}
	ts.token = tok.AccessToken
	ts.expiresAt = expiresAt
	telemetry.ObserveTokenExchange(true)
	slog.Debug("twitch app token acquired", slog.Time("expires_at", expiresAt), slog.String("component", "twitch_token"))
	return ts.token, nil
}

// expiresIn reads the raw expires_in so expiry is computed against our own clock.
func expiresIn(tok *oauth2.Token) (time.Duration, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second, true
	case int64:
		return time.Duration(v) * time.Second, true
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return time.Duration(n) * time.Second, true
		}
	}
	return 0, false
}

func (ts *TokenSource) now() time.Time {
	if ts.Now != nil {
		return ts.Now()
	}
	return time.Now()
}
