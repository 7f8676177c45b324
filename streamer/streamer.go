// Package streamer holds the tracked-account model and its SQL store.
package streamer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Platform is the external service a tracked account lives on.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
	PlatformKick    Platform = "kick"
)

// Platforms lists every platform accepted for tracking.
var Platforms = []Platform{PlatformTwitch, PlatformYouTube, PlatformKick}

// HasLiveIntegration reports whether live status can be fetched for the platform.
func (p Platform) HasLiveIntegration() bool { return p == PlatformTwitch }

// Valid reports whether p is one of Platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePlatform case-folds s and validates it.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalid, s)
	}
	return p, nil
}

var (
	// ErrNotFound is returned when no row owned by the caller matched.
	ErrNotFound = errors.New("streamer not found")
	// ErrInvalid marks input validation failures.
	ErrInvalid = errors.New("invalid streamer")
)

// TrackedAccount is one user's subscription to an external platform identity.
// IsLive and LastCheck are only ever written by reconciliation.
type TrackedAccount struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Platform  Platform   `json:"platform"`
	Username  string     `json:"username"`
	IsLive    bool       `json:"isLive"`
	LastCheck *time.Time `json:"lastCheck"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NormalizeUsername is the case-folded join key used against platform responses.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
