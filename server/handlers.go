package server

import (
	"context"
	"database/sql"

	"github.com/onnwee/streamwatch/clipsource"
	"github.com/onnwee/streamwatch/reconcile"
	"github.com/onnwee/streamwatch/social"
	"github.com/onnwee/streamwatch/streamer"
)

// AccountStore is the tracked-account persistence the handlers write through.
type AccountStore interface {
	Create(ctx context.Context, userID string, platform streamer.Platform, username string) (streamer.TrackedAccount, error)
	Delete(ctx context.Context, id, userID string) (int64, error)
}

// ClipSourceStore is satisfied by *clipsource.Store.
type ClipSourceStore interface {
	Create(ctx context.Context, userID string, platform clipsource.Platform, page string) (clipsource.ClipSource, error)
	ListByUser(ctx context.Context, userID string) ([]clipsource.ClipSource, error)
	Delete(ctx context.Context, id, userID string) (int64, error)
}

// SocialAccountStore is satisfied by *social.Store.
type SocialAccountStore interface {
	Create(ctx context.Context, userID string, platform social.Platform, username, url string) (social.Account, error)
	ListByUser(ctx context.Context, userID string) ([]social.Account, error)
	Delete(ctx context.Context, id, userID string) error
}

// StatusReconciler is satisfied by *reconcile.Reconciler.
type StatusReconciler interface {
	Scoped(ctx context.Context, userID string) ([]streamer.TrackedAccount, error)
	Live(ctx context.Context, userID string) ([]streamer.TrackedAccount, error)
	Global(ctx context.Context) (reconcile.GlobalResult, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db             *sql.DB
	store          AccountStore
	clipSources    ClipSourceStore
	socialAccounts SocialAccountStore
	reconciler     StatusReconciler
	twitchReady    func() error
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		db:             deps.DB,
		store:          deps.Store,
		clipSources:    deps.ClipSources,
		socialAccounts: deps.SocialAccounts,
		reconciler:     deps.Reconciler,
		twitchReady:    deps.TwitchReady,
	}
}
