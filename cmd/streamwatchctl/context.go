package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/streamwatch/config"
	"github.com/onnwee/streamwatch/db"
	"github.com/onnwee/streamwatch/reconcile"
	"github.com/onnwee/streamwatch/streamer"
	"github.com/onnwee/streamwatch/twitchapi"
)

type commandContext struct {
	dsnFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(dsnFlag, configFlag *string) *commandContext {
	return &commandContext{
		dsnFlag:    dsnFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := os.Getenv("CONFIG_FILE")
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.dsnFlag != nil && strings.TrimSpace(*c.dsnFlag) != "" {
			cfg.DBDsn = strings.TrimSpace(*c.dsnFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withDB opens the configured database for the duration of fn.
func (c *commandContext) withDB(fn func(database *sql.DB, dialect db.Dialect) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	database, dialect, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	return fn(database, dialect)
}

// withStore opens a Store. SQLite files get the embedded schema applied first.
func (c *commandContext) withStore(fn func(store *streamer.Store) error) error {
	return c.withDB(func(database *sql.DB, dialect db.Dialect) error {
		if dialect == db.SQLite {
			if err := db.Migrate(context.Background(), database, dialect); err != nil {
				return err
			}
		}
		return fn(streamer.NewStore(database, dialect))
	})
}

// reconciler wires a Reconciler over store. The returned persister must be closed to flush writes.
func (c *commandContext) reconciler(store *streamer.Store) (*reconcile.Reconciler, *reconcile.Persister) {
	cfg := c.config
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	helix := &twitchapi.HelixClient{
		AppTokenSource: &twitchapi.TokenSource{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			TokenURL:     cfg.TwitchTokenURL,
			HTTPClient:   httpClient,
		},
		ClientID:                 cfg.TwitchClientID,
		BaseURL:                  cfg.TwitchHelixURL,
		HTTPClient:               httpClient,
		InvalidateOnUnauthorized: cfg.TwitchInvalidateOn401,
	}
	persister := reconcile.NewPersister(store, 1, cfg.PersistQueueSize, cfg.HTTPClientTimeout)
	return reconcile.New(store, helix, persister, reconcile.Options{UpdateConcurrency: cfg.UpdateConcurrency}), persister
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
