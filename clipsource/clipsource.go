// Package clipsource stores the pages a user follows for clips.
package clipsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/streamwatch/db"
)

// Platform is where a clip source page lives.
type Platform string

const (
	PlatformTwitter Platform = "twitter"
	PlatformYouTube Platform = "youtube"
	PlatformTikTok  Platform = "tiktok"
)

// Platforms lists every platform a clip source may use.
var Platforms = []Platform{PlatformTwitter, PlatformYouTube, PlatformTikTok}

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
	ErrNotFound = errors.New("clip source not found")
	ErrInvalid  = errors.New("invalid clip source")
)

// ClipSource is a page a user pulls clips from.
type ClipSource struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Platform  Platform  `json:"platform"`
	Page      string    `json:"page"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists clip sources in the clip_sources table.
type Store struct {
	db      *sql.DB
	dialect db.Dialect

	Now func() time.Time
}

func NewStore(database *sql.DB, dialect db.Dialect) *Store {
	return &Store{db: database, dialect: dialect, Now: time.Now}
}

// Create adds a clip source for the user.
func (s *Store) Create(ctx context.Context, userID string, platform Platform, page string) (ClipSource, error) {
	userID = strings.TrimSpace(userID)
	page = strings.TrimSpace(page)
	switch {
	case userID == "":
		return ClipSource{}, fmt.Errorf("%w: user id empty", ErrInvalid)
	case page == "":
		return ClipSource{}, fmt.Errorf("%w: page empty", ErrInvalid)
	case !platform.Valid():
		return ClipSource{}, fmt.Errorf("%w: unknown platform %q", ErrInvalid, platform)
	}

	now := s.now()
	src := ClipSource{
		ID:        uuid.NewString(),
		UserID:    userID,
		Platform:  platform,
		Page:      page,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q := `INSERT INTO clip_sources (id, user_id, platform, page, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, db.Rebind(s.dialect, q),
		src.ID, src.UserID, string(src.Platform), src.Page, src.CreatedAt, src.UpdatedAt,
	); err != nil {
		return ClipSource{}, fmt.Errorf("failed to create clip source: %w", err)
	}
	return src, nil
}

// ListByUser returns the user's clip sources, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]ClipSource, error) {
	q := `SELECT id, user_id, platform, page, created_at, updated_at FROM clip_sources WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, db.Rebind(s.dialect, q), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clip sources: %w", err)
	}
	defer rows.Close()

	out := []ClipSource{}
	for rows.Next() {
		var (
			src      ClipSource
			platform string
			created  db.Timestamp
			updated  db.Timestamp
		)
		if err := rows.Scan(&src.ID, &src.UserID, &platform, &src.Page, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan clip source: %w", err)
		}
		src.Platform = Platform(platform)
		src.CreatedAt = created.Time
		src.UpdatedAt = updated.Time
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clip sources: %w", err)
	}
	return out, nil
}

// Delete removes every row with this id owned by userID and returns the count.
func (s *Store) Delete(ctx context.Context, id, userID string) (int64, error) {
	q := `DELETE FROM clip_sources WHERE id = ? AND user_id = ?`
	res, err := s.db.ExecContext(ctx, db.Rebind(s.dialect, q), id, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete clip source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
