package streamer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/streamwatch/db"
)

// Store persists tracked accounts in the streamers table.
type Store struct {
	db      *sql.DB
	dialect db.Dialect

	// Now is the clock used for created_at; defaults to time.Now.
	Now func() time.Time
}

// NewStore returns a Store speaking the given dialect.
func NewStore(database *sql.DB, dialect db.Dialect) *Store {
	return &Store{db: database, dialect: dialect, Now: time.Now}
}

const selectColumns = `SELECT id, user_id, platform, username, is_live, last_check, created_at FROM streamers`

// Create inserts a tracked account. The username is case-folded at write time.
func (s *Store) Create(ctx context.Context, userID string, platform Platform, username string) (TrackedAccount, error) {
	userID = strings.TrimSpace(userID)
	username = NormalizeUsername(username)
	switch {
	case userID == "":
		return TrackedAccount{}, fmt.Errorf("%w: user id empty", ErrInvalid)
	case username == "":
		return TrackedAccount{}, fmt.Errorf("%w: username empty", ErrInvalid)
	case !platform.Valid():
		return TrackedAccount{}, fmt.Errorf("%w: unknown platform %q", ErrInvalid, platform)
	}

	acct := TrackedAccount{
		ID:        uuid.NewString(),
		UserID:    userID,
		Platform:  platform,
		Username:  username,
		CreatedAt: s.now(),
	}
	q := `INSERT INTO streamers (id, user_id, platform, username, is_live, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, db.Rebind(s.dialect, q),
		acct.ID, acct.UserID, string(acct.Platform), acct.Username, false, acct.CreatedAt,
	); err != nil {
		return TrackedAccount{}, fmt.Errorf("failed to create streamer: %w", err)
	}
	return acct, nil
}

// ListByUser returns the user's tracked accounts, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]TrackedAccount, error) {
	q := selectColumns + ` WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, db.Rebind(s.dialect, q), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query streamers for user: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListByPlatform returns every tracked account on the platform across all users.
func (s *Store) ListByPlatform(ctx context.Context, platform Platform) ([]TrackedAccount, error) {
	q := selectColumns + ` WHERE platform = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, db.Rebind(s.dialect, q), string(platform))
	if err != nil {
		return nil, fmt.Errorf("failed to query streamers for platform: %w", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// Delete removes the account only when it belongs to userID. It returns the number of rows removed.
func (s *Store) Delete(ctx context.Context, id, userID string) (int64, error) {
	q := `DELETE FROM streamers WHERE id = ? AND user_id = ?`
	res, err := s.db.ExecContext(ctx, db.Rebind(s.dialect, q), id, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete streamer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// UpdateStatus writes is_live/last_check on every row matching (platform, username), comparing
// usernames case-insensitively. Zero, one or many rows may match; the count is returned.
func (s *Store) UpdateStatus(ctx context.Context, platform Platform, username string, isLive bool, checkedAt time.Time) (int64, error) {
	q := `UPDATE streamers SET is_live = ?, last_check = ? WHERE platform = ? AND LOWER(username) = LOWER(?)`
	res, err := s.db.ExecContext(ctx, db.Rebind(s.dialect, q), isLive, checkedAt.UTC(), string(platform), NormalizeUsername(username))
	if err != nil {
		return 0, fmt.Errorf("failed to update streamer status: %w", err)
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

func scanAccounts(rows *sql.Rows) ([]TrackedAccount, error) {
	var out []TrackedAccount
	for rows.Next() {
		var (
			a        TrackedAccount
			platform string
			last     db.Timestamp
			created  db.Timestamp
		)
		if err := rows.Scan(&a.ID, &a.UserID, &platform, &a.Username, &a.IsLive, &last, &created); err != nil {
			return nil, fmt.Errorf("failed to scan streamer: %w", err)
		}
		a.Platform = Platform(platform)
		if last.Valid {
			t := last.Time
			a.LastCheck = &t
		}
		a.CreatedAt = created.Time
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate streamers: %w", err)
	}
	return out, nil
}
