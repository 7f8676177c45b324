// Package social stores the social media accounts a user links to their profile.
// Each platform accepts only profile URLs of its own shape.
package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/streamwatch/db"
)

// Platform is a social network an account can be linked on.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformX         Platform = "x"
)

var urlPatterns = map[Platform]*regexp.Regexp{
	PlatformYouTube:   regexp.MustCompile(`^https?://(www\.)?(youtube\.com/@[\w-]+|youtube\.com/channel/[\w-]+)$`),
	PlatformTikTok:    regexp.MustCompile(`^https?://(www\.)?tiktok\.com/@[\w.-]+$`),
	PlatformInstagram: regexp.MustCompile(`^https?://(www\.)?instagram\.com/[\w.-]+$`),
	PlatformX:         regexp.MustCompile(`^https?://(www\.)?x\.com/[\w.-]+$`),
}

var (
	ErrNotFound = errors.New("social account not found")
	ErrInvalid  = errors.New("invalid social account")
)

// ParsePlatform case-folds s and validates it.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := urlPatterns[p]; !ok {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalid, s)
	}
	return p, nil
}

// ValidateURL checks that url is a profile link on platform.
func ValidateURL(platform Platform, url string) error {
	pattern, ok := urlPatterns[platform]
	if !ok {
		return fmt.Errorf("%w: unknown platform %q", ErrInvalid, platform)
	}
	if !pattern.MatchString(url) {
		return fmt.Errorf("%w: invalid %s URL format", ErrInvalid, platform)
	}
	return nil
}

// Account is a linked social profile.
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Platform  Platform  `json:"platform"`
	Username  string    `json:"username"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists accounts in the social_accounts table.
type Store struct {
	db      *sql.DB
	dialect db.Dialect

	// Now is the clock used for created_at; defaults to time.Now.
	Now func() time.Time
}

func NewStore(database *sql.DB, dialect db.Dialect) *Store {
	return &Store{db: database, dialect: dialect, Now: time.Now}
}

// Create links an account after checking the URL against the platform's pattern.
func (s *Store) Create(ctx context.Context, userID string, platform Platform, username, url string) (Account, error) {
	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	url = strings.TrimSpace(url)
	if userID == "" {
		return Account{}, fmt.Errorf("%w: user id empty", ErrInvalid)
	}
	if username == "" {
		return Account{}, fmt.Errorf("%w: username empty", ErrInvalid)
	}
	if err := ValidateURL(platform, url); err != nil {
		return Account{}, err
	}

	acct := Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Platform:  platform,
		Username:  username,
		URL:       url,
		CreatedAt: s.now(),
	}
	q := `INSERT INTO social_accounts (id, user_id, platform, username, url, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, db.Rebind(s.dialect, q),
		acct.ID, acct.UserID, string(acct.Platform), acct.Username, acct.URL, acct.CreatedAt,
	); err != nil {
		return Account{}, fmt.Errorf("failed to create social account: %w", err)
	}
	return acct, nil
}

// ListByUser returns the user's linked accounts, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Account, error) {
	q := `SELECT id, user_id, platform, username, url, created_at FROM social_accounts WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, db.Rebind(s.dialect, q), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query social accounts: %w", err)
	}
	defer rows.Close()

	out := []Account{}
	for rows.Next() {
		var (
			a        Account
			platform string
			created  db.Timestamp
		)
		if err := rows.Scan(&a.ID, &a.UserID, &platform, &a.Username, &a.URL, &created); err != nil {
			return nil, fmt.Errorf("failed to scan social account: %w", err)
		}
		a.Platform = Platform(platform)
		a.CreatedAt = created.Time
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate social accounts: %w", err)
	}
	return out, nil
}

// Delete unlinks the account. It returns ErrNotFound when the id does not exist
// or belongs to another user.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	var owner string
	q := `SELECT user_id FROM social_accounts WHERE id = ?`
	err := s.db.QueryRowContext(ctx, db.Rebind(s.dialect, q), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up social account: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, db.Rebind(s.dialect, `DELETE FROM social_accounts WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete social account: %w", err)
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
