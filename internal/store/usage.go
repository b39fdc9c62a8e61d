package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/gatekeeper/internal/model"
)

type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

const usageCols = `id, bot_identity, user_id, usage_date, seconds_used, last_updated_at`

// SecondsUsed returns the accumulated seconds for the given date, or 0 when
// the user has no record for that day.
func (s *UsageStore) SecondsUsed(ctx context.Context, userID int64, botIdentity, date string) (int, error) {
	var seconds int
	err := s.db.QueryRowContext(ctx,
		`SELECT seconds_used FROM free_tier_usage WHERE bot_identity = ? AND user_id = ? AND usage_date = ?`,
		botIdentity, userID, date,
	).Scan(&seconds)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get free tier usage: %w", err)
	}
	return seconds, nil
}

// Add increments the day's accumulator in a single statement. Concurrent
// callers for the same key never lose an increment.
func (s *UsageStore) Add(ctx context.Context, userID int64, botIdentity, date string, seconds int, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO free_tier_usage (bot_identity, user_id, usage_date, seconds_used, last_updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(bot_identity, user_id, usage_date) DO UPDATE SET
		   seconds_used = free_tier_usage.seconds_used + excluded.seconds_used,
		   last_updated_at = excluded.last_updated_at`,
		botIdentity, userID, date, seconds, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("add free tier usage: %w", err)
	}
	return nil
}

// History returns the most recent daily records for a user, newest first.
func (s *UsageStore) History(ctx context.Context, userID int64, botIdentity string, limit int) ([]model.FreeTierUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+usageCols+` FROM free_tier_usage
		 WHERE bot_identity = ? AND user_id = ?
		 ORDER BY usage_date DESC LIMIT ?`,
		botIdentity, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list free tier usage: %w", err)
	}
	defer rows.Close()

	var records []model.FreeTierUsage
	for rows.Next() {
		var u model.FreeTierUsage
		if err := rows.Scan(&u.ID, &u.BotIdentity, &u.UserID, &u.Date, &u.SecondsUsed, &u.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan free tier usage: %w", err)
		}
		records = append(records, u)
	}
	return records, rows.Err()
}
