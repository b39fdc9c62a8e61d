package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/gatekeeper/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	err := scanner.Scan(
		&sub.ID, &sub.BotIdentity, &sub.UserID, &sub.Name,
		&sub.ExpiryAt, &sub.AddedAt, &sub.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const subscriptionCols = `id, bot_identity, user_id, name, expiry_at, added_at, last_updated_at`

// Upsert creates the subscription for (bot, user) or replaces the existing
// one. Renewal overwrites the expiry rather than extending it.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub model.Subscription) (*model.Subscription, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (bot_identity, user_id, name, expiry_at, added_at, last_updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bot_identity, user_id) DO UPDATE SET
		   name = excluded.name,
		   expiry_at = excluded.expiry_at,
		   added_at = excluded.added_at,
		   last_updated_at = excluded.last_updated_at`,
		sub.BotIdentity, sub.UserID, sub.Name,
		sub.ExpiryAt.UTC(), sub.AddedAt.UTC(), sub.LastUpdatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return s.Get(ctx, sub.UserID, sub.BotIdentity)
}

func (s *SubscriptionStore) Get(ctx context.Context, userID int64, botIdentity string) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE bot_identity = ? AND user_id = ?`,
		botIdentity, userID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Delete removes the subscription for (bot, user) and reports whether one existed.
func (s *SubscriptionStore) Delete(ctx context.Context, userID int64, botIdentity string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE bot_identity = ? AND user_id = ?`,
		botIdentity, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired removes the row only while it is still expired at now, so a
// renewal that lands between a scan and the delete survives.
func (s *SubscriptionStore) DeleteExpired(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE id = ? AND expiry_at < ?`,
		id, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("delete expired subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SubscriptionStore) ListByBot(ctx context.Context, botIdentity string) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE bot_identity = ? ORDER BY expiry_at, user_id`,
		botIdentity,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListExpired returns subscriptions with expiry_at < now, skipping the
// excluded user IDs. An empty botIdentity scans every bot.
func (s *SubscriptionStore) ListExpired(ctx context.Context, botIdentity string, now time.Time, exclude []int64) ([]model.Subscription, error) {
	query := `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE expiry_at < ?`
	args := []any{now.UTC()}

	if botIdentity != "" {
		query += ` AND bot_identity = ?`
		args = append(args, botIdentity)
	}
	if len(exclude) > 0 {
		query += ` AND user_id NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(exclude)), ",") + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += ` ORDER BY expiry_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
