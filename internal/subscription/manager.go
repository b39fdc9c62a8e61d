// Package subscription grants, revokes and inspects paid access. A grant
// always replaces the previous expiry; renewals are never additive.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/gatekeeper/internal/model"
)

const day = 24 * time.Hour

// ErrInvalidDuration is returned for grants of zero or negative days.
var ErrInvalidDuration = errors.New("duration must be a positive number of days")

type Store interface {
	Upsert(ctx context.Context, sub model.Subscription) (*model.Subscription, error)
	Get(ctx context.Context, userID int64, botIdentity string) (*model.Subscription, error)
	Delete(ctx context.Context, userID int64, botIdentity string) (bool, error)
	DeleteExpired(ctx context.Context, id int64, now time.Time) (bool, error)
	ListByBot(ctx context.Context, botIdentity string) ([]model.Subscription, error)
	ListExpired(ctx context.Context, botIdentity string, now time.Time, exclude []int64) ([]model.Subscription, error)
}

type Manager struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewManager(store Store, timeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{store: store, timeout: timeout, logger: logger}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Grant sets the user's expiry to now + days, replacing any existing grant.
func (m *Manager) Grant(ctx context.Context, userID int64, name string, days int, botIdentity string, now time.Time) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, ErrInvalidDuration
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	expiry := now.Add(time.Duration(days) * day)
	sub, err := m.store.Upsert(ctx, model.Subscription{
		UserID:        userID,
		BotIdentity:   botIdentity,
		Name:          name,
		ExpiryAt:      expiry,
		AddedAt:       now,
		LastUpdatedAt: now,
	})
	if err != nil {
		m.logger.Error("grant subscription", "user_id", userID, "bot", botIdentity, "error", err)
		return time.Time{}, fmt.Errorf("grant %d days to %d: %w", days, userID, err)
	}

	m.logger.Info("subscription granted", "user_id", userID, "bot", botIdentity, "days", days, "expiry_at", sub.ExpiryAt)
	return expiry, nil
}

// Revoke deletes the grant and reports whether one existed.
func (m *Manager) Revoke(ctx context.Context, userID int64, botIdentity string) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	existed, err := m.store.Delete(ctx, userID, botIdentity)
	if err != nil {
		m.logger.Error("revoke subscription", "user_id", userID, "bot", botIdentity, "error", err)
		return false, fmt.Errorf("revoke %d: %w", userID, err)
	}
	if existed {
		m.logger.Info("subscription revoked", "user_id", userID, "bot", botIdentity)
	}
	return existed, nil
}

func (m *Manager) List(ctx context.Context, botIdentity string) ([]model.Subscription, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	subs, err := m.store.ListByBot(ctx, botIdentity)
	if err != nil {
		m.logger.Error("list subscriptions", "bot", botIdentity, "error", err)
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// ExpiryInfo describes the user's grant relative to now, or returns nil when
// there is none or it cannot be read.
func (m *Manager) ExpiryInfo(ctx context.Context, userID int64, botIdentity string, now time.Time) *model.ExpiryInfo {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	sub, err := m.store.Get(ctx, userID, botIdentity)
	if err != nil {
		m.logger.Error("get expiry info", "user_id", userID, "bot", botIdentity, "error", err)
		return nil
	}
	if sub == nil {
		return nil
	}
	return Describe(*sub, now)
}

// Describe derives days left and activity for a subscription at now.
func Describe(sub model.Subscription, now time.Time) *model.ExpiryInfo {
	daysLeft := DaysLeft(sub.ExpiryAt, now)
	return &model.ExpiryInfo{
		UserID:   sub.UserID,
		Name:     sub.Name,
		ExpiryAt: sub.ExpiryAt,
		AddedAt:  sub.AddedAt,
		DaysLeft: daysLeft,
		IsActive: daysLeft > 0,
	}
}

// DaysLeft is floor((expiry - now) / 24h); it goes negative once expired.
func DaysLeft(expiry, now time.Time) int {
	return int(math.Floor(float64(expiry.Sub(now)) / float64(day)))
}

// Expired lists grants past expiry at now, skipping the given user IDs.
func (m *Manager) Expired(ctx context.Context, botIdentity string, now time.Time, exclude []int64) ([]model.Subscription, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	subs, err := m.store.ListExpired(ctx, botIdentity, now, exclude)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return subs, nil
}

// RemoveExpired deletes sub if it is still expired at now. It reports false
// when the row was renewed or already gone.
func (m *Manager) RemoveExpired(ctx context.Context, sub model.Subscription, now time.Time) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	removed, err := m.store.DeleteExpired(ctx, sub.ID, now)
	if err != nil {
		return false, fmt.Errorf("remove expired %d: %w", sub.UserID, err)
	}
	return removed, nil
}
