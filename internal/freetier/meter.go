// Package freetier meters the daily free-tier time budget. Usage is keyed by
// calendar date, so a new day starts from zero without any reset job.
package freetier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/gatekeeper/internal/model"
)

// DefaultMaxHours is the daily free-tier allowance.
const DefaultMaxHours = 2

const dateLayout = "2006-01-02"

// ErrNegativeUsage is returned when a caller tries to decrement usage.
var ErrNegativeUsage = errors.New("usage seconds must not be negative")

// UsageStore persists the per-day accumulators.
type UsageStore interface {
	SecondsUsed(ctx context.Context, userID int64, botIdentity, date string) (int, error)
	Add(ctx context.Context, userID int64, botIdentity, date string, seconds int, now time.Time) error
	History(ctx context.Context, userID int64, botIdentity string, limit int) ([]model.FreeTierUsage, error)
}

type Meter struct {
	store   UsageStore
	loc     *time.Location
	timeout time.Duration
	logger  *slog.Logger
}

// NewMeter creates a meter whose calendar days are taken in loc. A zero
// timeout leaves store calls bounded only by the caller's context.
func NewMeter(store UsageStore, loc *time.Location, timeout time.Duration, logger *slog.Logger) *Meter {
	if loc == nil {
		loc = time.Local
	}
	return &Meter{store: store, loc: loc, timeout: timeout, logger: logger}
}

// DateKey returns the calendar date that now falls on.
func (m *Meter) DateKey(now time.Time) string {
	return now.In(m.loc).Format(dateLayout)
}

func (m *Meter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Meter) secondsUsed(ctx context.Context, userID int64, botIdentity string, now time.Time) (int, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.SecondsUsed(ctx, userID, botIdentity, m.DateKey(now))
}

// UsageToday returns the seconds used on now's date. Store failures read as 0.
func (m *Meter) UsageToday(ctx context.Context, userID int64, botIdentity string, now time.Time) int {
	used, err := m.secondsUsed(ctx, userID, botIdentity, now)
	if err != nil {
		m.logger.Error("read free tier usage", "user_id", userID, "bot", botIdentity, "error", err)
		return 0
	}
	return used
}

// AddUsage adds seconds to today's accumulator.
func (m *Meter) AddUsage(ctx context.Context, userID int64, botIdentity string, seconds int, now time.Time) error {
	if seconds < 0 {
		return ErrNegativeUsage
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.store.Add(ctx, userID, botIdentity, m.DateKey(now), seconds, now); err != nil {
		m.logger.Error("add free tier usage", "user_id", userID, "bot", botIdentity, "seconds", seconds, "error", err)
		return fmt.Errorf("add usage: %w", err)
	}
	return nil
}

// CanUse reports whether any of today's allowance is left and how many
// seconds remain. A store failure denies access.
func (m *Meter) CanUse(ctx context.Context, userID int64, botIdentity string, now time.Time, maxHours int) (bool, int) {
	used, err := m.secondsUsed(ctx, userID, botIdentity, now)
	if err != nil {
		m.logger.Error("check free tier", "user_id", userID, "bot", botIdentity, "error", err)
		return false, 0
	}
	remaining := Remaining(used, maxHours)
	return remaining > 0, remaining
}

// Info summarizes today's usage for display.
func (m *Meter) Info(ctx context.Context, userID int64, botIdentity string, now time.Time, maxHours int) model.UsageSummary {
	maxSeconds := maxHours * 3600
	summary := model.UsageSummary{
		Date:       m.DateKey(now),
		MaxHours:   maxHours,
		MaxSeconds: maxSeconds,
	}

	used, err := m.secondsUsed(ctx, userID, botIdentity, now)
	if err != nil {
		m.logger.Error("free tier info", "user_id", userID, "bot", botIdentity, "error", err)
		return summary
	}

	remaining := Remaining(used, maxHours)
	summary.UsedSeconds = used
	summary.UsedHours, summary.UsedMinutes = HoursMinutes(used)
	summary.RemainingSeconds = remaining
	summary.RemainingHours, summary.RemainingMinutes = HoursMinutes(remaining)
	summary.CanUse = remaining > 0
	return summary
}

// History returns up to days daily records before now's date, newest first.
// Store failures read as no history.
func (m *Meter) History(ctx context.Context, userID int64, botIdentity string, now time.Time, days int) []model.FreeTierUsage {
	if days <= 0 {
		return nil
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	records, err := m.store.History(ctx, userID, botIdentity, days+1)
	if err != nil {
		m.logger.Error("free tier history", "user_id", userID, "bot", botIdentity, "error", err)
		return nil
	}
	today := m.DateKey(now)
	past := make([]model.FreeTierUsage, 0, len(records))
	for _, r := range records {
		if r.Date >= today {
			continue
		}
		past = append(past, r)
	}
	if len(past) > days {
		past = past[:days]
	}
	return past
}

// Remaining is max(0, maxHours*3600 - used).
func Remaining(used, maxHours int) int {
	return max(0, maxHours*3600-used)
}

// HoursMinutes splits whole seconds into floored hours and minutes.
func HoursMinutes(seconds int) (hours, minutes int) {
	return seconds / 3600, (seconds % 3600) / 60
}
