// Package sweeper removes expired subscriptions and tells the affected user,
// the admins and the bot's log channel about each removal.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dukerupert/gatekeeper/internal/auth"
	"github.com/dukerupert/gatekeeper/internal/clock"
	"github.com/dukerupert/gatekeeper/internal/metrics"
	"github.com/dukerupert/gatekeeper/internal/model"
	"github.com/dukerupert/gatekeeper/internal/notify"
)

const dateLayout = "02-01-2006"

type Expirer interface {
	Expired(ctx context.Context, botIdentity string, now time.Time, exclude []int64) ([]model.Subscription, error)
	RemoveExpired(ctx context.Context, sub model.Subscription, now time.Time) (bool, error)
}

type SettingsReader interface {
	Get(ctx context.Context, botIdentity string) (*model.BotSettings, error)
}

// Recipient classes for a delivery attempt.
const (
	ToUser       = "user"
	ToAdmin      = "admin"
	ToLogChannel = "log_channel"
)

// Delivery records one notification attempt made during a sweep.
type Delivery struct {
	UserID  int64
	ChatID  int64
	To      string
	Outcome notify.Delivery
}

// Result summarizes a sweep. Removed counts only rows actually deleted; Err
// joins every per-record failure.
type Result struct {
	RunID      string
	Removed    int
	Deliveries []Delivery
	Err        error
}

type Config struct {
	// BotIdentity restricts the sweep to one bot. Empty sweeps every bot.
	BotIdentity string
	Interval    time.Duration
}

type Sweeper struct {
	subs     Expirer
	settings SettingsReader
	sender   notify.Sender
	admins   auth.AdminSet
	clock    clock.Clock
	metrics  *metrics.Collector
	cfg      Config
	logger   *slog.Logger

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(subs Expirer, settings SettingsReader, sender notify.Sender, admins auth.AdminSet, clk clock.Clock, m *metrics.Collector, cfg Config, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Sweeper{
		subs:     subs,
		settings: settings,
		sender:   sender,
		admins:   admins,
		clock:    clk,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

// Sweep runs one pass. Each expired record is handled on its own: a failure
// on one never stops the rest.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	start := time.Now()
	now := s.clock.Now()
	res := Result{RunID: uuid.NewString()}
	logger := s.logger.With("run_id", res.RunID)

	expired, err := s.subs.Expired(ctx, s.cfg.BotIdentity, now, s.admins.IDs())
	if err != nil {
		logger.Error("scan expired subscriptions", "error", err)
		res.Err = err
		s.metrics.Sweep(0, 0, time.Since(start))
		return res
	}

	failures := 0
	for _, sub := range expired {
		if err := ctx.Err(); err != nil {
			res.Err = multierr.Append(res.Err, err)
			break
		}
		if err := s.expire(ctx, logger, sub, now, &res); err != nil {
			failures++
			res.Err = multierr.Append(res.Err, err)
		}
	}

	s.metrics.Sweep(res.Removed, failures, time.Since(start))
	if len(expired) > 0 || res.Err != nil {
		logger.Info("sweep complete", "expired", len(expired), "removed", res.Removed, "failures", failures)
	}
	return res
}

func (s *Sweeper) expire(ctx context.Context, logger *slog.Logger, sub model.Subscription, now time.Time, res *Result) error {
	s.deliver(ctx, logger, res, sub.UserID, sub.UserID, ToUser, userNotice(sub))

	removed, err := s.subs.RemoveExpired(ctx, sub, now)
	if err != nil {
		logger.Error("remove expired subscription", "user_id", sub.UserID, "bot", sub.BotIdentity, "error", err)
		return fmt.Errorf("remove user %d on %s: %w", sub.UserID, sub.BotIdentity, err)
	}
	if !removed {
		logger.Info("subscription renewed or gone before removal", "user_id", sub.UserID, "bot", sub.BotIdentity)
		return nil
	}
	res.Removed++
	logger.Info("expired subscription removed", "user_id", sub.UserID, "bot", sub.BotIdentity, "expired_at", sub.ExpiryAt)

	notice := adminNotice(sub)
	for _, admin := range s.admins.IDs() {
		s.deliver(ctx, logger, res, sub.UserID, admin, ToAdmin, notice)
	}
	if channel := s.logChannel(ctx, logger, sub.BotIdentity); channel != 0 {
		s.deliver(ctx, logger, res, sub.UserID, channel, ToLogChannel, notice)
	}
	return nil
}

func (s *Sweeper) deliver(ctx context.Context, logger *slog.Logger, res *Result, userID, chatID int64, to, text string) {
	outcome := notify.Deliver(ctx, s.sender, chatID, text, logger)
	s.metrics.Notification(outcome.String())
	res.Deliveries = append(res.Deliveries, Delivery{UserID: userID, ChatID: chatID, To: to, Outcome: outcome})
}

func (s *Sweeper) logChannel(ctx context.Context, logger *slog.Logger, botIdentity string) int64 {
	if s.settings == nil {
		return 0
	}
	bs, err := s.settings.Get(ctx, botIdentity)
	if err != nil {
		logger.Warn("read log channel", "bot", botIdentity, "error", err)
		return 0
	}
	if bs == nil || bs.LogChannelID == nil {
		return 0
	}
	return *bs.LogChannelID
}

func userNotice(sub model.Subscription) string {
	return fmt.Sprintf("⚠️ Your subscription has expired!\n\n• Name: %s\n• Expired on: %s\n\nContact admin to renew your subscription.",
		sub.Name, sub.ExpiryAt.Format(dateLayout))
}

func adminNotice(sub model.Subscription) string {
	return fmt.Sprintf("🚫 Removed Expired User\n\n• Name: %s\n• ID: %d\n• Bot: %s\n• Expired on: %s",
		sub.Name, sub.UserID, sub.BotIdentity, sub.ExpiryAt.Format(dateLayout))
}

// Start runs a sweep every configured interval until Stop is called or ctx
// is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
