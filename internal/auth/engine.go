package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/gatekeeper/internal/model"
)

type Reason string

const (
	ReasonAdmin        Reason = "admin"
	ReasonSubscription Reason = "subscription"
	ReasonFreeTier     Reason = "free_tier"
	ReasonDenied       Reason = "denied"
)

// Decision is the outcome of an authorization check. RemainingSeconds is
// only meaningful for free-tier decisions.
type Decision struct {
	Authorized       bool
	Reason           Reason
	RemainingSeconds int
}

type SubscriptionLookup interface {
	Get(ctx context.Context, userID int64, botIdentity string) (*model.Subscription, error)
}

type QuotaChecker interface {
	CanUse(ctx context.Context, userID int64, botIdentity string, now time.Time, maxHours int) (bool, int)
}

type Config struct {
	FreeTierMaxHours int
	StoreTimeout     time.Duration
}

// Engine decides whether a user may use a bot: admins first, then a live
// subscription, then whatever is left of today's free tier. Every decision
// reads the store; nothing is cached.
type Engine struct {
	admins AdminSet
	subs   SubscriptionLookup
	quota  QuotaChecker
	cfg    Config
	logger *slog.Logger
}

func NewEngine(admins AdminSet, subs SubscriptionLookup, quota QuotaChecker, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{admins: admins, subs: subs, quota: quota, cfg: cfg, logger: logger}
}

func (e *Engine) IsAdmin(userID int64) bool {
	return e.admins.Contains(userID)
}

func (e *Engine) IsAuthorized(ctx context.Context, userID int64, botIdentity string, now time.Time) bool {
	return e.Decide(ctx, userID, botIdentity, now).Authorized
}

// Decide checks access without consuming any quota.
func (e *Engine) Decide(ctx context.Context, userID int64, botIdentity string, now time.Time) Decision {
	if e.admins.Contains(userID) {
		return Decision{Authorized: true, Reason: ReasonAdmin}
	}

	sub, err := e.lookup(ctx, userID, botIdentity)
	if err != nil {
		e.logger.Error("authorization lookup failed", "user_id", userID, "bot", botIdentity, "error", err)
		return Decision{Reason: ReasonDenied}
	}
	if sub != nil && sub.ActiveAt(now) {
		return Decision{Authorized: true, Reason: ReasonSubscription}
	}

	ok, remaining := e.quota.CanUse(ctx, userID, botIdentity, now, e.cfg.FreeTierMaxHours)
	if ok {
		return Decision{Authorized: true, Reason: ReasonFreeTier, RemainingSeconds: remaining}
	}
	return Decision{Reason: ReasonDenied}
}

func (e *Engine) lookup(ctx context.Context, userID int64, botIdentity string) (*model.Subscription, error) {
	if e.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.StoreTimeout)
		defer cancel()
	}
	return e.subs.Get(ctx, userID, botIdentity)
}
