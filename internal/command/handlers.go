package command

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/gatekeeper/internal/auth"
	"github.com/dukerupert/gatekeeper/internal/clock"
	"github.com/dukerupert/gatekeeper/internal/freetier"
	"github.com/dukerupert/gatekeeper/internal/notify"
	"github.com/dukerupert/gatekeeper/internal/subscription"
)

const (
	dateLayout     = "02-01-2006"
	dateTimeLayout = "02-01-2006 15:04:05"

	historyDays = 7
)

type LogChannelSetter interface {
	SetLogChannel(ctx context.Context, botIdentity string, channelID int64, now time.Time) error
}

// Deps wires the handlers to the access-control core.
type Deps struct {
	Engine           *auth.Engine
	Subscriptions    *subscription.Manager
	Meter            *freetier.Meter
	Settings         LogChannelSetter
	Gateway          notify.Gateway
	Clock            clock.Clock
	FreeTierMaxHours int
	Location         *time.Location
	Logger           *slog.Logger
}

// Handlers implements the built-in admin and self-service commands. The bot
// identity is read from the caller in ctx.
type Handlers struct {
	Deps
}

func NewHandlers(d Deps) *Handlers {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handlers{Deps: d}
}

func (h *Handlers) requireAdmin(callerID int64) error {
	if !h.Engine.IsAdmin(callerID) {
		return ErrNotAdmin
	}
	return nil
}

func (h *Handlers) displayName(ctx context.Context, userID int64) string {
	if h.Gateway != nil {
		name, err := h.Gateway.DisplayName(ctx, userID)
		if err == nil && strings.TrimSpace(name) != "" {
			return name
		}
		if err != nil {
			h.Logger.Debug("display name lookup", "user_id", userID, "error", err)
		}
	}
	return fmt.Sprintf("User %d", userID)
}

// Grant gives target a subscription of days from now and notifies them.
func (h *Handlers) Grant(ctx context.Context, callerID, target int64, days int) (string, error) {
	if err := h.requireAdmin(callerID); err != nil {
		return "", err
	}
	if days <= 0 {
		return "", subscription.ErrInvalidDuration
	}

	name := h.displayName(ctx, target)
	expiry, err := h.Subscriptions.Grant(ctx, target, name, days, auth.BotIdentity(ctx), h.Clock.Now())
	if err != nil {
		return "", err
	}
	expiryStr := expiry.In(h.Location).Format(dateTimeLayout)

	notify.Deliver(ctx, h.Gateway, target,
		fmt.Sprintf("✅ Your subscription is active!\n\n• Valid until: %s", expiryStr), h.Logger)

	return fmt.Sprintf("✅ User Added\n\n• Name: %s\n• ID: %d\n• Expires: %s", name, target, expiryStr), nil
}

func (h *Handlers) Revoke(ctx context.Context, callerID, target int64) (string, error) {
	if err := h.requireAdmin(callerID); err != nil {
		return "", err
	}
	existed, err := h.Subscriptions.Revoke(ctx, target, auth.BotIdentity(ctx))
	if err != nil {
		return "", err
	}
	if !existed {
		return fmt.Sprintf("❌ User %d not found.", target), nil
	}
	return fmt.Sprintf("✅ User %d removed.", target), nil
}

func (h *Handlers) List(ctx context.Context, callerID int64) (string, error) {
	if err := h.requireAdmin(callerID); err != nil {
		return "", err
	}
	subs, err := h.Subscriptions.List(ctx, auth.BotIdentity(ctx))
	if err != nil {
		return "", err
	}
	if len(subs) == 0 {
		return "📝 No users found.", nil
	}

	now := h.Clock.Now()
	var b strings.Builder
	b.WriteString("📝 Users List\n")
	for _, sub := range subs {
		fmt.Fprintf(&b, "\n• Name: %s\n• ID: %d\n• Days Left: %d\n• Expires: %s\n───────────────",
			sub.Name, sub.UserID, subscription.DaysLeft(sub.ExpiryAt, now), sub.ExpiryAt.In(h.Location).Format(dateLayout))
	}
	return b.String(), nil
}

func (h *Handlers) MyPlan(ctx context.Context, callerID int64) (string, error) {
	info := h.Subscriptions.ExpiryInfo(ctx, callerID, auth.BotIdentity(ctx), h.Clock.Now())
	if info == nil {
		return "❌ No active plan.", nil
	}
	return fmt.Sprintf("📱 Plan Details\n\n• Name: %s\n• Days Left: %d\n• Expires: %s",
		info.Name, info.DaysLeft, info.ExpiryAt.In(h.Location).Format(dateLayout)), nil
}

func (h *Handlers) FreeTierStatus(ctx context.Context, callerID int64) (string, error) {
	bot := auth.BotIdentity(ctx)
	now := h.Clock.Now()

	premium := false
	if info := h.Subscriptions.ExpiryInfo(ctx, callerID, bot, now); info != nil && now.Before(info.ExpiryAt) {
		premium = true
	}
	u := h.Meter.Info(ctx, callerID, bot, now, h.FreeTierMaxHours)

	var b strings.Builder
	if premium {
		b.WriteString("✨ Premium Subscription Active\n\n• Status: Active Premium Plan\n• Free Tier: Available as backup\n\nFree Tier Usage Today:\n")
		fmt.Fprintf(&b, "• Used: %dh %dm\n• Remaining: %dh %dm\n• Daily Limit: %d hours",
			u.UsedHours, u.UsedMinutes, u.RemainingHours, u.RemainingMinutes, u.MaxHours)
		return b.String(), nil
	}

	status := "🟢 Active"
	if !u.CanUse {
		status = "🔴 Limit Reached"
	}
	fmt.Fprintf(&b, "🆓 Free Tier Status\n\n• Status: %s\n• Daily Limit: %d hours\n• Used Today: %dh %dm\n• Remaining: %dh %dm\n• Date: %s",
		status, u.MaxHours, u.UsedHours, u.UsedMinutes, u.RemainingHours, u.RemainingMinutes, u.Date)
	if u.CanUse {
		b.WriteString("\n\nYou can use the bot now! Usage is tracked per command.")
	} else {
		b.WriteString("\n\nDaily limit reached! Free tier resets at midnight.\nContact admin for premium access.")
	}

	if past := h.Meter.History(ctx, callerID, bot, now, historyDays); len(past) > 0 {
		b.WriteString("\n\nRecent Days:")
		for _, day := range past {
			hours, minutes := freetier.HoursMinutes(day.SecondsUsed)
			fmt.Fprintf(&b, "\n• %s: %dh %dm", day.Date, hours, minutes)
		}
	}
	return b.String(), nil
}

func (h *Handlers) SetLogChannel(ctx context.Context, callerID, channelID int64) (string, error) {
	if err := h.requireAdmin(callerID); err != nil {
		return "", err
	}
	if err := h.Settings.SetLogChannel(ctx, auth.BotIdentity(ctx), channelID, h.Clock.Now()); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Log channel set to %d.", channelID), nil
}

// Access reports how the caller is currently admitted, without charging.
func (h *Handlers) Access(ctx context.Context, callerID int64) (string, error) {
	d := h.Engine.Decide(ctx, callerID, auth.BotIdentity(ctx), h.Clock.Now())
	switch d.Reason {
	case auth.ReasonAdmin:
		return "👑 You have admin access.", nil
	case auth.ReasonSubscription:
		return "✅ Your subscription is active. Use /plan for details.", nil
	case auth.ReasonFreeTier:
		hours, minutes := freetier.HoursMinutes(d.RemainingSeconds)
		return fmt.Sprintf("🆓 Free tier: %dh %dm left today. Use /free for details.", hours, minutes), nil
	default:
		return replyAccessDenied, nil
	}
}

// Upload accepts an attachment. It is metered, so only admitted callers reach
// it and free-tier callers pay for the time it takes.
func (h *Handlers) Upload() Command {
	return Command{
		Name:        "upload",
		Description: "Send a file",
		Metered:     true,
		Run: func(ctx context.Context, c Call) (string, error) {
			reply := fmt.Sprintf("📥 Received your %s.", c.Media)
			if auth.GrantReason(ctx) == auth.ReasonFreeTier {
				reply += "\nFree tier time is being used. Check /free for what is left today."
			}
			return reply, nil
		},
	}
}

// Commands adapts the handlers to chat commands.
func (h *Handlers) Commands() []Command {
	return []Command{
		{
			Name:        "add",
			Usage:       "/add user_id days",
			Description: "Grant or renew a subscription",
			AdminOnly:   true,
			Run: func(ctx context.Context, c Call) (string, error) {
				if len(c.Args) != 2 {
					return "", ErrUsage
				}
				target, err := parseID(c.Args[0])
				if err != nil {
					return "", err
				}
				days, err := strconv.Atoi(c.Args[1])
				if err != nil {
					return "", fmt.Errorf("%w: days %q", ErrUsage, c.Args[1])
				}
				return h.Grant(ctx, c.UserID, target, days)
			},
		},
		{
			Name:        "remove",
			Usage:       "/remove user_id",
			Description: "Revoke a subscription",
			AdminOnly:   true,
			Run: func(ctx context.Context, c Call) (string, error) {
				if len(c.Args) != 1 {
					return "", ErrUsage
				}
				target, err := parseID(c.Args[0])
				if err != nil {
					return "", err
				}
				return h.Revoke(ctx, c.UserID, target)
			},
		},
		{
			Name:        "users",
			Description: "List subscribers",
			AdminOnly:   true,
			Run: func(ctx context.Context, c Call) (string, error) {
				return h.List(ctx, c.UserID)
			},
		},
		{
			Name:        "setlog",
			Usage:       "/setlog channel_id",
			Description: "Send removal notices to a channel",
			AdminOnly:   true,
			Run: func(ctx context.Context, c Call) (string, error) {
				if len(c.Args) != 1 {
					return "", ErrUsage
				}
				channel, err := parseID(c.Args[0])
				if err != nil {
					return "", err
				}
				return h.SetLogChannel(ctx, c.UserID, channel)
			},
		},
		{
			Name:        "plan",
			Description: "Show your subscription",
			Run: func(ctx context.Context, c Call) (string, error) {
				return h.MyPlan(ctx, c.UserID)
			},
		},
		{
			Name:        "free",
			Description: "Show today's free-tier usage",
			Run: func(ctx context.Context, c Call) (string, error) {
				return h.FreeTierStatus(ctx, c.UserID)
			},
		},
		{
			Name:        "start",
			Description: "Check your access",
			Run: func(ctx context.Context, c Call) (string, error) {
				return h.Access(ctx, c.UserID)
			},
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q", ErrUsage, s)
	}
	return id, nil
}
