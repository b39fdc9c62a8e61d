// Package notify defines the outbound messaging contract and the best-effort
// delivery rule used wherever a notification must never block a state change.
package notify

import (
	"context"
	"log/slog"
)

// Sender delivers a text message to a chat or user.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Directory resolves a user's display name.
type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// Gateway is the full messaging surface a bot exposes.
type Gateway interface {
	Sender
	Directory
}

// Delivery is the outcome of a best-effort send.
type Delivery int

const (
	Delivered Delivery = iota
	Failed
)

func (d Delivery) String() string {
	if d == Delivered {
		return "delivered"
	}
	return "failed"
}

// Deliver sends text and reports the outcome. Errors are logged, never returned.
func Deliver(ctx context.Context, s Sender, chatID int64, text string, logger *slog.Logger) Delivery {
	if s == nil {
		return Failed
	}
	if err := s.SendText(ctx, chatID, text); err != nil {
		logger.Warn("notification not delivered", "chat_id", chatID, "error", err)
		return Failed
	}
	return Delivered
}
