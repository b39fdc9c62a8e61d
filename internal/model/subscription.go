package model

import "time"

// Subscription is a time-boxed paid access grant for one user on one bot.
type Subscription struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	BotIdentity   string    `json:"bot_identity"`
	Name          string    `json:"name"`
	ExpiryAt      time.Time `json:"expiry_at"`
	AddedAt       time.Time `json:"added_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// ActiveAt reports whether the grant is still valid at now. A subscription
// whose expiry equals now is already expired.
func (s Subscription) ActiveAt(now time.Time) bool {
	return now.Before(s.ExpiryAt)
}

// ExpiryInfo is the presentation view of a subscription relative to now.
type ExpiryInfo struct {
	UserID   int64     `json:"user_id"`
	Name     string    `json:"name"`
	ExpiryAt time.Time `json:"expiry_at"`
	AddedAt  time.Time `json:"added_at"`
	DaysLeft int       `json:"days_left"`
	IsActive bool      `json:"is_active"`
}
