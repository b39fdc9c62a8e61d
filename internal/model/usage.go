package model

import "time"

// FreeTierUsage is the per-day usage accumulator for one user on one bot.
type FreeTierUsage struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	BotIdentity   string    `json:"bot_identity"`
	Date          string    `json:"date"`
	SecondsUsed   int       `json:"seconds_used"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// UsageSummary breaks today's free-tier usage into hours and minutes.
type UsageSummary struct {
	Date             string `json:"date"`
	UsedSeconds      int    `json:"used_seconds"`
	UsedHours        int    `json:"used_hours"`
	UsedMinutes      int    `json:"used_minutes"`
	RemainingSeconds int    `json:"remaining_seconds"`
	RemainingHours   int    `json:"remaining_hours"`
	RemainingMinutes int    `json:"remaining_minutes"`
	MaxHours         int    `json:"max_hours"`
	MaxSeconds       int    `json:"max_seconds"`
	CanUse           bool   `json:"can_use"`
}
