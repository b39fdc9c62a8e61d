package model

import "time"

// BotSettings holds per-bot configuration stored alongside the grants.
type BotSettings struct {
	BotIdentity  string    `json:"bot_identity"`
	LogChannelID *int64    `json:"log_channel_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}
