package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/gatekeeper/internal/model"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, botIdentity string) (*model.BotSettings, error) {
	var bs model.BotSettings
	var logChannel sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT bot_identity, log_channel_id, updated_at FROM bot_settings WHERE bot_identity = ?`,
		botIdentity,
	).Scan(&bs.BotIdentity, &logChannel, &bs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bot settings %q: %w", botIdentity, err)
	}
	if logChannel.Valid {
		bs.LogChannelID = &logChannel.Int64
	}
	return &bs, nil
}

func (s *SettingsStore) SetLogChannel(ctx context.Context, botIdentity string, channelID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_settings (bot_identity, log_channel_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(bot_identity) DO UPDATE SET log_channel_id = excluded.log_channel_id, updated_at = excluded.updated_at`,
		botIdentity, channelID, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("set log channel for %q: %w", botIdentity, err)
	}
	return nil
}
