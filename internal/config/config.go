// Package config reads gatekeeper settings from the environment, with an
// optional .env file underneath.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken    string
	BotIdentity string

	OwnerID int64
	Admins  []int64

	DBPath    string
	LogLevel  string
	LogFormat string

	FreeTierMaxHours int
	SweepInterval    time.Duration
	StoreTimeout     time.Duration
	Location         *time.Location

	HTTPAddr     string
	CommandRate  float64
	CommandBurst int
}

// Load reads the process environment, filling gaps from .env when present.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. Variables already set in
// the environment win over the file; a missing file is not an error.
// An empty environment value counts as unset.
func LoadFile(path string) (*Config, error) {
	fileVars, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	})
}

// Parse builds a Config from a lookup function such as os.LookupEnv.
func Parse(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		BotToken:    get("BOT_TOKEN", ""),
		BotIdentity: strings.TrimPrefix(get("BOT_IDENTITY", ""), "@"),
		DBPath:      get("DB_PATH", "gatekeeper.db"),
		LogLevel:    get("LOG_LEVEL", "info"),
		LogFormat:   get("LOG_FORMAT", "text"),
		HTTPAddr:    get("HTTP_ADDR", ":9090"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	owner := get("OWNER_ID", "")
	if owner == "" {
		return nil, fmt.Errorf("OWNER_ID is required")
	}
	id, err := strconv.ParseInt(owner, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid OWNER_ID %q", owner)
	}
	cfg.OwnerID = id

	if cfg.Admins, err = ParseIDs(get("ADMINS", "")); err != nil {
		return nil, fmt.Errorf("invalid ADMINS: %w", err)
	}

	if cfg.FreeTierMaxHours, err = strconv.Atoi(get("FREE_TIER_MAX_HOURS", "2")); err != nil || cfg.FreeTierMaxHours < 0 {
		return nil, fmt.Errorf("invalid FREE_TIER_MAX_HOURS %q", get("FREE_TIER_MAX_HOURS", ""))
	}
	if cfg.SweepInterval, err = positiveDuration(get("SWEEP_INTERVAL", "1h")); err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	if cfg.StoreTimeout, err = positiveDuration(get("STORE_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}

	tz := get("TIMEZONE", "Local")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	if cfg.CommandRate, err = strconv.ParseFloat(get("COMMAND_RATE", "1"), 64); err != nil || cfg.CommandRate < 0 {
		return nil, fmt.Errorf("invalid COMMAND_RATE %q", get("COMMAND_RATE", ""))
	}
	if cfg.CommandBurst, err = strconv.Atoi(get("COMMAND_BURST", "5")); err != nil || cfg.CommandBurst < 1 {
		return nil, fmt.Errorf("invalid COMMAND_BURST %q", get("COMMAND_BURST", ""))
	}

	return cfg, nil
}

// ParseIDs splits a comma or whitespace separated list of user IDs.
func ParseIDs(s string) ([]int64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", f, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func positiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", s)
	}
	return d, nil
}
