package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds settings for the client and relay binaries. Values come from
// an optional YAML file (CHESSDUO_CONFIG) with environment variables taking
// precedence over the file.
type AppConfig struct {
	// Client side.
	RelayURL     string `yaml:"relay_url"`      // ws:// or wss:// endpoint of the relay
	RelayHTTPURL string `yaml:"relay_http_url"` // http endpoint for health probes

	// Automated opponent.
	BotLevel      string `yaml:"bot_level"`
	BotDelayMs    int    `yaml:"bot_delay_ms"`
	BotRandomSeed int64  `yaml:"bot_random_seed"` // 0 = time-based

	// Relay server side.
	ListenAddr string `yaml:"listen_addr"`
	RedisURL   string `yaml:"redis_url"`
	RoomTTLSec int    `yaml:"room_ttl_sec"`

	ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`
}

const (
	defaultBotLevel   = "level3"
	defaultBotDelayMs = 500
	defaultListenAddr = ":8790"
	defaultRoomTTLSec = 24 * 60 * 60
	defaultReconnects = 5
)

// Load builds the configuration from the optional YAML file plus environment.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		BotLevel:             defaultBotLevel,
		BotDelayMs:           defaultBotDelayMs,
		ListenAddr:           defaultListenAddr,
		RoomTTLSec:           defaultRoomTTLSec,
		ReconnectMaxAttempts: defaultReconnects,
	}

	if path := strings.TrimSpace(os.Getenv("CHESSDUO_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.BotDelayMs < 0 {
		return nil, errors.New("bot_delay_ms must not be negative")
	}
	if cfg.RoomTTLSec <= 0 {
		cfg.RoomTTLSec = defaultRoomTTLSec
	}
	if cfg.ReconnectMaxAttempts < 0 {
		cfg.ReconnectMaxAttempts = 0
	}
	if strings.TrimSpace(cfg.BotLevel) == "" {
		cfg.BotLevel = defaultBotLevel
	}

	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("RELAY_URL")); v != "" {
		cfg.RelayURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RELAY_HTTP_URL")); v != "" {
		cfg.RelayHTTPURL = v
	}
	if v := strings.TrimSpace(os.Getenv("BOT_LEVEL")); v != "" {
		cfg.BotLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("BOT_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BotDelayMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOT_RANDOM_SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BotRandomSeed = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOM_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RoomTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECONNECT_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ReconnectMaxAttempts = n
		}
	}
}

// BotDelay returns the automated-opponent think delay as a duration.
func (c *AppConfig) BotDelay() time.Duration {
	return time.Duration(c.BotDelayMs) * time.Millisecond
}

// RoomTTL returns the relay room expiry as a duration.
func (c *AppConfig) RoomTTL() time.Duration {
	return time.Duration(c.RoomTTLSec) * time.Second
}
