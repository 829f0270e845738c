package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration.
type Config struct {
	Host string
	Port string

	// ReceiverHost is the receiver's address, host or host:port.
	ReceiverHost       string
	ReceiverTimeoutMs  int
	VolumeDebounceMs   int
	MenuPollIntervalMs int
	MenuPollAttempts   int
	// ResyncSchedule is a cron spec for periodic state refresh. Empty disables it.
	ResyncSchedule  string
	SourceNamesPath string

	SQLiteDBPath       string
	AuditRetentionDays int
	AuditPruneSchedule string

	// JWTSecret enables bearer-token auth when set.
	JWTSecret               string
	JWTAccessTokenExpirySec int

	// MQTT bridge settings (disabled if broker empty)
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTRetain      bool
}

// Load reads configuration from environment variables with defaults. A .env
// file in the working directory is applied first when present; variables
// already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARNING: could not read .env: %v", err)
	}

	cfg := Config{
		Host:                    envString("HOST", "0.0.0.0"),
		Port:                    envString("PORT", "9100"),
		ReceiverHost:            strings.TrimSpace(envString("RECEIVER_HOST", "")),
		ReceiverTimeoutMs:       envInt("RECEIVER_TIMEOUT_MS", 3000),
		VolumeDebounceMs:        envInt("VOLUME_DEBOUNCE_MS", 75),
		MenuPollIntervalMs:      envInt("MENU_POLL_INTERVAL_MS", 50),
		MenuPollAttempts:        envInt("MENU_POLL_ATTEMPTS", 20),
		ResyncSchedule:          envString("RESYNC_SCHEDULE", "@every 30s"),
		SourceNamesPath:         envString("SOURCE_NAMES_PATH", ""),
		SQLiteDBPath:            envString("SQLITE_DB_PATH", "./data/yamaha-remote.db"),
		AuditRetentionDays:      envInt("AUDIT_RETENTION_DAYS", 7),
		AuditPruneSchedule:      envString("AUDIT_PRUNE_SCHEDULE", "@daily"),
		JWTSecret:               envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec: envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		MQTTBroker:              envString("MQTT_BROKER", ""),
		MQTTClientID:            envString("MQTT_CLIENT_ID", "yamaha-remote"),
		MQTTUsername:            envString("MQTT_USERNAME", ""),
		MQTTPassword:            envString("MQTT_PASSWORD", ""),
		MQTTTopicPrefix:         strings.Trim(envString("MQTT_TOPIC_PREFIX", "yamaha"), "/"),
		MQTTRetain:              envBool("MQTT_RETAIN", true),
	}

	if cfg.ReceiverHost == "" {
		return Config{}, fmt.Errorf("RECEIVER_HOST is required")
	}
	if cfg.JWTSecret != "" && len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.ReceiverTimeoutMs <= 0 {
		return Config{}, fmt.Errorf("RECEIVER_TIMEOUT_MS must be positive")
	}
	if cfg.VolumeDebounceMs < 0 {
		return Config{}, fmt.Errorf("VOLUME_DEBOUNCE_MS must not be negative")
	}

	return cfg, nil
}

// AuthEnabled reports whether the API requires bearer tokens.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// ReceiverTimeout returns the per-exchange deadline.
func (c Config) ReceiverTimeout() time.Duration {
	return time.Duration(c.ReceiverTimeoutMs) * time.Millisecond
}

// VolumeDebounce returns the delay of the deferred volume write.
func (c Config) VolumeDebounce() time.Duration {
	return time.Duration(c.VolumeDebounceMs) * time.Millisecond
}

// MenuPollInterval returns the pause between menu readiness polls.
func (c Config) MenuPollInterval() time.Duration {
	return time.Duration(c.MenuPollIntervalMs) * time.Millisecond
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
