// SPDX-License-Identifier: AGPL-3.0-only

// Package config holds application configuration. Values are layered:
// defaults, then an optional TOML file, then TODOLIST_* environment
// variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPrefix prefixes every environment variable read by FromEnv
const EnvPrefix = "TODOLIST_"

// Config is the complete application configuration
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Logging       LoggingConfig       `toml:"logging"`
	Storage       StorageConfig       `toml:"storage"`
	Notifications NotificationsConfig `toml:"notifications"`
	Reminders     RemindersConfig     `toml:"reminders"`
}

// ServerConfig configures the tool server
type ServerConfig struct {
	Name          string `toml:"name"`
	Version       string `toml:"version"`
	Address       string `toml:"address"`
	Port          int    `toml:"port"`
	TransportMode string `toml:"transport"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level    string `toml:"level"`
	FilePath string `toml:"file"`
}

// StorageConfig selects and configures the key-value backend
type StorageConfig struct {
	// Backend is one of json, bolt, sqlite, memory
	Backend string `toml:"backend"`
	// Dir holds the json backend files and the default bolt/sqlite databases
	Dir        string `toml:"dir"`
	BoltPath   string `toml:"bolt_path"`
	SQLitePath string `toml:"sqlite_path"`
	// Watch reloads tasks when the backing file changes outside the process
	Watch bool `toml:"watch"`
}

// NotificationsConfig configures the local notification service
type NotificationsConfig struct {
	// Permission is the initial permission state: granted, denied or undetermined
	Permission string `toml:"permission"`
	// ProjectID is required to obtain a push token
	ProjectID  string `toml:"project_id"`
	ShowAlert  bool   `toml:"show_alert"`
	PlaySound  bool   `toml:"play_sound"`
	SetBadge   bool   `toml:"set_badge"`
	Timezone   string `toml:"timezone"`
	WebhookURL string `toml:"webhook_url"`
	Sender     string `toml:"sender"`
	// RedisAddr enables publishing delivered notifications to RedisChannel
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisChannel  string `toml:"redis_channel"`
}

// RemindersConfig configures the reminder batches
type RemindersConfig struct {
	IntervalHours int      `toml:"interval_hours"`
	DailyTimes    []string `toml:"daily_times"`
	// AutoRefresh reschedules the recurring batch after every task mutation
	AutoRefresh bool `toml:"auto_refresh"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "todolist",
			Version:       "dev",
			Address:       "localhost",
			Port:          8080,
			TransportMode: "stdio",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Backend: "json",
			Watch:   true,
		},
		Notifications: NotificationsConfig{
			Permission:   "undetermined",
			ShowAlert:    true,
			PlaySound:    true,
			SetBadge:     false,
			Sender:       "runtime:todolist",
			RedisChannel: "todolist_notifications",
		},
		Reminders: RemindersConfig{
			IntervalHours: 3,
			DailyTimes:    []string{"09:00", "12:00", "15:00", "18:00", "21:00"},
		},
	}
}

// LoadFile overlays the TOML file at path onto cfg
func LoadFile(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

// FromEnv overlays TODOLIST_* environment variables onto cfg.
// Unparseable numeric or boolean values are ignored.
func FromEnv(cfg *Config) {
	setString(&cfg.Server.Name, "SERVER_NAME")
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.TransportMode, "SERVER_TRANSPORT")

	setString(&cfg.Logging.Level, "LOGGING_LEVEL")
	setString(&cfg.Logging.FilePath, "LOGGING_FILE")

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.Dir, "STORAGE_DIR")
	setString(&cfg.Storage.BoltPath, "STORAGE_BOLT_PATH")
	setString(&cfg.Storage.SQLitePath, "STORAGE_SQLITE_PATH")
	setBool(&cfg.Storage.Watch, "STORAGE_WATCH")

	setString(&cfg.Notifications.Permission, "NOTIFICATIONS_PERMISSION")
	setString(&cfg.Notifications.ProjectID, "NOTIFICATIONS_PROJECT_ID")
	setBool(&cfg.Notifications.ShowAlert, "NOTIFICATIONS_SHOW_ALERT")
	setBool(&cfg.Notifications.PlaySound, "NOTIFICATIONS_PLAY_SOUND")
	setBool(&cfg.Notifications.SetBadge, "NOTIFICATIONS_SET_BADGE")
	setString(&cfg.Notifications.Timezone, "NOTIFICATIONS_TIMEZONE")
	setString(&cfg.Notifications.WebhookURL, "NOTIFICATIONS_WEBHOOK_URL")
	setString(&cfg.Notifications.Sender, "NOTIFICATIONS_SENDER")
	setString(&cfg.Notifications.RedisAddr, "NOTIFICATIONS_REDIS_ADDR")
	setString(&cfg.Notifications.RedisPassword, "NOTIFICATIONS_REDIS_PASSWORD")
	setInt(&cfg.Notifications.RedisDB, "NOTIFICATIONS_REDIS_DB")
	setString(&cfg.Notifications.RedisChannel, "NOTIFICATIONS_REDIS_CHANNEL")

	setInt(&cfg.Reminders.IntervalHours, "REMINDERS_INTERVAL_HOURS")
	setBool(&cfg.Reminders.AutoRefresh, "REMINDERS_AUTO_REFRESH")
	if v, ok := lookup("REMINDERS_DAILY_TIMES"); ok {
		var times []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				times = append(times, p)
			}
		}
		cfg.Reminders.DailyTimes = times
	}
}

// Validate checks cfg for values the application cannot run with
func (c *Config) Validate() error {
	switch c.Server.TransportMode {
	case "stdio", "sse":
	default:
		return fmt.Errorf("unsupported transport mode: %q", c.Server.TransportMode)
	}
	if c.Server.TransportMode == "sse" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "json", "bolt", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}
	switch c.Notifications.Permission {
	case "granted", "denied", "undetermined":
	default:
		return fmt.Errorf("invalid notification permission: %q", c.Notifications.Permission)
	}
	if c.Notifications.Timezone != "" {
		if _, err := time.LoadLocation(c.Notifications.Timezone); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}
	if c.Reminders.IntervalHours < 1 || c.Reminders.IntervalHours > 24 {
		return fmt.Errorf("reminder interval must be between 1 and 24 hours, got %d", c.Reminders.IntervalHours)
	}
	if _, err := c.Reminders.Times(); err != nil {
		return err
	}
	return nil
}

// TimeOfDay is an hour and minute on the local clock
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Times parses DailyTimes
func (r RemindersConfig) Times() ([]TimeOfDay, error) {
	out := make([]TimeOfDay, 0, len(r.DailyTimes))
	for _, s := range r.DailyTimes {
		tod, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		out = append(out, tod)
	}
	return out, nil
}

// Location returns the configured timezone, or time.Local
func (n NotificationsConfig) Location() *time.Location {
	if n.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(n.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, name string) {
	if v, ok := lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
