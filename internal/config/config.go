// Package config loads the engine configuration from the environment.
// Every recognised variable is validated on load; a bad value fails fast
// with a reason a human can act on.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Config is the validated engine configuration.
type Config struct {
	DiscordToken string
	DatabaseURL  string

	PrivilegedUserID uint64

	DBEcho                     bool
	EnableMessageContentIntent bool

	LevelPersistInterval   time.Duration
	MessageXPInterval      time.Duration
	LevelupMessageCooldown time.Duration
	SelfTestInterval       time.Duration
	BackupInterval         time.Duration

	LogGuildID               uint64
	LogChannelID             uint64
	RaidlistDebugChannelID   uint64
	MemberlistDebugChannelID uint64

	LogLevel slog.Level
}

var envVars = []string{
	"DISCORD_TOKEN",
	"DATABASE_URL",
	"PRIVILEGED_USER_ID",
	"DB_ECHO",
	"ENABLE_MESSAGE_CONTENT_INTENT",
	"LEVEL_PERSIST_INTERVAL_SECONDS",
	"MESSAGE_XP_INTERVAL_SECONDS",
	"LEVELUP_MESSAGE_COOLDOWN_SECONDS",
	"LOG_GUILD_ID",
	"LOG_CHANNEL_ID",
	"SELF_TEST_INTERVAL_SECONDS",
	"BACKUP_INTERVAL_SECONDS",
	"RAIDLIST_DEBUG_CHANNEL_ID",
	"MEMBERLIST_DEBUG_CHANNEL_ID",
	"DISCORD_LOG_LEVEL",
}

// Load reads and validates the environment.
func Load() (*Config, error) {
	v := viper.New()
	for _, name := range envVars {
		if err := v.BindEnv(name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	v.SetDefault("LEVEL_PERSIST_INTERVAL_SECONDS", 30)
	v.SetDefault("MESSAGE_XP_INTERVAL_SECONDS", 60)
	v.SetDefault("LEVELUP_MESSAGE_COOLDOWN_SECONDS", 60)
	v.SetDefault("SELF_TEST_INTERVAL_SECONDS", 300)
	v.SetDefault("BACKUP_INTERVAL_SECONDS", 3600)
	v.SetDefault("DISCORD_LOG_LEVEL", "INFO")

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DiscordToken:               v.GetString("DISCORD_TOKEN"),
		DatabaseURL:                v.GetString("DATABASE_URL"),
		DBEcho:                     v.GetBool("DB_ECHO"),
		EnableMessageContentIntent: v.GetBool("ENABLE_MESSAGE_CONTENT_INTENT"),
	}

	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required: set it to the bot gateway credential")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required: set it to the database DSN")
	}

	var err error
	if cfg.PrivilegedUserID, err = positiveID(v, "PRIVILEGED_USER_ID"); err != nil {
		return nil, err
	}
	if cfg.LogGuildID, err = id(v, "LOG_GUILD_ID"); err != nil {
		return nil, err
	}
	if cfg.LogChannelID, err = id(v, "LOG_CHANNEL_ID"); err != nil {
		return nil, err
	}
	if cfg.RaidlistDebugChannelID, err = id(v, "RAIDLIST_DEBUG_CHANNEL_ID"); err != nil {
		return nil, err
	}
	if cfg.MemberlistDebugChannelID, err = id(v, "MEMBERLIST_DEBUG_CHANNEL_ID"); err != nil {
		return nil, err
	}

	if cfg.LevelPersistInterval, err = seconds(v, "LEVEL_PERSIST_INTERVAL_SECONDS", 5); err != nil {
		return nil, err
	}
	if cfg.MessageXPInterval, err = seconds(v, "MESSAGE_XP_INTERVAL_SECONDS", 1); err != nil {
		return nil, err
	}
	if cfg.LevelupMessageCooldown, err = seconds(v, "LEVELUP_MESSAGE_COOLDOWN_SECONDS", 1); err != nil {
		return nil, err
	}
	if cfg.SelfTestInterval, err = seconds(v, "SELF_TEST_INTERVAL_SECONDS", 30); err != nil {
		return nil, err
	}
	if cfg.BackupInterval, err = seconds(v, "BACKUP_INTERVAL_SECONDS", 300); err != nil {
		return nil, err
	}

	if cfg.LogLevel, err = ParseLogLevel(v.GetString("DISCORD_LOG_LEVEL")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func id(v *viper.Viper, name string) (uint64, error) {
	if !v.IsSet(name) {
		return 0, nil
	}
	val := v.GetInt64(name)
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %d", name, val)
	}
	return uint64(val), nil
}

// positiveID is id with zero rejected; used for the superuser id, where 0
// would silently grant nobody the privilege.
func positiveID(v *viper.Viper, name string) (uint64, error) {
	if !v.IsSet(name) {
		return 0, nil
	}
	val := v.GetInt64(name)
	if val <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %d", name, val)
	}
	return uint64(val), nil
}

func seconds(v *viper.Viper, name string, min int64) (time.Duration, error) {
	val := v.GetInt64(name)
	if val < min {
		return 0, fmt.Errorf("%s must be >= %d seconds, got %d", name, min, val)
	}
	return time.Duration(val) * time.Second, nil
}

// ParseLogLevel maps the DISCORD_LOG_LEVEL names onto slog levels.
// CRITICAL maps above ERROR.
func ParseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return slog.LevelError + 4, nil
	}
	return 0, fmt.Errorf("DISCORD_LOG_LEVEL must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", s)
}
