package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseViper() *viper.Viper {
	v := viper.New()
	v.Set("DISCORD_TOKEN", "token")
	v.Set("DATABASE_URL", "postgres://localhost/dmw")
	v.Set("LEVEL_PERSIST_INTERVAL_SECONDS", 30)
	v.Set("MESSAGE_XP_INTERVAL_SECONDS", 60)
	v.Set("LEVELUP_MESSAGE_COOLDOWN_SECONDS", 60)
	v.Set("SELF_TEST_INTERVAL_SECONDS", 300)
	v.Set("BACKUP_INTERVAL_SECONDS", 3600)
	v.Set("DISCORD_LOG_LEVEL", "INFO")
	return v
}

func TestLoadHappyPath(t *testing.T) {
	cfg, err := fromViper(baseViper())
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, 30*time.Second, cfg.LevelPersistInterval)
	assert.Equal(t, time.Hour, cfg.BackupInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadRequiresToken(t *testing.T) {
	v := baseViper()
	v.Set("DISCORD_TOKEN", "")
	_, err := fromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_TOKEN")
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	v := baseViper()
	v.Set("DATABASE_URL", "")
	_, err := fromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRejectsShortIntervals(t *testing.T) {
	cases := map[string]int{
		"LEVEL_PERSIST_INTERVAL_SECONDS":   4,
		"MESSAGE_XP_INTERVAL_SECONDS":      0,
		"LEVELUP_MESSAGE_COOLDOWN_SECONDS": 0,
		"SELF_TEST_INTERVAL_SECONDS":       29,
		"BACKUP_INTERVAL_SECONDS":          299,
	}
	for name, val := range cases {
		v := baseViper()
		v.Set(name, val)
		_, err := fromViper(v)
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), name)
	}
}

func TestLoadRejectsNegativeIDs(t *testing.T) {
	v := baseViper()
	v.Set("PRIVILEGED_USER_ID", -1)
	_, err := fromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIVILEGED_USER_ID")
}

func TestLoadRejectsZeroPrivilegedUserID(t *testing.T) {
	v := baseViper()
	v.Set("PRIVILEGED_USER_ID", 0)
	_, err := fromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIVILEGED_USER_ID")

	// Zero stays fine for the optional channel ids.
	v = baseViper()
	v.Set("LOG_CHANNEL_ID", 0)
	_, err = fromViper(v)
	require.NoError(t, err)
}

func TestLoadPrivilegedUserIDOptional(t *testing.T) {
	cfg, err := fromViper(baseViper())
	require.NoError(t, err)
	assert.Zero(t, cfg.PrivilegedUserID)
}

func TestParseLogLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"DEBUG":    slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		"WARNING":  slog.LevelWarn,
		"ERROR":    slog.LevelError,
		"CRITICAL": slog.LevelError + 4,
	} {
		got, err := ParseLogLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
	_, err := ParseLogLevel("TRACE")
	assert.Error(t, err)
}
