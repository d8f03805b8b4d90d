package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharhbot/sharhbot"
)

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	// Save the original environment
	originalEnv := os.Environ()
	t.Cleanup(
		func() {
			os.Clearenv()
			for _, envVar := range originalEnv {
				parts := strings.SplitN(envVar, "=", 2)
				os.Setenv(parts[0], parts[1])
			}
		},
	)

	// Clear the environment before the test
	os.Clearenv()

	tmpdir := t.TempDir()

	// Set up the test environment file
	envFile := filepath.Join(tmpdir, "test.env")

	envContent := `
# General/database config

SHARH_DATABASE=/home/foo/sharhbot.sqlite3
SHARH_DATABASE_LOG_LEVEL=INFO
SHARH_DATABASE_SLOW_THRESHOLD=200ms
SHARH_LOG_LEVEL=INFO
SHARH_STARTUP_TIMEOUT=30s
SHARH_SHUTDOWN_TIMEOUT=60s

# Discord bot config

SHARH_DISCORD_TOKEN=your-discord-bot-token
SHARH_DISCORD_APPLICATION_ID=your-discord-bot-app-id
SHARH_DISCORD_GUILD_ID=
SHARH_DISCORD_LOG_LEVEL=WARN
SHARH_DISCORD_DISCORDGO_LOG_LEVEL=WARN
SHARH_DISCORD_STARTUP_MESSAGE="I'm here!"
SHARH_DISCORD_GATEWAY_INTENTS=3
SHARH_DISCORD_NOTIFICATION_CHANNEL_ID=123456789

# Explanation workflow

SHARH_EXPLANATION_REVIEW_CHANNEL_ID=111111111
SHARH_EXPLANATION_ANNOUNCE_CHANNEL_ID=222222222
SHARH_EXPLANATION_REVIEWER_ROLE_ID=333333333
SHARH_EXPLANATION_REWARD_ROLE_ID=444444444
SHARH_EXPLANATION_REQUEST_TTL=24h
SHARH_EXPLANATION_SWEEP_INTERVAL=1h

# Nickname assignment

SHARH_NICKNAME_ENABLED=true
SHARH_NICKNAME_STARTING_ID=1000

# API server

SHARH_API_LISTEN=127.0.0.1:5000
SHARH_API_LOG_LEVEL=DEBUG
SHARH_API_READ_TIMEOUT=5s
SHARH_API_READ_HEADER_TIMEOUT=5s
SHARH_API_WRITE_TIMEOUT=10s
SHARH_API_IDLE_TIMEOUT=30s
`

	err := os.WriteFile(envFile, []byte(envContent), 0644)
	assert.NoError(t, err)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "/home/foo/sharhbot.sqlite3", cfg.Database)
	assert.Equal(t, "/home/foo/sharhbot.sqlite3", viper.GetString("database"))

	assertLogLevel(t, slog.LevelInfo, viper.Get("database_log_level"))

	assert.Equal(t, 200*time.Millisecond, viper.GetDuration("database_slow_threshold"))
	assertLogLevel(t, slog.LevelInfo, viper.Get("log_level"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("startup_timeout"))
	assert.Equal(t, 60*time.Second, viper.GetDuration("shutdown_timeout"))

	assert.Equal(t, "your-discord-bot-token", viper.GetString("discord.token"))
	assert.Equal(t, "your-discord-bot-app-id", viper.GetString("discord.application_id"))
	assert.Equal(t, "", viper.GetString("discord.guild_id"))

	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.log_level"))
	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.discordgo_log_level"))
	assert.Equal(t, "I'm here!", viper.GetString("discord.startup_message"))
	assert.Equal(t, 3, viper.GetInt("discord.gateway_intents"))
	assert.Equal(t, "123456789", viper.GetString("discord.notification_channel_id"))

	assert.Equal(t, "111111111", viper.GetString("explanation.review_channel_id"))
	assert.Equal(t, "222222222", viper.GetString("explanation.announce_channel_id"))
	assert.Equal(t, "333333333", viper.GetString("explanation.reviewer_role_id"))
	assert.Equal(t, "444444444", viper.GetString("explanation.reward_role_id"))
	assert.Equal(t, 24*time.Hour, viper.GetDuration("explanation.request_ttl"))
	assert.Equal(t, time.Hour, viper.GetDuration("explanation.sweep_interval"))

	assert.True(t, viper.GetBool("nickname.enabled"))
	assert.Equal(t, int64(1000), viper.GetInt64("nickname.starting_id"))

	assert.Equal(t, "127.0.0.1:5000", viper.GetString("api.listen"))
	assertLogLevel(t, slog.LevelDebug, viper.Get("api.log_level"))
	assert.Equal(t, slog.LevelDebug, cfg.API.LogLevel.Level())
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_timeout"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_header_timeout"))
	assert.Equal(t, 10*time.Second, viper.GetDuration("api.write_timeout"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("api.idle_timeout"))

	// Unmarshal the configuration into a sharhbot.Config struct
	var config sharhbot.Config
	err = viper.Unmarshal(
		&config, viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
	assert.NoError(t, err)

	// Verify some key fields in the Config struct
	assert.Equal(t, "/home/foo/sharhbot.sqlite3", config.Database)
	assert.Equal(t, slog.LevelInfo, config.DatabaseLogLevel.Level())
	assert.Equal(t, 200*time.Millisecond, config.DatabaseSlowThreshold)
	assert.Equal(t, slog.LevelInfo, config.LogLevel.Level())
	assert.Equal(t, 30*time.Second, config.StartupTimeout)
	assert.Equal(t, 60*time.Second, config.ShutdownTimeout)

	assert.Equal(t, "your-discord-bot-token", config.Discord.Token)
	assert.Equal(t, "your-discord-bot-app-id", config.Discord.ApplicationID)
	assert.Equal(t, "", config.Discord.GuildID)
	assert.Equal(t, slog.LevelWarn, config.Discord.LogLevel.Level())
	assert.Equal(t, slog.LevelWarn, config.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, "I'm here!", config.Discord.StartupMessage)
	assert.Equal(t, discordgo.Intent(3), config.Discord.GatewayIntents)
	assert.Equal(t, "123456789", config.Discord.NotificationChannelID)

	assert.Equal(t, "111111111", config.Explanation.ReviewChannelID)
	assert.Equal(t, "222222222", config.Explanation.AnnounceChannelID)
	assert.Equal(t, "333333333", config.Explanation.ReviewerRoleID)
	assert.Equal(t, "444444444", config.Explanation.RewardRoleID)
	assert.Equal(t, 24*time.Hour, config.Explanation.RequestTTL)
	assert.Equal(t, time.Hour, config.Explanation.SweepInterval)

	assert.True(t, config.Nickname.Enabled)
	assert.Equal(t, int64(1000), config.Nickname.StartingID)

	assert.Equal(t, "127.0.0.1:5000", config.API.Listen)
	assert.Equal(t, slog.LevelDebug, config.API.LogLevel.Level())
	assert.Equal(t, 5*time.Second, config.API.ReadTimeout)
	assert.Equal(t, 5*time.Second, config.API.ReadHeaderTimeout)
	assert.Equal(t, 10*time.Second, config.API.WriteTimeout)
	assert.Equal(t, 30*time.Second, config.API.IdleTimeout)
}
