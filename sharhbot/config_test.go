package sharhbot

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel.Level())
	assert.Equal(t, DefaultStartupTimeout, cfg.StartupTimeout)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)

	require.NotNil(t, cfg.Discord)
	assert.Equal(t, DefaultDiscordGatewayIntent, cfg.Discord.GatewayIntents)
	assert.Equal(t, slog.LevelWarn, cfg.Discord.LogLevel.Level())
	assert.Equal(t, DefaultDiscordStartupMessage, cfg.Discord.StartupMessage)

	require.NotNil(t, cfg.Explanation)
	assert.Equal(t, 24*time.Hour, cfg.Explanation.RequestTTL)
	assert.Equal(t, time.Hour, cfg.Explanation.SweepInterval)

	require.NotNil(t, cfg.Nickname)
	assert.True(t, cfg.Nickname.Enabled)
	assert.Equal(t, int64(DefaultStartingID), cfg.Nickname.StartingID)

	require.NotNil(t, cfg.API)
	assert.Equal(t, DefaultAPIListen, cfg.API.Listen)
	assert.Equal(t, "tcp", cfg.API.ListenNetwork)
}

func TestValidateConfigRequiresDiscordCredentials(t *testing.T) {
	cfg := DefaultConfig()
	err := structValidator.Struct(cfg)
	require.Error(t, err)

	cfg.Discord.Token = "bot-token"
	cfg.Discord.ApplicationID = "app-id"
	assert.NoError(t, structValidator.Struct(cfg))
}

func TestValidateConfigAuditWebhookURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discord.Token = "bot-token"
	cfg.Discord.ApplicationID = "app-id"

	cfg.Discord.AuditWebhookURL = "not-a-url"
	assert.Error(t, structValidator.Struct(cfg))

	cfg.Discord.AuditWebhookURL = "https://discord.com/api/webhooks/1/t"
	assert.NoError(t, structValidator.Struct(cfg))
}

func TestValidateConfigAPIListen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discord.Token = "bot-token"
	cfg.Discord.ApplicationID = "app-id"

	cfg.API.Listen = "not-a-listen-address"
	assert.Error(t, structValidator.Struct(cfg))

	cfg.API.Listen = "0.0.0.0:8080"
	assert.NoError(t, structValidator.Struct(cfg))
}
