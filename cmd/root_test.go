package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cheerawab/cherry0324/cherry"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}

// unsetEnv clears keys for the duration of the test, restoring them after
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")

	envContent := `
# General/database config

CHERRY_DATABASE=/home/foo/cherry.sqlite3
CHERRY_DATABASE_TYPE=sqlite
CHERRY_DATABASE_LOG_LEVEL=INFO
CHERRY_DATABASE_SLOW_THRESHOLD=200ms
CHERRY_DATA_DIR=/var/lib/cherry
CHERRY_LOG_LEVEL=INFO
CHERRY_STARTUP_TIMEOUT=30s
CHERRY_SHUTDOWN_TIMEOUT=60s
CHERRY_DEVELOPMENT=true
CHERRY_TIMEZONE=Asia/Taipei
CHERRY_AUTO_RESPONSE_CHANCE=0.5
CHERRY_POLICY_FILE=/etc/cherry/allowed.json

# Document store

CHERRY_STORE_BACKEND=redis
CHERRY_STORE_REDIS_ADDR=redis:6379
CHERRY_STORE_REDIS_DB=2

# Guild

CHERRY_GUILD_ARCHIVE_CHANNEL_ID=archive-chan
CHERRY_GUILD_ARCHIVE_HTML=true
CHERRY_GUILD_SUPPORT_ROLE_IDS=role-1 role-2

# AI chat

CHERRY_AI_API_KEY=your-ai-key
CHERRY_AI_MODEL=gemini-2.0-flash
CHERRY_AI_MEMORY_TURNS=10
CHERRY_AI_TIMEOUT=45s
CHERRY_AI_LOG_LEVEL=DEBUG

# Discord bot config

CHERRY_DISCORD_TOKEN=your-discord-bot-token
CHERRY_DISCORD_APPLICATION_ID=your-discord-bot-app-id
CHERRY_DISCORD_GUILD_ID=
CHERRY_DISCORD_LOG_LEVEL=WARN
CHERRY_DISCORD_DISCORDGO_LOG_LEVEL=WARN
CHERRY_DISCORD_GATEWAY_INTENTS=3243773

# Discord webhook server

CHERRY_DISCORD_WEBHOOK_SERVER_ENABLED=false
CHERRY_DISCORD_WEBHOOK_SERVER_LISTEN=127.0.0.1:5001
CHERRY_DISCORD_WEBHOOK_SERVER_SSL_CERT=/etc/ssl/cert.pem
CHERRY_DISCORD_WEBHOOK_SERVER_SSL_KEY=/etc/ssl/cert.key
CHERRY_DISCORD_WEBHOOK_SERVER_SSL_TLS_MIN_VERSION=771
CHERRY_DISCORD_WEBHOOK_SERVER_PUBLIC_KEY=your_discord_public_key_here
CHERRY_DISCORD_WEBHOOK_SERVER_READ_TIMEOUT=5s

# API server

CHERRY_API_LISTEN=127.0.0.1:5000
CHERRY_API_SSL_CERT=/etc/ssl/cert.pem
CHERRY_API_SSL_KEY=/etc/ssl/key.pem
CHERRY_API_SECRET=your-api-secret
CHERRY_API_LOG_LEVEL=DEBUG
CHERRY_API_CORS_ALLOW_ORIGINS=https://127.0.0.1:5000 https://localhost:5000
CHERRY_API_CORS_ALLOW_METHODS=GET POST PATCH DELETE
CHERRY_API_CORS_MAX_AGE=12h
CHERRY_API_SESSION_MAX_AGE=6h
`
	require.NoError(t, os.WriteFile(envFile, []byte(envContent), 0o600))

	// godotenv doesn't override variables that are already set
	var keys []string
	for _, line := range strings.Split(envContent, "\n") {
		if k, _, ok := strings.Cut(line, "="); ok && !strings.HasPrefix(k, "#") {
			keys = append(keys, k)
		}
	}
	unsetEnv(t, keys...)
	t.Cleanup(
		func() {
			configFile = ""
		},
	)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assertLogLevel(t, slog.LevelInfo, viper.Get("database_log_level"))
	assertLogLevel(t, slog.LevelDebug, viper.Get("api.log_level"))

	assert.Equal(t, "/home/foo/cherry.sqlite3", cfg.Database)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, slog.LevelInfo, cfg.DatabaseLogLevel.Level())
	assert.Equal(t, 200*time.Millisecond, cfg.DatabaseSlowThreshold)
	assert.Equal(t, "/var/lib/cherry", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 60*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.Development)
	assert.Equal(t, "Asia/Taipei", cfg.Timezone)
	assert.InDelta(t, 0.5, cfg.AutoResponseChance, 0.0001)
	assert.Equal(t, "/etc/cherry/allowed.json", cfg.PolicyFile)
	assert.Equal(t, cherry.DefaultResponsesFile, cfg.ResponsesFile)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, cherry.DefaultRedisKeyPrefix, cfg.Store.RedisKeyPrefix)

	assert.Equal(t, "archive-chan", cfg.Guild.ArchiveChannelID)
	assert.True(t, cfg.Guild.ArchiveHTML)
	assert.False(t, cfg.Guild.ArchiveCompress)
	assert.Equal(t, []string{"role-1", "role-2"}, cfg.Guild.SupportRoleIDs)
	assert.Equal(t, cherry.DefaultSelfIntroEmoji, cfg.Guild.SelfIntroEmoji)

	assert.Equal(t, "your-ai-key", cfg.AI.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.AI.Model)
	assert.Equal(t, 10, cfg.AI.MemoryTurns)
	assert.Equal(t, 45*time.Second, cfg.AI.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.AI.LogLevel.Level())
	assert.Equal(t, cherry.DefaultAIBaseURL, cfg.AI.BaseURL)

	assert.Equal(t, "your-discord-bot-token", cfg.Discord.Token)
	assert.Equal(t, "your-discord-bot-app-id", cfg.Discord.ApplicationID)
	assert.Equal(t, "", cfg.Discord.GuildID)
	assert.Equal(t, slog.LevelWarn, cfg.Discord.LogLevel.Level())
	assert.Equal(t, slog.LevelWarn, cfg.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, discordgo.Intent(3243773), cfg.Discord.GatewayIntents)

	wh := cfg.Discord.WebhookServer
	assert.False(t, wh.Enabled)
	assert.Equal(t, "127.0.0.1:5001", wh.Listen)
	assert.Equal(t, "/etc/ssl/cert.pem", wh.SSL.Cert)
	assert.Equal(t, "/etc/ssl/cert.key", wh.SSL.Key)
	assert.Equal(t, uint16(771), wh.SSL.TLSMinVersion)
	assert.Equal(t, "your_discord_public_key_here", wh.PublicKey)
	assert.Equal(t, 5*time.Second, wh.ReadTimeout)
	assert.Equal(t, cherry.DefaultWriteTimeout, wh.WriteTimeout)

	assert.Equal(t, "127.0.0.1:5000", cfg.API.Listen)
	assert.Equal(t, "/etc/ssl/cert.pem", cfg.API.SSL.Cert)
	assert.Equal(t, "/etc/ssl/key.pem", cfg.API.SSL.Key)
	assert.Equal(t, "your-api-secret", cfg.API.Secret)
	assert.Equal(t, slog.LevelDebug, cfg.API.LogLevel.Level())
	assert.Equal(t, 6*time.Hour, cfg.API.SessionMaxAge)
	assert.Equal(
		t,
		[]string{"https://127.0.0.1:5000", "https://localhost:5000"},
		cfg.API.CORS.AllowOrigins,
	)
	assert.Equal(t, []string{"GET", "POST", "PATCH", "DELETE"}, cfg.API.CORS.AllowMethods)
	assert.Equal(t, cherry.DefaultCORSAllowHeaders, cfg.API.CORS.AllowHeaders)
	assert.Equal(t, 12*time.Hour, cfg.API.CORS.MaxAge)
	assert.True(t, cfg.API.CORS.AllowCredentials)
}

func TestLegacyEnvironmentVariables(t *testing.T) {
	unsetEnv(
		t,
		"CHERRY_DISCORD_TOKEN",
		"CHERRY_GUILD_RESTRICTED_CHANNEL_ID",
		"CHERRY_GUILD_SELF_INTRO_CHANNEL_ID",
		"CHERRY_AI_API_KEY",
		"CHERRY_GUILD_SUPPORT_ROLE_IDS",
	)
	t.Setenv("SUPPORT_ROLE_ID", "r1,r2")
	t.Setenv("DISCORD_TOKEN", "legacy-token")
	t.Setenv("ALLOWED_CHANNEL_ID", "legacy-restricted")
	t.Setenv("SELFINTRODUCTIONCHANNEL", "legacy-intro")
	t.Setenv("GEMINI_API_KEY", "legacy-key")
	t.Setenv("CHERRY_AI_API_KEY", "prefixed-key")

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "legacy-token", cfg.Discord.Token)
	assert.Equal(t, "legacy-restricted", cfg.Guild.RestrictedChannelID)
	assert.Equal(t, "legacy-intro", cfg.Guild.SelfIntroChannelID)
	assert.Equal(t, "prefixed-key", cfg.AI.APIKey)
	assert.Equal(t, []string{"r1", "r2"}, cfg.Guild.SupportRoleIDs)
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(
		t,
		[]string{"a", "b", "c"},
		splitList([]string{"a,b", " ", "c,"}),
	)
	assert.Empty(t, splitList(nil))
}

func TestLevelToStringHookFunc(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"loud", 0, true},
	}
	hook := LevelToStringHookFunc()
	for _, tc := range tests {
		v, err := hook(
			reflect.TypeOf(""),
			reflect.TypeOf(&slog.LevelVar{}),
			tc.in,
		)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assertLogLevel(t, tc.want, v)
	}

	// other targets pass through untouched
	v, err := hook(reflect.TypeOf(""), reflect.TypeOf(""), "DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", v)
}
