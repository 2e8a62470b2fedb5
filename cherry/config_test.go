package cherry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Discord.Token = "bot-token"
	cfg.Discord.ApplicationID = "app-id"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing token", func(cfg *Config) { cfg.Discord.Token = "" }, true},
		{"missing application id", func(cfg *Config) { cfg.Discord.ApplicationID = "" }, true},
		{"unknown timezone", func(cfg *Config) { cfg.Timezone = "Mars/Olympus_Mons" }, true},
		{"taipei timezone", func(cfg *Config) { cfg.Timezone = "Asia/Taipei" }, false},
		{"chance above one", func(cfg *Config) { cfg.AutoResponseChance = 1.5 }, true},
		{"unknown database type", func(cfg *Config) { cfg.DatabaseType = "mysql" }, true},
		{"unknown store backend", func(cfg *Config) { cfg.Store.Backend = "s3" }, true},
		{"database store", func(cfg *Config) { cfg.Store.Backend = storeBackendDatabase }, false},
		{
			"redis store without address", func(cfg *Config) {
				cfg.Store.Backend = storeBackendRedis
				cfg.Store.RedisAddr = ""
			}, true,
		},
		{"redis store", func(cfg *Config) { cfg.Store.Backend = storeBackendRedis }, false},
		{"webhook without public key", func(cfg *Config) { cfg.Discord.WebhookServer.Enabled = true }, true},
		{"no ai memory", func(cfg *Config) { cfg.AI.MemoryTurns = 0 }, true},
		{"short api session", func(cfg *Config) { cfg.API.SessionMaxAge = time.Minute }, true},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				t.Parallel()
				cfg := validTestConfig()
				tc.mutate(cfg)
				err := structValidator.Struct(cfg)
				if tc.wantErr {
					assert.Error(t, err)
					return
				}
				assert.NoError(t, err)
			},
		)
	}
}

func TestConfig_Location(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.Timezone = "Asia/Taipei"
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.Location()).Zone()
	assert.Equal(t, 8*60*60, offset)

	cfg.Timezone = "nowhere"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestFillConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{DatabaseType: dbTypeSQLite}
	fillConfigDefaults(cfg)
	require.NotNil(t, cfg.Store)
	require.NotNil(t, cfg.Guild)
	require.NotNil(t, cfg.AI)
	require.NotNil(t, cfg.API)
	require.NotNil(t, cfg.Discord)
	assert.NotNil(t, cfg.LogLevel)
	assert.NotNil(t, cfg.Discord.WebhookServer.LogLevel)
	assert.Equal(t, DefaultStoreBackend, cfg.Store.Backend)
}
