package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "claude-sonnet-4", cfg.Defaults.Model)
	assert.Equal(t, 15, cfg.Defaults.MaxTurns)
	assert.Equal(t, 120000, cfg.Defaults.TimeoutMs)
	assert.True(t, cfg.Browser.Headless)
	assert.False(t, cfg.Browser.NoSandbox)
	assert.False(t, cfg.Browser.Security.AllowFileUrls)
	assert.False(t, cfg.Browser.Security.AllowLocalhostUrls)
	assert.False(t, cfg.Gateway.Enabled)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.True(t, cfg.History.Enabled)
}

func validTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Providers = []ProviderProfile{
		{
			ID:       "test-profile",
			Provider: "anthropic",
			APIKey:   "sk-ant-test123",
			Priority: 1,
		},
	}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := validTestConfig()

		err := cfg.Validate()
		assert.NoError(t, err)
	})

	t.Run("missing API keys", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = []ProviderProfile{}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no AI credentials")
	})

	t.Run("profile missing ID", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Providers[0].ID = ""

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ID is required")
	})

	t.Run("invalid provider name", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Providers[0].Provider = "gemini"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("missing default model", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Defaults.Model = ""

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "defaults.model")
	})

	t.Run("non-positive max turns", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Defaults.MaxTurns = 0

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_turns")
	})

	t.Run("non-positive timeout", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Defaults.TimeoutMs = -1

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "timeout_ms")
	})

	t.Run("gateway enabled without secret", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Gateway.Enabled = true
		cfg.Gateway.SharedSecret = ""

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "shared_secret")
	})

	t.Run("gateway invalid port", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Gateway.Enabled = true
		cfg.Gateway.SharedSecret = "secret"
		cfg.Gateway.Port = 70000

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "port")
	})

	t.Run("schedule missing instruction", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Schedules = []ScheduleConfig{
			{Name: "nightly", Cron: "0 3 * * *", Instruction: ""},
		}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instruction is required")
	})

	t.Run("schedule missing cron", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Schedules = []ScheduleConfig{
			{Name: "nightly", Cron: "", Instruction: "check the dashboard"},
		}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cron expression")
	})
}

func TestConfigString(t *testing.T) {
	cfg := validTestConfig()

	str := cfg.String()
	assert.NotEmpty(t, str)
	assert.Contains(t, str, "providers")
}
