package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main webpilot configuration
type Config struct {
	// Instruction defaults applied when a call does not override them
	Defaults DefaultsConfig `json:"defaults" mapstructure:"defaults"`

	// AI provider credentials
	Providers []ProviderProfile `json:"providers" mapstructure:"providers"`

	// Browser process and security settings
	Browser BrowserConfig `json:"browser" mapstructure:"browser"`

	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Scheduled instructions
	Schedules []ScheduleConfig `json:"schedules" mapstructure:"schedules"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Run history store
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Path the config was loaded from; set by the loader, never
	// serialized.
	ConfigPath string `json:"-" mapstructure:"-"`
}

// DefaultsConfig holds process-wide instruction defaults. Each Execute
// call may override any of these per instruction.
type DefaultsConfig struct {
	Model     string `json:"model" mapstructure:"model"`
	MaxTurns  int    `json:"max_turns" mapstructure:"max_turns"`
	TimeoutMs int    `json:"timeout_ms" mapstructure:"timeout_ms"`
}

// ProviderProfile represents credentials for one model service
type ProviderProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// BrowserConfig holds browser process configuration
type BrowserConfig struct {
	Headless    bool           `json:"headless" mapstructure:"headless"`
	NoSandbox   bool           `json:"no_sandbox" mapstructure:"no_sandbox"`
	ChromePath  string         `json:"chrome_path" mapstructure:"chrome_path"`
	UserDataDir string         `json:"user_data_dir" mapstructure:"user_data_dir"`
	CDPPort     int            `json:"cdp_port" mapstructure:"cdp_port"`
	Security    SecurityConfig `json:"security" mapstructure:"security"`
}

// SecurityConfig restricts which URLs a session may navigate to
type SecurityConfig struct {
	AllowFileUrls      bool     `json:"allow_file_urls" mapstructure:"allow_file_urls"`
	AllowLocalhostUrls bool     `json:"allow_localhost_urls" mapstructure:"allow_localhost_urls"`
	AllowedDomains     []string `json:"allowed_domains" mapstructure:"allowed_domains"`
	BlockedDomains     []string `json:"blocked_domains" mapstructure:"blocked_domains"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// ScheduleConfig represents one recurring instruction
type ScheduleConfig struct {
	Name        string `json:"name" mapstructure:"name"`
	Cron        string `json:"cron" mapstructure:"cron"`
	Instruction string `json:"instruction" mapstructure:"instruction"`
	StartURL    string `json:"start_url" mapstructure:"start_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// HistoryConfig holds run history store configuration
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Model:     "claude-sonnet-4",
			MaxTurns:  15,
			TimeoutMs: 120000,
		},
		Providers: []ProviderProfile{},
		Browser: BrowserConfig{
			Headless:  true,
			NoSandbox: false,
			CDPPort:   0,
			Security: SecurityConfig{
				AllowFileUrls:      false,
				AllowLocalhostUrls: false,
			},
		},
		Gateway: GatewayConfig{
			Enabled:      false,
			Port:         8080,
			Host:         "0.0.0.0",
			SharedSecret: "",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Require at least one provider profile
	if len(c.Providers) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one provider profile is required")
	}

	for i, profile := range c.Providers {
		if profile.ID == "" {
			return fmt.Errorf("provider profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("provider profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("provider profile %s: api_key is required", profile.ID)
		}
		validProviders := []string{"anthropic", "openai"}
		valid := false
		for _, vp := range validProviders {
			if profile.Provider == vp {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("provider profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
	}

	if c.Defaults.Model == "" {
		return fmt.Errorf("defaults.model is required")
	}
	if c.Defaults.MaxTurns <= 0 {
		return fmt.Errorf("defaults.max_turns must be positive, got %d", c.Defaults.MaxTurns)
	}
	if c.Defaults.TimeoutMs <= 0 {
		return fmt.Errorf("defaults.timeout_ms must be positive, got %d", c.Defaults.TimeoutMs)
	}

	if c.Gateway.Enabled {
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
		}
		if c.Gateway.SharedSecret == "" {
			return fmt.Errorf("gateway shared_secret is required when the gateway is enabled")
		}
	}

	for i, sched := range c.Schedules {
		if sched.Cron == "" {
			return fmt.Errorf("schedule %d: cron expression is required", i)
		}
		if sched.Instruction == "" {
			return fmt.Errorf("schedule %d: instruction is required", i)
		}
	}

	return nil
}
