package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	// Check if it's a known model
	knownModels := []string{
		"claude-opus-4",
		"claude-sonnet-4",
		"claude-haiku-4",
		"gpt-4-turbo",
		"gpt-4",
		"gpt-3.5-turbo",
	}

	for _, known := range knownModels {
		if model == known {
			return nil
		}
	}

	// Allow custom models (just warn)
	return nil
}

// ValidateMaxTurns validates the turn budget
func (v *Validator) ValidateMaxTurns(turns int) error {
	if turns <= 0 {
		return fmt.Errorf("max turns must be positive, got %d", turns)
	}
	if turns > 100 {
		return fmt.Errorf("max turns too large (max 100), got %d", turns)
	}
	return nil
}

// ValidateTimeoutMs validates the end-to-end instruction timeout
func (v *Validator) ValidateTimeoutMs(ms int) error {
	if ms <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", ms)
	}
	return nil
}

// ValidateCronSpec validates a schedule's cron expression
func (v *Validator) ValidateCronSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate provider profiles (canonical source)
	for i, profile := range cfg.Providers {
		if profile.Provider != "" {
			if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("provider profile %d (%s): %w", i, profile.ID, err))
			}
		}
	}

	// Validate instruction defaults
	if err := v.ValidateModel(cfg.Defaults.Model); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMaxTurns(cfg.Defaults.MaxTurns); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTimeoutMs(cfg.Defaults.TimeoutMs); err != nil {
		errors = append(errors, err)
	}

	// Validate schedules
	for i, sched := range cfg.Schedules {
		if err := v.ValidateCronSpec(sched.Cron); err != nil {
			errors = append(errors, fmt.Errorf("schedule %d (%s): %w", i, sched.Name, err))
		}
		if strings.TrimSpace(sched.Instruction) == "" {
			errors = append(errors, fmt.Errorf("schedule %d (%s): instruction is required", i, sched.Name))
		}
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
