package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Webpilot Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// API Keys
	fmt.Println("Model provider API keys (at least one is required):")
	fmt.Println()

	// Anthropic API Key
	for {
		fmt.Print("Anthropic API Key (press Enter to skip): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		if err := validator.ValidateAPIKey(key, "anthropic"); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Providers = append(cfg.Providers, ProviderProfile{
			ID:       "anthropic-default",
			Provider: "anthropic",
			APIKey:   key,
			Priority: 1,
		})
		break
	}

	// OpenAI API Key
	for {
		fmt.Print("OpenAI API Key (press Enter to skip): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		if err := validator.ValidateAPIKey(key, "openai"); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Providers = append(cfg.Providers, ProviderProfile{
			ID:       "openai-default",
			Provider: "openai",
			APIKey:   key,
			Priority: 2,
		})
		break
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}

	fmt.Println()

	// Default Model
	fmt.Println("Instruction defaults:")
	fmt.Printf("Model name [%s]: ", cfg.Defaults.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if model != "" {
		cfg.Defaults.Model = model
	}

	fmt.Println()

	// Browser
	fmt.Println("Browser:")
	fmt.Print("Run Chrome headless? (y/n) [y]: ")
	headless, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Browser.Headless = headless == "" || strings.ToLower(headless) == "y"

	fmt.Println()

	// Gateway
	fmt.Println("Gateway (WebSocket control API):")
	fmt.Print("Enable gateway? (y/n) [n]: ")
	enable, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if strings.ToLower(enable) == "y" {
		cfg.Gateway.Enabled = true

		secret, err := gonanoid.New(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate shared secret: %w", err)
		}
		cfg.Gateway.SharedSecret = secret
		fmt.Printf("Generated shared secret: %s\n", secret)
	}

	fmt.Println()

	// Log Level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
