package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/harun/webpilot/internal/config"
)

// Provider is an interface for model API providers
type Provider interface {
	// Invoke makes one model API call
	Invoke(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name
	Name() string
}

// NewProvider creates a provider from a credential profile
func NewProvider(profile config.ProviderProfile) (Provider, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}

// SelectProvider picks the highest-priority profile and builds its provider.
// Lower priority values win.
func SelectProvider(profiles []config.ProviderProfile) (Provider, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no provider profiles configured")
	}

	sorted := make([]config.ProviderProfile, len(profiles))
	copy(sorted, profiles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return NewProvider(sorted[0])
}
