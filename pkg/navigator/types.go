package navigator

// Config bounds one instruction run. Values are fixed for the lifetime
// of a single Execute call; zero fields fall back to the process-wide
// defaults the navigator was constructed with.
type Config struct {
	Model     string `json:"model"`
	MaxTurns  int    `json:"max_turns"`
	TimeoutMs int    `json:"timeout_ms"`
}

const (
	// DefaultMaxTurns caps model round-trips per instruction
	DefaultMaxTurns = 15

	// DefaultTimeoutMs bounds total wall-clock time per instruction
	DefaultTimeoutMs = 120000
)

// Result is the only value exposed to the caller. The conversation and
// every intermediate observation stay inside the loop.
type Result struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Turns   int    `json:"turns"`
}

// ActionRequest is one model-requested action. Name is kept as the raw
// string so requests outside the vocabulary can still be answered with
// an observation instead of an error.
type ActionRequest struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Observation is the normalized textual outcome of one ActionRequest.
// It is always present; failures are folded into Text.
type Observation struct {
	CorrelationID string
	Text          string
}

// merged overlays non-zero override fields onto the base config.
func (c Config) merged(overrides *Config) Config {
	out := c
	if overrides != nil {
		if overrides.Model != "" {
			out.Model = overrides.Model
		}
		if overrides.MaxTurns > 0 {
			out.MaxTurns = overrides.MaxTurns
		}
		if overrides.TimeoutMs > 0 {
			out.TimeoutMs = overrides.TimeoutMs
		}
	}
	if out.MaxTurns <= 0 {
		out.MaxTurns = DefaultMaxTurns
	}
	if out.TimeoutMs <= 0 {
		out.TimeoutMs = DefaultTimeoutMs
	}
	return out
}
