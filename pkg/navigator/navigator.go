package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/webpilot/internal/observability"
	"github.com/harun/webpilot/internal/tracing"
	"github.com/harun/webpilot/pkg/llm"
)

const systemPrompt = `You drive a web browser to carry out the user's instruction.

Work step by step:
1. Take a snapshot to see the current page. Interactive elements are listed with reference tokens like @3.
2. Use click, fill, type, press and scroll with those reference tokens (or CSS selectors) to act on the page.
3. Take a new snapshot after the page changes; old reference tokens become stale.
4. When the instruction is complete, call done with success=true and a short summary. If it cannot be completed, call done with success=false and say why.

If an action fails you will see an error message. Do not give up on the first failure; take a snapshot and try another approach.`

// Navigator runs the bounded tool-calling loop that turns one
// natural-language instruction into a sequence of browser actions.
// The conversation built during a run is private to that run; only
// the Result crosses back to the caller.
type Navigator struct {
	provider llm.Provider
	logger   zerolog.Logger
	onTurn   TurnHook

	mu       sync.RWMutex
	defaults Config
}

// TurnHook observes each turn in which actions were dispatched. Run
// identity travels in the context, so one hook serves concurrent runs.
type TurnHook func(ctx context.Context, turn int, actions []string)

// New creates a navigator bound to one model provider.
func New(provider llm.Provider, defaults Config, logger zerolog.Logger) (*Navigator, error) {
	observability.EnsureRegistered()

	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}

	return &Navigator{
		provider: provider,
		defaults: defaults,
		logger:   logger,
	}, nil
}

// OnTurn installs a hook invoked after each batch of dispatched actions.
func (n *Navigator) OnTurn(hook TurnHook) {
	n.onTurn = hook
}

// SetDefaults replaces the baseline configuration. Runs already in
// flight keep the config they started with; subsequent Execute calls
// merge their overrides against the new defaults.
func (n *Navigator) SetDefaults(defaults Config) {
	n.mu.Lock()
	n.defaults = defaults
	n.mu.Unlock()
}

// Defaults returns the current baseline configuration.
func (n *Navigator) Defaults() Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.defaults
}

// Execute runs one instruction against a session. All runtime failure
// modes resolve into a Result with Success=false; the returned error is
// non-nil only for caller mistakes caught before any model invocation,
// such as an empty instruction or a missing model identifier.
func (n *Navigator) Execute(ctx context.Context, session Session, instruction string, overrides *Config) (Result, error) {
	if strings.TrimSpace(instruction) == "" {
		return Result{}, fmt.Errorf("instruction is required")
	}

	n.mu.RLock()
	defaults := n.defaults
	n.mu.RUnlock()

	cfg := defaults.merged(overrides)
	if cfg.Model == "" {
		return Result{}, fmt.Errorf("model is required")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	ctx, span := tracing.StartSpan(
		ctx,
		"webpilot.navigator",
		"navigator.execute",
		attribute.String("model", cfg.Model),
		attribute.Int("max_turns", cfg.MaxTurns),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, n.logger)
	logger.Info().
		Str("model", cfg.Model).
		Int("max_turns", cfg.MaxTurns).
		Msg("Executing instruction")

	start := time.Now()
	result := n.runLoop(ctx, logger, session, instruction, cfg)
	observability.RecordInstruction(n.provider.Name(), time.Since(start), result.Turns, result.Success)

	if !result.Success {
		span.SetStatus(codes.Error, result.Summary)
	}
	span.SetAttributes(attribute.Int("turns", result.Turns), attribute.Bool("success", result.Success))

	logger.Info().
		Bool("success", result.Success).
		Int("turns", result.Turns).
		Dur("duration", time.Since(start)).
		Msg("Instruction finished")

	return result, nil
}

// runLoop is the state machine: invoke model, intercept done, dispatch
// actions in order, append observations, repeat until a terminal
// condition or the turn budget runs out.
func (n *Navigator) runLoop(ctx context.Context, logger zerolog.Logger, session Session, instruction string, cfg Config) Result {
	dispatcher := NewDispatcher(session)
	tools := Catalog()

	messages := []llm.Message{
		{Role: "user", Content: instruction},
	}

	for turn := 1; turn <= cfg.MaxTurns; turn++ {
		if ctx.Err() != nil {
			return timedOut(cfg, turn-1)
		}

		response, err := n.provider.Invoke(ctx, llm.Request{
			Model:    cfg.Model,
			System:   systemPrompt,
			Messages: messages,
			Tools:    tools,
		})
		observability.RecordModelCall(n.provider.Name(), err == nil)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return timedOut(cfg, turn)
			}
			logger.Error().
				Err(err).
				Int("turn", turn).
				Bool("retryable", llm.IsRetryableError(err)).
				Msg("Model invocation failed")
			return Result{
				Success: false,
				Summary: fmt.Sprintf("Model invocation failed: %v", err),
				Turns:   turn,
			}
		}

		// Free text with no requested actions completes the run.
		if len(response.Calls) == 0 {
			summary := strings.TrimSpace(response.Text)
			if summary == "" {
				summary = "Completed"
			}
			return Result{Success: true, Summary: summary, Turns: turn}
		}

		// The done signal wins over sibling actions in the same batch;
		// none of them are dispatched.
		for _, call := range response.Calls {
			if call.Name == string(ActionDone) {
				return Result{
					Success: boolArg(call.Parameters, "success"),
					Summary: stringArg(call.Parameters, "summary"),
					Turns:   turn,
				}
			}
		}

		// Actions run strictly in order, one at a time. The session is
		// a single mutable resource; later targets depend on earlier
		// snapshots.
		observations := make([]Observation, 0, len(response.Calls))
		for _, call := range response.Calls {
			obs := dispatcher.Dispatch(ctx, ActionRequest{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Parameters,
			})
			logger.Debug().
				Int("turn", turn).
				Str("action", call.Name).
				Msg("Dispatched action")
			observations = append(observations, obs)
		}

		if n.onTurn != nil {
			names := make([]string, 0, len(response.Calls))
			for _, call := range response.Calls {
				names = append(names, call.Name)
			}
			n.onTurn(ctx, turn, names)
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   response.Text,
			ToolCalls: response.Calls,
		})
		for _, obs := range observations {
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    obs.Text,
				ToolCallID: obs.CorrelationID,
			})
		}
	}

	return Result{
		Success: false,
		Summary: fmt.Sprintf("Turn budget of %d exceeded without completing the instruction", cfg.MaxTurns),
		Turns:   cfg.MaxTurns,
	}
}

func timedOut(cfg Config, turns int) Result {
	return Result{
		Success: false,
		Summary: fmt.Sprintf("Timed out after %dms", cfg.TimeoutMs),
		Turns:   turns,
	}
}
