// Package navigator runs the bounded tool-calling loop that carries out
// one natural-language browser instruction.
//
// Invariants:
//   - Every action outcome, success or failure, becomes a textual
//     observation; no error escapes the dispatcher.
//   - The done signal wins over sibling actions in the same batch.
//   - Turns never exceed the configured budget, and no model call is made
//     past it.
//   - The conversation is private to one Execute call; only the Result
//     reaches the caller.
//
// Usage:
//
//	nav, _ := navigator.New(provider, navigator.Config{Model: "claude-sonnet-4"}, logger)
//	result, _ := nav.Execute(ctx, session, "log in and open the dashboard", nil)
//	_ = result
package navigator
