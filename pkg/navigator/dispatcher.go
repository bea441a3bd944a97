package navigator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/webpilot/internal/observability"
	"github.com/harun/webpilot/internal/tracing"
)

// Session is the browser capability set the dispatcher executes
// against. *browser.Session satisfies it; tests substitute fakes.
type Session interface {
	Snapshot(ctx context.Context, interactive bool) (string, error)
	Click(ctx context.Context, target string) error
	Fill(ctx context.Context, target, value string) error
	TypeText(ctx context.Context, target, text string) error
	Press(ctx context.Context, key string) error
	ScrollBy(ctx context.Context, dx, dy int) error
	WaitDuration(ctx context.Context, ms int) error
	WaitForSelector(ctx context.Context, selector string) error
}

// Dispatcher executes one ActionRequest at a time against a session
// and folds every outcome, success or failure, into an Observation.
// No error ever escapes Dispatch.
type Dispatcher struct {
	session Session
}

// NewDispatcher creates a dispatcher bound to one session.
func NewDispatcher(session Session) *Dispatcher {
	return &Dispatcher{session: session}
}

// Dispatch runs a single action and returns its observation.
func (d *Dispatcher) Dispatch(ctx context.Context, req ActionRequest) Observation {
	start := time.Now()
	text := d.run(ctx, req)

	ok := !strings.HasPrefix(text, "Error:")
	observability.RecordActionDispatch(req.Name, time.Since(start), ok)

	status := "success"
	if !ok {
		status = "failure"
	}
	observability.RecordActionAudit(ctx, req.Name, tracing.GetRunID(ctx), status, map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return Observation{
		CorrelationID: req.ID,
		Text:          text,
	}
}

func (d *Dispatcher) run(ctx context.Context, req ActionRequest) string {
	if !IsKnownAction(req.Name) {
		return fmt.Sprintf("Unknown tool: %s", req.Name)
	}

	action := Action(req.Name)
	if err := validateArgs(action, req.Args); err != nil {
		return fmt.Sprintf("Error: invalid arguments for %s: %v", req.Name, err)
	}

	switch action {
	case ActionSnapshot:
		fullPage := boolArg(req.Args, "fullPage")
		tree, err := d.session.Snapshot(ctx, !fullPage)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		observability.RecordSnapshotSize(len(tree))
		return tree

	case ActionClick:
		target := stringArg(req.Args, "target")
		if err := d.session.Click(ctx, target); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Clicked %s", target)

	case ActionFill:
		target := stringArg(req.Args, "target")
		value := stringArg(req.Args, "value")
		if err := d.session.Fill(ctx, target, value); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Filled %s with %q", target, value)

	case ActionType:
		target := stringArg(req.Args, "target")
		text := stringArg(req.Args, "text")
		if err := d.session.TypeText(ctx, target, text); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Typed %q into %s", text, target)

	case ActionPress:
		key := stringArg(req.Args, "key")
		if err := d.session.Press(ctx, key); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Pressed %s", key)

	case ActionScroll:
		direction := stringArg(req.Args, "direction")
		amount := intArg(req.Args, "amount", 500)
		dx, dy := scrollDelta(direction, amount)
		if err := d.session.ScrollBy(ctx, dx, dy); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Scrolled %s by %d", direction, amount)

	case ActionWait:
		if ms, ok := optionalIntArg(req.Args, "ms"); ok {
			if err := d.session.WaitDuration(ctx, ms); err != nil {
				return fmt.Sprintf("Error: %v", err)
			}
			return fmt.Sprintf("Waited %dms", ms)
		}
		if selector := stringArg(req.Args, "selector"); selector != "" {
			if err := d.session.WaitForSelector(ctx, selector); err != nil {
				return fmt.Sprintf("Error: %v", err)
			}
			return fmt.Sprintf("Element %s appeared", selector)
		}
		return "no wait condition specified"

	case ActionDone:
		// Terminal signal, intercepted by the loop before dispatch.
		return "Done"
	}

	return fmt.Sprintf("Unknown tool: %s", req.Name)
}

// scrollDelta converts a direction plus magnitude into signed deltas.
func scrollDelta(direction string, amount int) (int, int) {
	switch direction {
	case "up":
		return 0, -amount
	case "down":
		return 0, amount
	case "left":
		return -amount, 0
	case "right":
		return amount, 0
	}
	return 0, 0
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]interface{}, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	if v, ok := optionalIntArg(args, key); ok {
		return v
	}
	return fallback
}

// optionalIntArg reads a numeric argument. JSON decoding yields
// float64; providers that preserve integers are accepted too.
func optionalIntArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}
