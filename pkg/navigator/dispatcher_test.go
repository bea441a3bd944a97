package navigator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/webpilot/internal/observability"
	"github.com/harun/webpilot/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession records every call and returns scripted results.
type fakeSession struct {
	snapshotTree string
	snapshotErr  error
	actionErr    error

	calls []string
}

func (f *fakeSession) Snapshot(ctx context.Context, interactive bool) (string, error) {
	f.calls = append(f.calls, fmt.Sprintf("snapshot(interactive=%t)", interactive))
	if f.snapshotErr != nil {
		return "", f.snapshotErr
	}
	return f.snapshotTree, nil
}

func (f *fakeSession) Click(ctx context.Context, target string) error {
	f.calls = append(f.calls, fmt.Sprintf("click(%s)", target))
	return f.actionErr
}

func (f *fakeSession) Fill(ctx context.Context, target, value string) error {
	f.calls = append(f.calls, fmt.Sprintf("fill(%s,%s)", target, value))
	return f.actionErr
}

func (f *fakeSession) TypeText(ctx context.Context, target, text string) error {
	f.calls = append(f.calls, fmt.Sprintf("type(%s,%s)", target, text))
	return f.actionErr
}

func (f *fakeSession) Press(ctx context.Context, key string) error {
	f.calls = append(f.calls, fmt.Sprintf("press(%s)", key))
	return f.actionErr
}

func (f *fakeSession) ScrollBy(ctx context.Context, dx, dy int) error {
	f.calls = append(f.calls, fmt.Sprintf("scroll(%d,%d)", dx, dy))
	return f.actionErr
}

func (f *fakeSession) WaitDuration(ctx context.Context, ms int) error {
	f.calls = append(f.calls, fmt.Sprintf("waitDuration(%d)", ms))
	return f.actionErr
}

func (f *fakeSession) WaitForSelector(ctx context.Context, selector string) error {
	f.calls = append(f.calls, fmt.Sprintf("waitForSelector(%s)", selector))
	return f.actionErr
}

func TestDispatchSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the tree verbatim", func(t *testing.T) {
		session := &fakeSession{snapshotTree: "URL: https://example.com\n\n@1 <button> \"OK\""}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{ID: "c1", Name: "snapshot"})
		assert.Equal(t, session.snapshotTree, obs.Text)
		assert.Equal(t, "c1", obs.CorrelationID)
		assert.Equal(t, []string{"snapshot(interactive=true)"}, session.calls)
	})

	t.Run("should include page content when fullPage is set", func(t *testing.T) {
		session := &fakeSession{snapshotTree: "tree"}
		d := NewDispatcher(session)

		d.Dispatch(ctx, ActionRequest{Name: "snapshot", Args: map[string]interface{}{"fullPage": true}})
		assert.Equal(t, []string{"snapshot(interactive=false)"}, session.calls)
	})

	t.Run("should be idempotent on an unchanged page", func(t *testing.T) {
		session := &fakeSession{snapshotTree: "@1 <a> \"Home\"\n@2 <button> \"Go\""}
		d := NewDispatcher(session)

		first := d.Dispatch(ctx, ActionRequest{Name: "snapshot"})
		second := d.Dispatch(ctx, ActionRequest{Name: "snapshot"})
		assert.Equal(t, first.Text, second.Text)
	})

	t.Run("should normalize snapshot failure", func(t *testing.T) {
		session := &fakeSession{snapshotErr: fmt.Errorf("page crashed")}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "snapshot"})
		assert.Equal(t, "Error: page crashed", obs.Text)
	})
}

func TestDispatchInteractions(t *testing.T) {
	ctx := context.Background()

	t.Run("click", func(t *testing.T) {
		session := &fakeSession{}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "click", Args: map[string]interface{}{"target": "@3"}})
		assert.Equal(t, "Clicked @3", obs.Text)
		assert.Equal(t, []string{"click(@3)"}, session.calls)
	})

	t.Run("fill", func(t *testing.T) {
		session := &fakeSession{}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "fill", Args: map[string]interface{}{"target": "@2", "value": "hello"}})
		assert.Equal(t, `Filled @2 with "hello"`, obs.Text)
		assert.Equal(t, []string{"fill(@2,hello)"}, session.calls)
	})

	t.Run("type", func(t *testing.T) {
		session := &fakeSession{}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "type", Args: map[string]interface{}{"target": "#q", "text": "golang"}})
		assert.Equal(t, `Typed "golang" into #q`, obs.Text)
		assert.Equal(t, []string{"type(#q,golang)"}, session.calls)
	})

	t.Run("press", func(t *testing.T) {
		session := &fakeSession{}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "press", Args: map[string]interface{}{"key": "Enter"}})
		assert.Equal(t, "Pressed Enter", obs.Text)
		assert.Equal(t, []string{"press(Enter)"}, session.calls)
	})

	t.Run("failed action never raises", func(t *testing.T) {
		session := &fakeSession{actionErr: fmt.Errorf("Unknown or stale reference @9, take a new snapshot")}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "fill", Args: map[string]interface{}{"target": "@9", "value": "x"}})
		assert.Equal(t, "Error: Unknown or stale reference @9, take a new snapshot", obs.Text)
	})
}

func TestDispatchScroll(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		args     map[string]interface{}
		expected string
		text     string
	}{
		{
			name:     "down default amount",
			args:     map[string]interface{}{"direction": "down"},
			expected: "scroll(0,500)",
			text:     "Scrolled down by 500",
		},
		{
			name:     "up custom amount",
			args:     map[string]interface{}{"direction": "up", "amount": float64(200)},
			expected: "scroll(0,-200)",
			text:     "Scrolled up by 200",
		},
		{
			name:     "left",
			args:     map[string]interface{}{"direction": "left"},
			expected: "scroll(-500,0)",
			text:     "Scrolled left by 500",
		},
		{
			name:     "right",
			args:     map[string]interface{}{"direction": "right", "amount": float64(50)},
			expected: "scroll(50,0)",
			text:     "Scrolled right by 50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{}
			d := NewDispatcher(session)

			obs := d.Dispatch(ctx, ActionRequest{Name: "scroll", Args: tt.args})
			assert.Equal(t, tt.text, obs.Text)
			assert.Equal(t, []string{tt.expected}, session.calls)
		})
	}
}

func TestDispatchWait(t *testing.T) {
	ctx := context.Background()

	t.Run("fixed duration", func(t *testing.T) {
		session := &fakeSession{}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "wait", Args: map[string]interface{}{"ms": float64(250)}})
		assert.Equal(t, "Waited 250ms", obs.Text)
		assert.Equal(t, []string{"waitDuration(250)"}, session.calls)
	})

	t.Run("selector", func(t *testing.T) {
		session := &fakeSession{}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "wait", Args: map[string]interface{}{"selector": ".loaded"}})
		assert.Equal(t, "Element .loaded appeared", obs.Text)
		assert.Equal(t, []string{"waitForSelector(.loaded)"}, session.calls)
	})

	t.Run("no condition is a no-op", func(t *testing.T) {
		session := &fakeSession{}
		d := NewDispatcher(session)

		obs := d.Dispatch(ctx, ActionRequest{Name: "wait"})
		assert.Equal(t, "no wait condition specified", obs.Text)
		assert.Empty(t, session.calls)
	})
}

func TestDispatchUnknownTool(t *testing.T) {
	session := &fakeSession{}
	d := NewDispatcher(session)

	obs := d.Dispatch(context.Background(), ActionRequest{Name: "teleport"})
	assert.Equal(t, "Unknown tool: teleport", obs.Text)
	assert.Empty(t, session.calls)
}

func TestDispatchInvalidArguments(t *testing.T) {
	session := &fakeSession{}
	d := NewDispatcher(session)

	t.Run("missing required argument", func(t *testing.T) {
		obs := d.Dispatch(context.Background(), ActionRequest{Name: "click"})
		assert.Contains(t, obs.Text, "Error: invalid arguments for click")
		assert.Empty(t, session.calls)
	})

	t.Run("wrong argument type", func(t *testing.T) {
		obs := d.Dispatch(context.Background(), ActionRequest{
			Name: "scroll",
			Args: map[string]interface{}{"direction": "sideways"},
		})
		assert.Contains(t, obs.Text, "Error: invalid arguments for scroll")
		assert.Empty(t, session.calls)
	})
}

func TestCatalog(t *testing.T) {
	tools := Catalog()
	assert.Len(t, tools, len(Actions))

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
		assert.NotNil(t, tool.InputSchema)
	}
	assert.Equal(t, []string{"snapshot", "click", "fill", "type", "press", "scroll", "wait", "done"}, names)
}

func TestScrollDelta(t *testing.T) {
	tests := []struct {
		direction string
		amount    int
		dx, dy    int
	}{
		{"up", 100, 0, -100},
		{"down", 100, 0, 100},
		{"left", 100, -100, 0},
		{"right", 100, 100, 0},
		{"diagonal", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.direction, func(t *testing.T) {
			dx, dy := scrollDelta(tt.direction, tt.amount)
			assert.Equal(t, tt.dx, dx)
			assert.Equal(t, tt.dy, dy)
		})
	}
}

func TestDispatchAuditTrail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, observability.InitAuditLogger(path))

	ctx := tracing.WithRunID(context.Background(), "run-audit-1")

	d := NewDispatcher(&fakeSession{})
	d.Dispatch(ctx, ActionRequest{Name: "click", Args: map[string]interface{}{"target": "@1"}})

	failing := NewDispatcher(&fakeSession{actionErr: fmt.Errorf("element not found")})
	failing.Dispatch(ctx, ActionRequest{Name: "click", Args: map[string]interface{}{"target": "@9"}})

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"dispatch:click"`)
	assert.Contains(t, lines[0], `"run-audit-1"`)
	assert.Contains(t, lines[0], `"success"`)
	assert.Contains(t, lines[1], `"failure"`)
}
