package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/webpilot/pkg/navigator"
)

func TestRunTracker(t *testing.T) {
	t.Run("start and finish", func(t *testing.T) {
		tracker := newRunTracker()
		tracker.Start("run-1", "sess-1", "open the docs")

		status, exists := tracker.Get("run-1")
		require.True(t, exists)
		assert.Equal(t, RunStateRunning, status.State)
		assert.Equal(t, "open the docs", status.Instruction)
		assert.False(t, status.StartedAt.IsZero())
		assert.True(t, status.FinishedAt.IsZero())

		tracker.Finish("run-1", navigator.Result{Success: true, Summary: "Done", Turns: 4})

		status, exists = tracker.Get("run-1")
		require.True(t, exists)
		assert.Equal(t, RunStateSucceeded, status.State)
		assert.Equal(t, "Done", status.Summary)
		assert.Equal(t, 4, status.Turns)
		assert.False(t, status.FinishedAt.IsZero())
	})

	t.Run("failed result", func(t *testing.T) {
		tracker := newRunTracker()
		tracker.Start("run-1", "sess-1", "go")
		tracker.Finish("run-1", navigator.Result{Success: false, Summary: "Timed out after 1000ms"})

		status, _ := tracker.Get("run-1")
		assert.Equal(t, RunStateFailed, status.State)
	})

	t.Run("finish on unknown run is a no-op", func(t *testing.T) {
		tracker := newRunTracker()
		tracker.Finish("nope", navigator.Result{})

		_, exists := tracker.Get("nope")
		assert.False(t, exists)
	})

	t.Run("active count", func(t *testing.T) {
		tracker := newRunTracker()
		tracker.Start("run-1", "sess-1", "go")
		tracker.Start("run-2", "sess-2", "go")
		assert.Equal(t, 2, tracker.ActiveCount())

		tracker.Finish("run-1", navigator.Result{Success: true})
		assert.Equal(t, 1, tracker.ActiveCount())
	})

	t.Run("finished runs expire", func(t *testing.T) {
		tracker := newRunTracker()
		tracker.retainFor = time.Millisecond

		tracker.Start("run-old", "sess-1", "go")
		tracker.Finish("run-old", navigator.Result{Success: true})
		time.Sleep(5 * time.Millisecond)

		// Pruning happens when the next run starts.
		tracker.Start("run-new", "sess-1", "go")

		_, exists := tracker.Get("run-old")
		assert.False(t, exists)
		_, exists = tracker.Get("run-new")
		assert.True(t, exists)
	})

	t.Run("running runs never expire", func(t *testing.T) {
		tracker := newRunTracker()
		tracker.retainFor = time.Millisecond

		tracker.Start("run-live", "sess-1", "go")
		time.Sleep(5 * time.Millisecond)
		tracker.Start("run-new", "sess-1", "go")

		_, exists := tracker.Get("run-live")
		assert.True(t, exists)
	})
}
