package gateway

import (
	"sync"
	"time"

	"github.com/harun/webpilot/pkg/navigator"
)

// RunState is the lifecycle state of one instruction run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// RunStatus is the externally visible record of a run, served by
// instruction.status while the run is live and for a grace period
// after it finishes.
type RunStatus struct {
	RunID       string    `json:"runId"`
	SessionID   string    `json:"sessionId"`
	Instruction string    `json:"instruction"`
	State       RunState  `json:"state"`
	Summary     string    `json:"summary,omitempty"`
	Turns       int       `json:"turns,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
}

// runTracker keeps in-memory state for live and recently finished
// runs. Finished entries expire after retainFor; durable records live
// in the history store.
type runTracker struct {
	mu        sync.RWMutex
	runs      map[string]*RunStatus
	retainFor time.Duration
}

func newRunTracker() *runTracker {
	return &runTracker{
		runs:      make(map[string]*RunStatus),
		retainFor: 10 * time.Minute,
	}
}

// Start registers a new running instruction.
func (t *runTracker) Start(runID, sessionID, instruction string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runs[runID] = &RunStatus{
		RunID:       runID,
		SessionID:   sessionID,
		Instruction: instruction,
		State:       RunStateRunning,
		StartedAt:   time.Now(),
	}
	t.pruneLocked(time.Now())
}

// Finish records the terminal result of a run.
func (t *runTracker) Finish(runID string, result navigator.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, exists := t.runs[runID]
	if !exists {
		return
	}

	status.State = RunStateFailed
	if result.Success {
		status.State = RunStateSucceeded
	}
	status.Summary = result.Summary
	status.Turns = result.Turns
	status.FinishedAt = time.Now()
}

// Get returns a copy of the status for a run.
func (t *runTracker) Get(runID string) (RunStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status, exists := t.runs[runID]
	if !exists {
		return RunStatus{}, false
	}
	return *status, true
}

// ActiveCount returns the number of runs still in flight.
func (t *runTracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, status := range t.runs {
		if status.State == RunStateRunning {
			count++
		}
	}
	return count
}

// pruneLocked drops finished runs past their retention window. Caller
// holds the mutex.
func (t *runTracker) pruneLocked(now time.Time) {
	for id, status := range t.runs {
		if status.State == RunStateRunning {
			continue
		}
		if !status.FinishedAt.IsZero() && now.Sub(status.FinishedAt) > t.retainFor {
			delete(t.runs, id)
		}
	}
}
