package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/webpilot/internal/tracing"
	"github.com/harun/webpilot/pkg/navigator"
)

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("instruction.run", s.handleInstructionRun)
	_ = s.RegisterMethod("instruction.status", s.handleInstructionStatus)
	_ = s.RegisterMethod("session.open", s.handleSessionOpen)
	_ = s.RegisterMethod("session.close", s.handleSessionClose)
	_ = s.RegisterMethod("session.list", s.handleSessionList)
	_ = s.RegisterMethod("history.list", s.handleHistoryList)
}

// handleInstructionRun handles the instruction.run RPC method. With
// wait=false the call returns immediately with the run ID; the result
// arrives via the instruction.finished event or instruction.status.
func (s *Server) handleInstructionRun(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	sessionID, ok := params["sessionId"].(string)
	if !ok || sessionID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "sessionId parameter is required and must be a string"}
	}

	instruction, ok := params["instruction"].(string)
	if !ok || strings.TrimSpace(instruction) == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "instruction parameter is required and must be a non-empty string"}
	}

	var overrides *navigator.Config
	if configMap, ok := params["config"].(map[string]interface{}); ok {
		overrides = &navigator.Config{}
		if model, ok := configMap["model"].(string); ok {
			overrides.Model = model
		}
		if maxTurns, ok := configMap["maxTurns"].(float64); ok {
			overrides.MaxTurns = int(maxTurns)
		}
		if timeoutMs, ok := configMap["timeoutMs"].(float64); ok {
			overrides.TimeoutMs = int(timeoutMs)
		}
	}

	wait := true
	if waitParam, ok := params["wait"].(bool); ok {
		wait = waitParam
	}

	idempotencyKey := ""
	if key, ok := params["idempotencyKey"].(string); ok {
		idempotencyKey = key
	}

	runID := tracing.NewRunID()
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx = tracing.WithRunID(ctx, runID)

	s.runs.Start(runID, sessionID, instruction)
	s.broadcaster.BroadcastTyped(EventMessage{
		Event:   "instruction.started",
		Stream:  StreamTypeLifecycle,
		Phase:   "started",
		RunID:   runID,
		Session: sessionID,
		TraceID: tracing.GetTraceID(ctx),
		Data: map[string]interface{}{
			"instruction": instruction,
		},
	})

	req := RunRequest{
		RunID:          runID,
		SessionID:      sessionID,
		Instruction:    instruction,
		Config:         overrides,
		IdempotencyKey: idempotencyKey,
	}

	if !wait {
		// Detached run: survive the RPC request but not server shutdown.
		go s.executeRun(context.WithoutCancel(ctx), req)
		return map[string]interface{}{
			"runId":  runID,
			"status": string(RunStateRunning),
		}, nil
	}

	result, err := s.executeRun(ctx, req)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"runId":   runID,
		"success": result.Success,
		"summary": result.Summary,
		"turns":   result.Turns,
	}, nil
}

// executeRun pushes the run through the daemon pipeline and settles
// the tracker and lifecycle events on completion.
func (s *Server) executeRun(ctx context.Context, req RunRequest) (navigator.Result, error) {
	result, err := s.dispatcher(ctx, req)
	if err != nil {
		result = navigator.Result{
			Success: false,
			Summary: fmt.Sprintf("Dispatch failed: %v", err),
		}
	}

	s.runs.Finish(req.RunID, result)

	phase := "failed"
	if result.Success {
		phase = "finished"
	}
	s.broadcaster.BroadcastTyped(EventMessage{
		Event:   "instruction.finished",
		Stream:  StreamTypeLifecycle,
		Phase:   phase,
		RunID:   req.RunID,
		Session: req.SessionID,
		TraceID: tracing.GetTraceID(ctx),
		Data: map[string]interface{}{
			"success": result.Success,
			"summary": result.Summary,
			"turns":   result.Turns,
		},
	})

	if err != nil {
		return navigator.Result{}, fmt.Errorf("instruction dispatch failed: %w", err)
	}
	return result, nil
}

// handleInstructionStatus handles the instruction.status RPC method
func (s *Server) handleInstructionStatus(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	runID, ok := params["runId"].(string)
	if !ok || runID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "runId parameter is required and must be a string"}
	}

	if status, exists := s.runs.Get(runID); exists {
		return status, nil
	}

	// Expired from the in-memory tracker; the history store keeps the
	// durable record.
	if s.history != nil {
		run, err := s.history.Get(ctx, runID)
		if err == nil {
			state := RunStateFailed
			if run.Success {
				state = RunStateSucceeded
			}
			return RunStatus{
				RunID:       run.ID,
				SessionID:   run.SessionID,
				Instruction: run.Instruction,
				State:       state,
				Summary:     run.Summary,
				Turns:       run.Turns,
				StartedAt:   run.StartedAt,
				FinishedAt:  run.StartedAt.Add(time.Duration(run.DurationMs) * time.Millisecond),
			}, nil
		}
	}

	return nil, fmt.Errorf("run not found: %s", runID)
}

// handleSessionOpen handles the session.open RPC method
func (s *Server) handleSessionOpen(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	startURL := ""
	if urlParam, ok := params["startUrl"].(string); ok {
		startURL = urlParam
	}

	session, err := s.sessions.Open(ctx, startURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	return map[string]interface{}{
		"sessionId": session.ID,
	}, nil
}

// handleSessionClose handles the session.close RPC method
func (s *Server) handleSessionClose(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	sessionID, ok := params["sessionId"].(string)
	if !ok || sessionID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "sessionId parameter is required and must be a string"}
	}

	if err := s.sessions.Close(sessionID); err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}

	return map[string]interface{}{
		"success": true,
	}, nil
}

// handleSessionList handles the session.list RPC method
func (s *Server) handleSessionList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"sessions": s.sessions.List(),
	}, nil
}

// handleHistoryList handles the history.list RPC method
func (s *Server) handleHistoryList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if s.history == nil {
		return nil, fmt.Errorf("history is disabled")
	}

	sessionID := ""
	if sessionParam, ok := params["sessionId"].(string); ok {
		sessionID = sessionParam
	}

	limit := 0
	if limitParam, ok := params["limit"].(float64); ok {
		limit = int(limitParam)
	}

	runs, err := s.history.List(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	return map[string]interface{}{
		"runs": runs,
	}, nil
}
