package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestWithTraceID(t *testing.T) {
	ctx := context.Background()
	traceID := "test-trace-id"

	ctx = WithTraceID(ctx, traceID)

	retrieved := GetTraceID(ctx)
	if retrieved != traceID {
		t.Errorf("Expected trace ID %s, got %s", traceID, retrieved)
	}
}

func TestWithSessionID(t *testing.T) {
	ctx := context.Background()
	sessionID := "sess-1"

	ctx = WithSessionID(ctx, sessionID)

	retrieved := GetSessionID(ctx)
	if retrieved != sessionID {
		t.Errorf("Expected session ID %s, got %s", sessionID, retrieved)
	}
}

func TestNewInstructionContext(t *testing.T) {
	ctx := NewInstructionContext(context.Background(), "sess-9")

	if GetRunID(ctx) == "" {
		t.Error("Run ID not assigned")
	}
	if GetSessionID(ctx) != "sess-9" {
		t.Error("Session ID not propagated")
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithSessionID(ctx, "sess-1")

	tc := FromContext(ctx)

	if tc.TraceID != "trace-1" || tc.RunID != "run-1" || tc.SessionID != "sess-1" {
		t.Errorf("FromContext mismatch: %+v", tc)
	}
}

func TestLoggerFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-xyz")

	var buf bytes.Buffer
	baseLogger := zerolog.New(&buf)

	logger := LoggerFromContext(ctx, baseLogger)
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), "trace-xyz") {
		t.Error("Trace ID not in log output")
	}
}

func TestMergeContext(t *testing.T) {
	sourceCtx := context.Background()
	sourceCtx = WithTraceID(sourceCtx, "trace-source")
	sourceCtx = WithRunID(sourceCtx, "run-source")

	targetCtx := WithRunID(context.Background(), "run-target")

	mergedCtx := MergeContext(targetCtx, sourceCtx)

	if GetTraceID(mergedCtx) != "trace-source" {
		t.Error("Trace ID not merged")
	}
	if GetRunID(mergedCtx) != "run-target" {
		t.Error("Existing run ID should not be overwritten")
	}
}
