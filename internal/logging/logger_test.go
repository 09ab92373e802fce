// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"INFO", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run("level_"+tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	orig := Logger()
	defer SetLogger(orig)
	SetLogger(zerolog.New(&buf))

	logger := WithComponent("catalog")
	logger.Info().Msg("ready")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["component"] != "catalog" {
		t.Errorf("component = %v, want catalog", entry["component"])
	}
	if entry["message"] != "ready" {
		t.Errorf("message = %v, want ready", entry["message"])
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := ContextWithNewRequestID(context.Background())
	id := RequestIDFromContext(ctx)
	if id == "" {
		t.Fatal("expected request ID in context")
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context returned request ID %q", got)
	}
}

func TestCtxAttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), zerolog.New(&buf))
	ctx = ContextWithRequestID(ctx, "req-42")

	Ctx(ctx).Info().Msg("lookup")

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("log line missing request_id: %s", buf.String())
	}
}

func TestSlogBridge(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerWith(zerolog.New(&buf))

	logger.Info("service started", slog.String("name", "recommender"), slog.Int("restarts", 2))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["name"] != "recommender" {
		t.Errorf("name = %v, want recommender", entry["name"])
	}
	if entry["restarts"] != float64(2) {
		t.Errorf("restarts = %v, want 2", entry["restarts"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
}

func TestSlogBridgeGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerWith(zerolog.New(&buf))

	logger.WithGroup("train").Info("done", slog.Int("users", 7))

	if !strings.Contains(buf.String(), `"train.users":7`) {
		t.Errorf("grouped attr missing: %s", buf.String())
	}
}
