package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/schemaops/migrond/log"
)

func TestContextKeys(t *testing.T) {
	t.Parallel()

	t.Run("default keys are extracted from context", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := log.New(&buf, "json", slog.LevelInfo, nil)

		ctx := context.WithValue(context.Background(), log.TraceIDKey, "trace-1")
		ctx = context.WithValue(ctx, log.MigrationIDKey, "m1")
		ctx = context.WithValue(ctx, log.BatchIDKey, "batch-7")

		l.InfoContext(ctx, "execution started")

		var record map[string]any
		if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
			t.Fatalf("expected valid json log line, got: %s", buf.String())
		}

		if record["traceId"] != "trace-1" {
			t.Errorf("expected traceId to be trace-1, got: %v", record["traceId"])
		}
		if record["migrationId"] != "m1" {
			t.Errorf("expected migrationId to be m1, got: %v", record["migrationId"])
		}
		if record["batchId"] != "batch-7" {
			t.Errorf("expected batchId to be batch-7, got: %v", record["batchId"])
		}
	})

	t.Run("missing keys are omitted", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := log.New(&buf, "json", slog.LevelInfo, nil)

		l.InfoContext(context.Background(), "no context values")

		if strings.Contains(buf.String(), "migrationId") {
			t.Errorf("expected no migrationId attribute, got: %s", buf.String())
		}
	})

	t.Run("additional keys are extracted", func(t *testing.T) {
		t.Parallel()

		type customKey string
		const key customKey = "tenant"

		var buf bytes.Buffer
		l := log.New(&buf, "json", slog.LevelInfo, map[string]any{"tenant": key})

		ctx := context.WithValue(context.Background(), key, "acme")
		l.InfoContext(ctx, "custom key")

		var record map[string]any
		if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
			t.Fatalf("expected valid json log line, got: %s", buf.String())
		}

		if record["tenant"] != "acme" {
			t.Errorf("expected tenant to be acme, got: %v", record["tenant"])
		}
	})
}

func TestLoggerTypes(t *testing.T) {
	t.Parallel()

	t.Run("text logger", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := log.New(&buf, "text", slog.LevelInfo, nil)
		l.Info("hello", "key", "value")

		if !strings.Contains(buf.String(), "key=value") {
			t.Errorf("expected text output, got: %s", buf.String())
		}
	})

	t.Run("level filtering", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := log.New(&buf, "json", slog.LevelWarn, nil)
		l.Info("should be dropped")

		if buf.Len() != 0 {
			t.Errorf("expected info record to be dropped, got: %s", buf.String())
		}
	})
}
