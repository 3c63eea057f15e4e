package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLevelParsing(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for raw, want := range cases {
		var buf bytes.Buffer
		logger := newLogger(&buf, raw)
		logger.Log(context.Background(), want-1, "below")
		logger.Log(context.Background(), want, "at")
		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("%q: expected exactly one json line, got %q", raw, buf.String())
		}
		if line["msg"] != "at" {
			t.Fatalf("%q: unexpected record %v", raw, line)
		}
	}
}
