package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogging(t *testing.T) {
	var buf bytes.Buffer
	prev := current()
	t.Cleanup(func() {
		mu.Lock()
		Logger = prev
		mu.Unlock()
	})
	Configure(Config{Level: slog.LevelDebug, Format: "json", Writer: &buf})

	ctx := WithContextValue(context.Background(), DatabaseKey, "main")
	ctx = WithContextValue(ctx, TxIDKey, "tx-1")

	InfoContext(ctx, "committed", Table("users"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "committed", entry["msg"])
	assert.Equal(t, "main", entry["database"])
	assert.Equal(t, "tx-1", entry["tx_id"])
	assert.Equal(t, "users", entry["table"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"WARN", slog.LevelWarn, true},
		{"4", slog.Level(4), true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
