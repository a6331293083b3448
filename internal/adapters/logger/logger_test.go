package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridBacktester/internal/ports"
)

var _ ports.Logger = (*ZeroLogger)(nil)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestZeroLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelInfo, FormatJSON)
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	l.Error(ctx, errors.New("boom"), "run failed", map[string]interface{}{"symbol": "BTCUSDT"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "run failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "BTCUSDT", entry["symbol"])
}

func TestZeroLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelDebug, FormatJSON).With(map[string]interface{}{"run": "abc"})
	l.Info(context.Background(), "stage done", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "abc", entry["run"])
}
