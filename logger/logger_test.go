package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"trace", TraceLevel},
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"WARN", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"", InfoLevel},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLogLevel(tt.input), "input %q", tt.input)
	}
}

func TestParseOutputFormat(t *testing.T) {
	assert.Equal(t, JSONFormat, ParseOutputFormat("json"))
	assert.Equal(t, DefaultFormat, ParseOutputFormat("default"))
	assert.Equal(t, DefaultFormat, ParseOutputFormat(""))
	assert.Equal(t, DefaultFormat, ParseOutputFormat("yaml"))
}

func newBufferedLogger(level LogLevel) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := NewZerologLogger(&Config{
		Level:   level,
		Format:  JSONFormat,
		Outputs: []io.Writer{&buf},
	})
	return log, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestZerologLogger_JSONOutput(t *testing.T) {
	log, buf := newBufferedLogger(InfoLevel)

	log.Info("token issued",
		String("user_id", "u1"),
		Int("attempts", 2),
		Bool("cached", false),
	)

	entry := decodeLine(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "token issued", entry["message"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, float64(2), entry["attempts"])
	assert.Equal(t, false, entry["cached"])
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	log, buf := newBufferedLogger(WarnLevel)

	log.Debug("should not appear")
	log.Info("should not appear")
	assert.Zero(t, buf.Len())

	log.Warn("visible")
	assert.Contains(t, buf.String(), "visible")

	assert.False(t, log.IsLevelEnabled(DebugLevel))
	assert.True(t, log.IsLevelEnabled(ErrorLevel))
}

func TestZerologLogger_WithSubsystem(t *testing.T) {
	log, buf := newBufferedLogger(InfoLevel)

	log.WithSubsystem("broker").Info("cache miss")
	entry := decodeLine(t, buf)
	assert.Equal(t, "broker", entry["module"])

	buf.Reset()
	log.WithSubsystem("broker").WithSubsystem("issuer").Info("fetching")
	entry = decodeLine(t, buf)
	assert.Equal(t, "broker.issuer", entry["module"])
}

func TestZerologLogger_SubsystemFieldEmittedOnce(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerologLogger(&Config{
		Level:     InfoLevel,
		Format:    JSONFormat,
		Outputs:   []io.Writer{&buf},
		Subsystem: "core",
	})

	// Deriving a subsystem logger must replace the module field, not emit
	// a second "module" key alongside the parent's.
	log.WithSubsystem("broker").Info("cache miss")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"module"`)))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "core.broker", entry["module"])
}

func TestZerologLogger_WithFields(t *testing.T) {
	log, buf := newBufferedLogger(InfoLevel)

	bound := log.WithFields(String("provider", "github"))
	bound.Info("first")
	entry := decodeLine(t, buf)
	assert.Equal(t, "github", entry["provider"])

	buf.Reset()
	bound.Error("second", Err(errors.New("boom")))
	entry = decodeLine(t, buf)
	assert.Equal(t, "github", entry["provider"])
	assert.Equal(t, "boom", entry["error"])
}
