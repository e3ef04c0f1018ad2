package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		" TRACE ": LevelTrace,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"loud":    LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestGetLogLevelFromEnv(t *testing.T) {
	t.Setenv("DEBUG", "")
	assert.Equal(t, LevelInfo, GetLogLevelFromEnv(false))
	assert.Equal(t, LevelDebug, GetLogLevelFromEnv(true))

	t.Setenv("DEBUG", "1")
	assert.Equal(t, LevelDebug, GetLogLevelFromEnv(false))

	t.Setenv("DEBUG", "false")
	assert.Equal(t, LevelInfo, GetLogLevelFromEnv(true))
}

func TestComponentLogger(t *testing.T) {
	prev := Logger
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	var buf bytes.Buffer
	ConfigureOutput(LevelInfo, &buf)

	log := Component("session")
	log.Debug().Msg("hidden")
	log.Info().Str("session", "abc").Msg("spawned")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "spawned", entry["message"])
}
