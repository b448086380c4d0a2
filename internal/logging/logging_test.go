package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "debug", Service: "pricefeed"})
	logger.Debug().Str("token", "solace").Msg("price recorded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "pricefeed", entry["service"])
	assert.Equal(t, "solace", entry["token"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn"})
	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len(), buf.String())
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "verbose"})
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Format: "console"})
	logger.Info().Msg("hello")
	assert.NotRegexp(t, `^\{`, buf.String())
	assert.Contains(t, buf.String(), "hello")
}
