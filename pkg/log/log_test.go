package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{" WARN ", WarnLevel},
		{"error", ErrorLevel},
		{"info", InfoLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestWithComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("reconciler")
	logger.Info().Str("panel_url", "https://panel.example.com").Msg("Sync completed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "reconciler", line["component"])
	assert.Equal(t, "https://panel.example.com", line["panel_url"])
	assert.Equal(t, "Sync completed", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel, JSONOutput: true, Output: &bytes.Buffer{}})

	logger := WithComponent("live")
	logger.Debug().Msg("hidden")
	logger.Info().Msg("hidden too")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestWithPanel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	logger := WithPanel("https://panel.example.com")
	logger.Info().Msg("Directory fetched")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "panel", line["component"])
	assert.Equal(t, "https://panel.example.com", line["panel_url"])
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})
	defer Init(Config{Level: InfoLevel, JSONOutput: true, Output: &bytes.Buffer{}})

	logger := WithComponent("api")
	logger.Info().Msg("API server listening")

	assert.Contains(t, buf.String(), "API server listening")
	assert.Contains(t, buf.String(), "component=api")
}
