package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log := New(&buf, "production", "info")
	log.Info().Str("participant", "U1").Msg("connected")

	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("connected", line["message"])
	req.Equal("U1", line["participant"])
	req.Equal("info", line["level"])
}

func TestNew_LevelFilters(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log := New(&buf, "production", "warn")
	log.Info().Msg("hidden")
	req.Zero(buf.Len())

	log.Warn().Msg("shown")
	req.NotZero(buf.Len())
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log := New(&buf, "production", "chatty")
	log.Debug().Msg("hidden")
	req.Zero(buf.Len())
	log.Info().Msg("shown")
	req.NotZero(buf.Len())
}

func TestHelpersWriteThroughGlobal(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	prev := Log
	t.Cleanup(func() { Log = prev })

	Log = New(&buf, "production", "debug")
	Debug().Msg("d")
	Info().Msg("i")
	Warn().Msg("w")
	Error().Msg("e")

	levels := []string{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		req.NoError(json.Unmarshal(line, &entry))
		levels = append(levels, entry["level"].(string))
	}
	req.Equal([]string{"debug", "info", "warn", "error"}, levels)
}
