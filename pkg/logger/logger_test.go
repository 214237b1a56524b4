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
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("verbose"))
}

func TestJSONLoggerCarriesService(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("reporter", &buf, "info", "json")

	log.Info().Str("stage", "Corte→Vizzavona").Msg("report sent")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "reporter", line["service"])
	assert.Equal(t, "Corte→Vizzavona", line["stage"])
	assert.Equal(t, "report sent", line["message"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("reporter", &buf, "warn", "json")

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
}
