package itinerary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStages = `[
  {"name": "Calenzana→Ortu di u Piobbu", "punkte": [{"lat": 42.508, "lon": 8.855}, {"lat": 42.476, "lon": 8.874}]},
  {"name": "Ortu di u Piobbu→Carrozzu", "punkte": [{"lat": 42.476, "lon": 8.874, "fire_zone": "balagne"}]},
  {"name": "Corte→Vizzavona", "punkte": [{"lat": 42.306, "lon": 9.150}, {"lat": 42.200, "lon": 9.130}, {"lat": 42.126, "lon": 9.129}]}
]`

func TestParse(t *testing.T) {
	it, err := Parse([]byte(sampleStages))
	require.NoError(t, err)
	require.Len(t, it.Stages, 3)
	assert.Equal(t, "balagne", it.Stages[1].Points[0].FireZone)
	assert.Len(t, it.Stages[2].Points, 3)
}

func TestParseRejectsEmptyStage(t *testing.T) {
	_, err := Parse([]byte(`[{"name": "Nirgendwo", "punkte": []}]`))
	require.Error(t, err)

	_, err = Parse([]byte(`[]`))
	require.Error(t, err)

	_, err = Parse([]byte(`[{"name": "Pol", "punkte": [{"lat": 91, "lon": 0}]}]`))
	require.Error(t, err)
}

func TestStageFor(t *testing.T) {
	it, err := Parse([]byte(sampleStages))
	require.NoError(t, err)

	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	start := time.Date(2025, 7, 7, 0, 0, 0, 0, paris)

	stage, ok := it.StageFor(start, time.Date(2025, 7, 9, 18, 30, 0, 0, paris))
	require.True(t, ok)
	assert.Equal(t, "Corte→Vizzavona", stage.Name)

	_, ok = it.StageFor(start, time.Date(2025, 7, 6, 12, 0, 0, 0, paris))
	assert.False(t, ok, "before start")

	_, ok = it.StageFor(start, time.Date(2025, 7, 10, 4, 0, 0, 0, paris))
	assert.False(t, ok, "after the last stage")
}

func TestDayOffsetAcrossDST(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	start := time.Date(2025, 10, 25, 0, 0, 0, 0, paris)
	assert.Equal(t, 2, DayOffset(start, time.Date(2025, 10, 27, 0, 30, 0, 0, paris)))
}

func TestShortName(t *testing.T) {
	cases := map[string]string{
		"Corte→Vizzavona":      "Corte→Vi",
		"Almhütte→Gipfelkreuz": "Almhütte→Gi",
		"Vizzavona":            "Vizzavona",
		"Bocca di Verdi":       "Bocca di V",
		"Ciottulu→A":           "Ciottulu→A",
	}
	for in, want := range cases {
		assert.Equal(t, want, ShortName(in), in)
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "T1G1", Label(1, 0))
	assert.Equal(t, "T2G3", Label(2, 2))
}
