// Package itinerary holds the static stage list of the trek and maps calendar
// dates onto stages.
package itinerary

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Arrow separates start and end of a stage name ("Corte→Vizzavona").
const Arrow = "→"

const maxNameRunes = 10

// GeoPoint is one waypoint of a stage.
type GeoPoint struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	FireZone string  `json:"fire_zone,omitempty"`
}

// Stage is a named day segment. Point order is significant: index i is
// labelled G{i+1}.
type Stage struct {
	Name   string     `json:"name"`
	Points []GeoPoint `json:"punkte"`
}

// Itinerary is the ordered list of stages, stage 0 being the start day.
type Itinerary struct {
	Stages []Stage
}

// Load reads an etappen.json file.
func Load(path string) (*Itinerary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read itinerary: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates the itinerary JSON array.
func Parse(data []byte) (*Itinerary, error) {
	var stages []Stage
	if err := json.Unmarshal(data, &stages); err != nil {
		return nil, fmt.Errorf("failed to parse itinerary: %w", err)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("itinerary has no stages")
	}
	for i, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("stage %d has no name", i)
		}
		if len(s.Points) == 0 {
			return nil, fmt.Errorf("stage %q has no points", s.Name)
		}
		for j, p := range s.Points {
			if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
				return nil, fmt.Errorf("stage %q point %d: invalid coordinates %f,%f", s.Name, j+1, p.Lat, p.Lon)
			}
		}
	}
	return &Itinerary{Stages: stages}, nil
}

// StageAt returns the stage for a day offset from the start date.
func (it *Itinerary) StageAt(offset int) (*Stage, bool) {
	if offset < 0 || offset >= len(it.Stages) {
		return nil, false
	}
	return &it.Stages[offset], true
}

// StageFor resolves the stage hiked on date for an itinerary starting on start.
func (it *Itinerary) StageFor(start, date time.Time) (*Stage, bool) {
	return it.StageAt(DayOffset(start, date))
}

// DayOffset counts calendar days from start to date, ignoring clock time and
// DST shifts.
func DayOffset(start, date time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(s).Hours() / 24)
}

// ShortName compacts a stage name for SMS. With an arrow the part before it
// is kept together with the first two characters after it; otherwise the name
// is cut to ten characters.
func ShortName(name string) string {
	if before, after, ok := strings.Cut(name, Arrow); ok {
		tail := []rune(after)
		if len(tail) > 2 {
			tail = tail[:2]
		}
		return before + Arrow + string(tail)
	}
	runes := []rune(name)
	if len(runes) > maxNameRunes {
		return string(runes[:maxNameRunes])
	}
	return name
}

// Label returns the debug label of a point: day is 1 for today, 2 for
// tomorrow, 3 for the day after; index is zero based.
func Label(day, index int) string {
	return fmt.Sprintf("T%dG%d", day, index+1)
}
