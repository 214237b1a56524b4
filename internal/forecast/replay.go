package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// PointFile names the raw forecast file of a point: "{lat}_{lon}.json".
func PointFile(point itinerary.GeoPoint) string {
	return fmt.Sprintf("%.4f_%.4f.json", point.Lat, point.Lon)
}

// Recorder stores every forecast it passes through as raw JSON in dir, so
// a report can be replayed later with the exact same input.
type Recorder struct {
	provider Provider
	dir      string
}

func NewRecorder(p Provider, dir string) *Recorder {
	return &Recorder{provider: p, dir: dir}
}

func (r *Recorder) Name() string {
	return r.provider.Name()
}

func (r *Recorder) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	records, err := r.provider.Forecast(ctx, point)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(RawFromRecords(records))
	if err != nil {
		return nil, fmt.Errorf("failed to encode forecast: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, PointFile(point)), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to record forecast: %w", err)
	}
	return records, nil
}

// Replay serves forecasts from files written by a Recorder.
type Replay struct {
	dir string
	loc *time.Location
}

func NewReplay(dir string, loc *time.Location) *Replay {
	if loc == nil {
		loc = time.UTC
	}
	return &Replay{dir: dir, loc: loc}
}

func (r *Replay) Name() string {
	return "replay"
}

func (r *Replay) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, PointFile(point)))
	if err != nil {
		return nil, fmt.Errorf("failed to read recorded forecast: %w", err)
	}
	return DecodeRaw(data, r.loc)
}
