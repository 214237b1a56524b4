// Package forecast turns provider responses into hourly records per waypoint.
package forecast

import (
	"context"
	"time"

	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// HourlyRecord is one forecast hour for one point. Timestamp is already in the
// itinerary time zone; its date and hour drive every window filter.
// Amounts default to zero when the provider omits them, the nullable fields
// stay nil.
type HourlyRecord struct {
	Timestamp               time.Time
	RainAmount              float64
	RainProbability         *float64
	WindSpeed               float64
	WindGusts               float64
	Temperature             *float64
	ThunderstormProbability *float64
}

// Series is the ordered record list of one waypoint.
type Series struct {
	Point   itinerary.GeoPoint
	Records []HourlyRecord
}

// Provider fetches hourly forecasts for a single point.
type Provider interface {
	Name() string
	Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error)
}

func ptr(v float64) *float64 {
	return &v
}
