package forecast

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/smukkama/gr20-alert/internal/external"
	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// msToKmh converts MET Norway wind speeds.
const msToKmh = 3.6

// MetNoConfig configures the fallback provider.
type MetNoConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Location  *time.Location
}

// MetNo reads the MET Norway locationforecast "complete" product. The API
// rejects requests without an identifying User-Agent.
type MetNo struct {
	client  *external.Client
	baseURL string
	loc     *time.Location
}

func NewMetNo(cfg MetNoConfig) *MetNo {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &MetNo{
		client:  external.NewClient(&http.Client{Timeout: timeout}, "metno", cfg.UserAgent),
		baseURL: cfg.BaseURL,
		loc:     loc,
	}
}

func (m *MetNo) Name() string {
	return "metno"
}

type metNoForecast struct {
	Properties struct {
		Timeseries []metNoStep `json:"timeseries"`
	} `json:"properties"`
}

type metNoStep struct {
	Time time.Time `json:"time"`
	Data struct {
		Instant struct {
			Details struct {
				AirTemperature  *float64 `json:"air_temperature"`
				WindSpeed       *float64 `json:"wind_speed"`
				WindSpeedOfGust *float64 `json:"wind_speed_of_gust"`
			} `json:"details"`
		} `json:"instant"`
		Next1Hours *struct {
			Details struct {
				PrecipitationAmount        *float64 `json:"precipitation_amount"`
				ProbabilityOfPrecipitation *float64 `json:"probability_of_precipitation"`
				ProbabilityOfThunder       *float64 `json:"probability_of_thunder"`
			} `json:"details"`
		} `json:"next_1_hours"`
	} `json:"data"`
}

// Forecast returns the hourly steps of the complete product. Steps without a
// next_1_hours block (the 6-hourly tail) are skipped.
func (m *MetNo) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	u = u.JoinPath("complete")
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(point.Lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(point.Lon, 'f', 4, 64))
	u.RawQuery = q.Encode()

	var doc metNoForecast
	if err := m.client.GetJSON(ctx, u.String(), &doc); err != nil {
		return nil, err
	}
	return doc.records(m.loc), nil
}

func (f metNoForecast) records(loc *time.Location) []HourlyRecord {
	records := make([]HourlyRecord, 0, len(f.Properties.Timeseries))
	for _, step := range f.Properties.Timeseries {
		if step.Data.Next1Hours == nil {
			continue
		}
		instant := step.Data.Instant.Details
		next := step.Data.Next1Hours.Details

		rec := HourlyRecord{
			Timestamp:               step.Time.In(loc),
			Temperature:             instant.AirTemperature,
			RainProbability:         next.ProbabilityOfPrecipitation,
			ThunderstormProbability: next.ProbabilityOfThunder,
		}
		if next.PrecipitationAmount != nil {
			rec.RainAmount = *next.PrecipitationAmount
		}
		if instant.WindSpeed != nil {
			rec.WindSpeed = *instant.WindSpeed * msToKmh
		}
		if instant.WindSpeedOfGust != nil {
			rec.WindGusts = *instant.WindSpeedOfGust * msToKmh
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}
