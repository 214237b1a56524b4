package forecast

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/smukkama/gr20-alert/internal/external"
	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// MeteoFranceConfig configures the primary provider.
type MeteoFranceConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Location     *time.Location
}

// MeteoFrance fetches hourly point forecasts from the Meteo-France forecast
// service. With client credentials every request carries an OAuth2 bearer
// token; without them the plain endpoint is used.
type MeteoFrance struct {
	client  *external.Client
	baseURL string
	loc     *time.Location
}

// NewMeteoFrance creates the provider. ctx bounds token refreshes.
func NewMeteoFrance(ctx context.Context, cfg MeteoFranceConfig) *MeteoFrance {
	httpClient := &http.Client{}
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = cc.Client(ctx)
	}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &MeteoFrance{
		client:  external.NewClient(httpClient, "meteofrance", ""),
		baseURL: cfg.BaseURL,
		loc:     loc,
	}
}

func (m *MeteoFrance) Name() string {
	return "meteofrance"
}

// Forecast returns the hourly forecast of point in the configured time zone.
func (m *MeteoFrance) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	u = u.JoinPath("forecast")
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(point.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(point.Lon, 'f', -1, 64))
	q.Set("lang", "fr")
	u.RawQuery = q.Encode()

	var raw RawForecast
	if err := m.client.GetJSON(ctx, u.String(), &raw); err != nil {
		return nil, err
	}
	return raw.Records(m.loc), nil
}
