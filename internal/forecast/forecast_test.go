package forecast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/gr20-alert/internal/itinerary"
)

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func TestDecodeRaw(t *testing.T) {
	loc := paris(t)
	// 2025-07-07 08:00 and 06:00 Paris (UTC+2), deliberately out of order.
	data := []byte(`{"data":[
		{"dt":1751868000,"rain":{"1h":1.4},"wind":{"speed":12,"gust":31},"T":{"value":21.5},"rain_probability":60},
		{"dt":1751860800,"wind":{"speed":8}}
	]}`)

	records, err := DecodeRaw(data, loc)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, 6, first.Timestamp.Hour())
	assert.Equal(t, 0.0, first.RainAmount)
	assert.Equal(t, 8.0, first.WindSpeed)
	assert.Nil(t, first.RainProbability)
	assert.Nil(t, first.Temperature)
	assert.Nil(t, first.ThunderstormProbability)

	second := records[1]
	assert.Equal(t, 8, second.Timestamp.Hour())
	assert.Equal(t, 1.4, second.RainAmount)
	assert.Equal(t, 31.0, second.WindGusts)
	require.NotNil(t, second.Temperature)
	assert.Equal(t, 21.5, *second.Temperature)
	require.NotNil(t, second.RainProbability)
	assert.Equal(t, 60.0, *second.RainProbability)
}

func TestDecodeRawInvalid(t *testing.T) {
	_, err := DecodeRaw([]byte(`{"data":`), time.UTC)
	require.Error(t, err)
}

func TestRawRoundTripKeepsNulls(t *testing.T) {
	loc := paris(t)
	in := []HourlyRecord{{
		Timestamp:  time.Date(2025, 7, 7, 10, 0, 0, 0, loc),
		RainAmount: 0.4,
		WindSpeed:  15,
		WindGusts:  25,
	}}

	out := RawFromRecords(in).Records(loc)
	require.Len(t, out, 1)
	assert.True(t, in[0].Timestamp.Equal(out[0].Timestamp))
	assert.Equal(t, 0.4, out[0].RainAmount)
	assert.Nil(t, out[0].Temperature)
	assert.Nil(t, out[0].ThunderstormProbability)
}

func TestMeteoFranceForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, "42.3", r.URL.Query().Get("lat"))
		assert.Equal(t, "9.15", r.URL.Query().Get("lon"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"dt":1751868000,"rain":{"1h":0.2}}]}`))
	}))
	defer srv.Close()

	p := NewMeteoFrance(context.Background(), MeteoFranceConfig{BaseURL: srv.URL, Location: time.UTC})
	records, err := p.Forecast(context.Background(), itinerary.GeoPoint{Lat: 42.3, Lon: 9.15})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.2, records[0].RainAmount)
}

func TestMeteoFranceUsesClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewMeteoFrance(context.Background(), MeteoFranceConfig{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
	})
	for i := 0; i < 2; i++ {
		_, err := p.Forecast(context.Background(), itinerary.GeoPoint{Lat: 42, Lon: 9})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), tokenCalls.Load(), "token must be reused")
}

const metNoBody = `{"properties":{"timeseries":[
	{"time":"2025-07-07T06:00:00Z","data":{
		"instant":{"details":{"air_temperature":18.2,"wind_speed":5.0,"wind_speed_of_gust":10.0}},
		"next_1_hours":{"details":{"precipitation_amount":0.6,"probability_of_precipitation":40,"probability_of_thunder":12}}}},
	{"time":"2025-07-10T00:00:00Z","data":{
		"instant":{"details":{"air_temperature":14.0,"wind_speed":2.0}}}}
]}}`

func TestMetNoForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/complete", r.URL.Path)
		assert.Equal(t, "gr20-test", r.Header.Get("User-Agent"))
		w.Write([]byte(metNoBody))
	}))
	defer srv.Close()

	p := NewMetNo(MetNoConfig{BaseURL: srv.URL, UserAgent: "gr20-test", Location: paris(t)})
	records, err := p.Forecast(context.Background(), itinerary.GeoPoint{Lat: 42.3, Lon: 9.1})
	require.NoError(t, err)
	require.Len(t, records, 1, "six-hourly tail is skipped")

	rec := records[0]
	assert.Equal(t, 8, rec.Timestamp.Hour())
	assert.InDelta(t, 18.0, rec.WindSpeed, 1e-9)
	assert.InDelta(t, 36.0, rec.WindGusts, 1e-9)
	assert.Equal(t, 0.6, rec.RainAmount)
	require.NotNil(t, rec.ThunderstormProbability)
	assert.Equal(t, 12.0, *rec.ThunderstormProbability)
}

type stubProvider struct {
	name    string
	records []HourlyRecord
	err     error
	calls   atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func TestFallback(t *testing.T) {
	primary := &stubProvider{name: "a", err: errors.New("down")}
	secondary := &stubProvider{name: "b", records: []HourlyRecord{{WindSpeed: 3}}}

	f := NewFallback(primary, secondary)
	assert.Equal(t, "a+b", f.Name())

	records, err := f.Forecast(context.Background(), itinerary.GeoPoint{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFallbackAllFail(t *testing.T) {
	f := NewFallback(
		&stubProvider{name: "a", err: errors.New("down")},
		&stubProvider{name: "b", err: errors.New("also down")},
	)

	_, err := f.Forecast(context.Background(), itinerary.GeoPoint{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: down")
	assert.Contains(t, err.Error(), "b: also down")
}

func TestCacheFetchesOncePerPoint(t *testing.T) {
	stub := &stubProvider{name: "a", records: []HourlyRecord{{WindSpeed: 1}}}
	c := NewCache(stub)

	for i := 0; i < 3; i++ {
		_, err := c.Forecast(context.Background(), itinerary.GeoPoint{Lat: 1, Lon: 2})
		require.NoError(t, err)
	}
	_, err := c.Forecast(context.Background(), itinerary.GeoPoint{Lat: 1, Lon: 3})
	require.NoError(t, err)

	assert.Equal(t, int32(2), stub.calls.Load())
}

type pointProvider struct{}

func (pointProvider) Name() string { return "points" }

func (pointProvider) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	if point.Lat == 2 {
		return nil, errors.New("boom")
	}
	return []HourlyRecord{{WindSpeed: point.Lat}}, nil
}

func TestFetchStageDegradesFailedPoint(t *testing.T) {
	stage := &itinerary.Stage{Name: "A→B", Points: []itinerary.GeoPoint{{Lat: 1}, {Lat: 2}, {Lat: 3}}}

	series, err := FetchStage(context.Background(), pointProvider{}, stage, 2, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, 1.0, series[0].Records[0].WindSpeed)
	assert.Empty(t, series[1].Records)
	assert.Equal(t, 2.0, series[1].Point.Lat)
	assert.Equal(t, 3.0, series[2].Records[0].WindSpeed)
}

func TestFetchStageCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stage := &itinerary.Stage{Name: "A", Points: []itinerary.GeoPoint{{Lat: 2}}}

	_, err := FetchStage(ctx, pointProvider{}, stage, 1, zerolog.Nop())
	require.ErrorIs(t, err, context.Canceled)
}

type fixedProvider []HourlyRecord

func (f fixedProvider) Name() string { return "fixed" }

func (f fixedProvider) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	return f, nil
}

func TestRecordAndReplay(t *testing.T) {
	loc := paris(t)
	dir := t.TempDir()
	point := itinerary.GeoPoint{Lat: 42.3061, Lon: 9.1504}
	temp := 18.5
	in := fixedProvider{
		{Timestamp: time.Date(2025, 7, 7, 6, 0, 0, 0, loc), RainAmount: 0.2, Temperature: &temp},
		{Timestamp: time.Date(2025, 7, 7, 7, 0, 0, 0, loc), WindSpeed: 22},
	}

	_, err := NewRecorder(in, dir).Forecast(context.Background(), point)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "42.3061_9.1504.json"))

	out, err := NewReplay(dir, loc).Forecast(context.Background(), point)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, in[0].Timestamp.Equal(out[0].Timestamp))
	assert.Equal(t, 18.5, *out[0].Temperature)
	assert.Equal(t, 22.0, out[1].WindSpeed)

	_, err = NewReplay(dir, loc).Forecast(context.Background(), itinerary.GeoPoint{Lat: 1, Lon: 2})
	require.Error(t, err)
}
