package aggregation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/gr20-alert/internal/forecast"
	"github.com/smukkama/gr20-alert/internal/itinerary"
)

var day1 = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)

func at(date time.Time, hour int) time.Time {
	return date.Add(time.Duration(hour) * time.Hour)
}

func rain(date time.Time, pairs ...float64) []forecast.HourlyRecord {
	var out []forecast.HourlyRecord
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, forecast.HourlyRecord{Timestamp: at(date, int(pairs[i])), RainAmount: pairs[i+1]})
	}
	return out
}

func temps(date time.Time, pairs ...float64) []forecast.HourlyRecord {
	var out []forecast.HourlyRecord
	for i := 0; i+1 < len(pairs); i += 2 {
		v := pairs[i+1]
		out = append(out, forecast.HourlyRecord{Timestamp: at(date, int(pairs[i])), Temperature: &v})
	}
	return out
}

func metric(t *testing.T, key MetricKey) Metric {
	t.Helper()
	m, ok := MetricFor(key)
	require.True(t, ok)
	return m
}

func TestExtractRainExample(t *testing.T) {
	records := rain(day1, 6, 0.20, 7, 0.0, 16, 1.40, 17, 0.80)

	res := Extract(records, day1, metric(t, RainAmount), 0.2, DefaultWindow)

	require.NotNil(t, res.ThresholdTime)
	assert.Equal(t, 6, *res.ThresholdTime)
	assert.Equal(t, 0.20, *res.ThresholdValue)
	require.NotNil(t, res.MaxTime)
	assert.Equal(t, 16, *res.MaxTime)
	assert.Equal(t, 1.40, *res.MaxValue)
}

func TestExtractEmptySeries(t *testing.T) {
	res := Extract(nil, day1, metric(t, RainAmount), 0.2, DefaultWindow)

	assert.Equal(t, ExtractionResult{}, res)
	assert.False(t, res.HasData())
}

func TestExtractOtherDateIsNoData(t *testing.T) {
	records := rain(day1.AddDate(0, 0, 1), 10, 3.0)

	res := Extract(records, day1, metric(t, RainAmount), 0.2, DefaultWindow)
	assert.Nil(t, res.MaxValue)
}

func TestExtractZeroIsData(t *testing.T) {
	records := rain(day1, 8, 0, 9, 0)

	res := Extract(records, day1, metric(t, RainAmount), 0.2, DefaultWindow)
	require.NotNil(t, res.MaxValue, "0.0 is a real maximum")
	assert.Equal(t, 0.0, *res.MaxValue)
	assert.Equal(t, 8, *res.MaxTime)
	assert.Nil(t, res.ThresholdTime)
}

func TestExtractWindowIsInclusive(t *testing.T) {
	records := rain(day1, 3, 9.0, 4, 0.1, 19, 0.5, 20, 9.0)

	res := Extract(records, day1, metric(t, RainAmount), 0.2, DefaultWindow)
	assert.Equal(t, 0.5, *res.MaxValue)
	assert.Equal(t, 19, *res.MaxTime)
	assert.Equal(t, 19, *res.ThresholdTime)
}

func TestExtractTieKeepsEarliest(t *testing.T) {
	records := rain(day1, 15, 2.0, 9, 2.0, 12, 1.0)

	res := Extract(records, day1, metric(t, RainAmount), 5, DefaultWindow)
	assert.Equal(t, 9, *res.MaxTime, "unsorted input, earliest of the tied hours")
	assert.Nil(t, res.ThresholdTime)
}

func TestExtractThresholdAfterMax(t *testing.T) {
	records := rain(day1, 8, 3.0, 10, 0.1, 14, 1.0)

	res := Extract(records, day1, metric(t, RainAmount), 1.0, DefaultWindow)
	assert.Equal(t, 8, *res.ThresholdTime)

	res = Extract(rain(day1, 8, 0.5, 14, 1.0, 16, 0.9), day1, metric(t, RainAmount), 0.95, DefaultWindow)
	assert.Equal(t, 14, *res.ThresholdTime)
	assert.Equal(t, 14, *res.MaxTime)
}

func TestExtractNullableMetricWithoutValues(t *testing.T) {
	records := rain(day1, 8, 1.0, 9, 2.0)

	res := Extract(records, day1, metric(t, Thunderstorm), 20, DefaultWindow)
	assert.False(t, res.HasData())
	assert.Nil(t, res.ThresholdTime)
}

func TestExtractNightTemperatureTracksMinimum(t *testing.T) {
	records := temps(day1, 0, 8, 2, 4.5, 4, 3.0, 5, 3.0, 6, 6)

	res := Extract(records, day1, metric(t, NightTemp), 5, DefaultNightWindow)
	assert.Equal(t, 2, *res.ThresholdTime)
	assert.Equal(t, 4.5, *res.ThresholdValue)
	assert.Equal(t, 4, *res.MaxTime)
	assert.Equal(t, 3.0, *res.MaxValue)
}

func TestExtractIsIdempotent(t *testing.T) {
	records := rain(day1, 6, 0.2, 16, 1.4)
	m := metric(t, RainAmount)

	a := Extract(records, day1, m, 0.2, DefaultWindow)
	b := Extract(records, day1, m, 0.2, DefaultWindow)
	assert.Equal(t, a, b)
	assert.Equal(t, 6, records[0].Timestamp.Hour(), "input untouched")
}

func TestExtractProperties(t *testing.T) {
	series := [][]forecast.HourlyRecord{
		rain(day1, 4, 0.0, 5, 0.1, 6, 0.3, 7, 0.3, 8, 0.0, 12, 2.0),
		rain(day1, 10, 1.0, 11, 0.0, 12, 1.0, 13, 0.9),
		rain(day1, 4, 0.19, 19, 0.19),
	}
	threshold := 0.2
	m := metric(t, RainAmount)

	for _, records := range series {
		res := Extract(records, day1, m, threshold, DefaultWindow)

		trueMax := records[0].RainAmount
		trueMaxHour := records[0].Timestamp.Hour()
		for _, r := range records {
			if r.RainAmount > trueMax {
				trueMax = r.RainAmount
				trueMaxHour = r.Timestamp.Hour()
			}
		}
		assert.Equal(t, trueMax, *res.MaxValue)
		assert.Equal(t, trueMaxHour, *res.MaxTime)

		if res.ThresholdTime == nil {
			for _, r := range records {
				assert.Less(t, r.RainAmount, threshold)
			}
			continue
		}
		for _, r := range records {
			h := r.Timestamp.Hour()
			if h < *res.ThresholdTime {
				assert.Less(t, r.RainAmount, threshold)
			}
			if h == *res.ThresholdTime {
				assert.GreaterOrEqual(t, r.RainAmount, threshold)
			}
		}
	}
}

func stage(n int) *itinerary.Stage {
	s := &itinerary.Stage{Name: "Corte→Vizzavona"}
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, itinerary.GeoPoint{Lat: 42 + float64(i)/10, Lon: 9})
	}
	return s
}

func TestProcessMetricCrossPointMax(t *testing.T) {
	series := []forecast.Series{
		{Records: rain(day1, 16, 1.20)},
		{Records: rain(day1, 16, 1.40)},
	}

	agg := ProcessMetric(stage(2), series, metric(t, RainAmount), 0.2, day1, DefaultWindow)
	assert.Equal(t, 1.40, *agg.MaxValue)
	assert.Equal(t, 16, *agg.MaxTime)
	assert.Equal(t, 1, agg.MaxPoint)
	require.Len(t, agg.Points, 2)
	assert.Equal(t, 1.20, *agg.Points[0].MaxValue)
}

func TestProcessMetricUsesMaxNotSum(t *testing.T) {
	series := []forecast.Series{
		{Records: []forecast.HourlyRecord{{Timestamp: at(day1, 10), WindSpeed: 20}}},
		{Records: []forecast.HourlyRecord{{Timestamp: at(day1, 10), WindSpeed: 30}}},
		{Records: []forecast.HourlyRecord{{Timestamp: at(day1, 10), WindSpeed: 25}}},
	}

	agg := ProcessMetric(stage(3), series, metric(t, WindSpeed), 40, day1, DefaultWindow)
	assert.Equal(t, 30.0, *agg.MaxValue)
	assert.False(t, agg.Crossed())
}

func TestProcessMetricTieBreaks(t *testing.T) {
	series := []forecast.Series{
		{Records: rain(day1, 14, 2.0, 9, 0.5)},
		{Records: rain(day1, 11, 2.0, 9, 0.3)},
		{Records: rain(day1, 11, 2.0)},
	}

	agg := ProcessMetric(stage(3), series, metric(t, RainAmount), 0.3, day1, DefaultWindow)

	assert.Equal(t, 11, *agg.MaxTime, "earliest time wins equal values")
	assert.Equal(t, 1, agg.MaxPoint, "then the lowest index")
	assert.Equal(t, 9, *agg.ThresholdTime)
	assert.Equal(t, 0, agg.ThresholdPoint, "first point wins equal crossing times")
	assert.Equal(t, 0.5, *agg.ThresholdValue)
}

func TestProcessMetricNoData(t *testing.T) {
	agg := ProcessMetric(stage(2), nil, metric(t, RainAmount), 0.2, day1, DefaultWindow)

	assert.False(t, agg.HasData())
	assert.Equal(t, -1, agg.MaxPoint)
	require.Len(t, agg.Points, 2, "per-point results are still present")
	assert.False(t, agg.Points[1].HasData())
}

func fullDay(date time.Time, wind float64) []forecast.HourlyRecord {
	var out []forecast.HourlyRecord
	for h := 0; h < 24; h++ {
		temp := 10.0 + float64(h)
		thunder := float64(h)
		out = append(out, forecast.HourlyRecord{
			Timestamp:               at(date, h),
			WindSpeed:               wind,
			Temperature:             &temp,
			ThunderstormProbability: &thunder,
		})
	}
	return out
}

func thresholds() Thresholds {
	return Thresholds{
		RainAmount:      0.2,
		RainProbability: 50,
		WindSpeed:       20,
		WindGust:        40,
		Thunderstorm:    15,
		DayTemp:         30,
		NightTemp:       5,
	}
}

func forecasts(days ...int) Forecasts {
	f := Forecasts{}
	for _, d := range days {
		date := day1.AddDate(0, 0, d-1)
		s := stage(1)
		s.Name = []string{"", "Calenzana→Ortu", "Ortu→Carrozzu", "Carrozzu→Asco"}[d]
		f[d] = &DayForecast{
			Day:    d,
			Date:   date,
			Stage:  s,
			Series: []forecast.Series{{Records: fullDay(date, float64(d*10))}},
		}
	}
	return f
}

func TestAggregateMorningDates(t *testing.T) {
	ctx, err := Aggregate(Morning, forecasts(1, 2), thresholds(), DefaultWindows())
	require.NoError(t, err)

	assert.Equal(t, "Calenzana→Ortu", ctx.Stage)
	assert.Equal(t, 10.0, *ctx.Metric(WindSpeed).MaxValue, "today is day 1")
	assert.Equal(t, 1, ctx.Metric(WindSpeed).Day)
	assert.Equal(t, 2, ctx.Metric(ThunderstormNextDay).Day)
	assert.Equal(t, "Ortu→Carrozzu", ctx.Metric(ThunderstormNextDay).Stage)
	assert.Nil(t, ctx.Metric(NightTemp))
	assert.Equal(t, []MetricKey{Thunderstorm, RainProbability, RainAmount, DayTemp, WindSpeed, WindGust, ThunderstormNextDay}, ctx.Order)
}

func TestAggregateEveningDates(t *testing.T) {
	ctx, err := Aggregate(Evening, forecasts(1, 2, 3), thresholds(), DefaultWindows())
	require.NoError(t, err)

	assert.Equal(t, "Ortu→Carrozzu", ctx.Stage, "evening reports head with tomorrow's stage")
	assert.True(t, SameDate(day1.AddDate(0, 0, 1), ctx.Date))

	night := ctx.Metric(NightTemp)
	assert.Equal(t, 1, night.Day, "night temperature reads the current day")
	assert.True(t, SameDate(day1, night.Date))
	assert.Equal(t, 10.0, *night.MaxValue)
	assert.Equal(t, 0, *night.MaxTime)

	assert.Equal(t, 20.0, *ctx.Metric(WindSpeed).MaxValue)
	assert.Equal(t, 3, ctx.Metric(ThunderstormNextDay).Day)
	assert.Equal(t, 15, *ctx.Metric(Thunderstorm).ThresholdTime)
	assert.Equal(t, 19.0, *ctx.Metric(Thunderstorm).MaxValue)
}

func TestAggregateUpdateMatchesMorning(t *testing.T) {
	morning, err := Aggregate(Morning, forecasts(1, 2), thresholds(), DefaultWindows())
	require.NoError(t, err)
	update, err := Aggregate(Update, forecasts(1, 2), thresholds(), DefaultWindows())
	require.NoError(t, err)

	assert.Equal(t, Update, update.Type)
	assert.Equal(t, morning.Order, update.Order)
	for _, key := range morning.Order {
		m, u := morning.Metric(key), update.Metric(key)
		assert.Equal(t, m.Points, u.Points, key)
		assert.Equal(t, m.Day, u.Day, key)
		assert.Equal(t, m.MaxValue, u.MaxValue, key)
		assert.Equal(t, m.ThresholdTime, u.ThresholdTime, key)
	}
}

func TestAggregateMissingDayDegrades(t *testing.T) {
	f := forecasts(1)
	f[1].Series = nil

	ctx, err := Aggregate(Morning, f, thresholds(), DefaultWindows())
	require.NoError(t, err)
	for _, key := range ctx.Order {
		assert.False(t, ctx.Metric(key).HasData(), key)
	}
	assert.True(t, SameDate(day1.AddDate(0, 0, 1), ctx.Metric(ThunderstormNextDay).Date))
}

func TestAggregateConfigurationErrors(t *testing.T) {
	th := thresholds()
	delete(th, WindGust)
	_, err := Aggregate(Morning, forecasts(1, 2), th, DefaultWindows())
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "wind_gust")

	_, err = Aggregate(Evening, forecasts(1), thresholds(), DefaultWindows())
	require.True(t, errors.As(err, &cfgErr), "evening without tomorrow's stage")
}

func TestAggregateFireRisk(t *testing.T) {
	f := forecasts(1, 2)
	f[1].FireRisk = []string{"balagne: sévère", "", "balagne: sévère", "sud-est: très sévère"}

	ctx, err := Aggregate(Morning, f, thresholds(), DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, "balagne: sévère; sud-est: très sévère", ctx.FireRisk)
}

func TestDays(t *testing.T) {
	assert.Equal(t, []int{1, 2}, Days(Morning))
	assert.Equal(t, []int{1, 2, 3}, Days(Evening))
	assert.Equal(t, []int{1, 2}, Days(Update))
}

func TestParseReportType(t *testing.T) {
	rt, err := ParseReportType(" Evening ")
	require.NoError(t, err)
	assert.Equal(t, Evening, rt)

	_, err = ParseReportType("dynamic")
	require.Error(t, err)
}

func TestJoinFireRisk(t *testing.T) {
	assert.Equal(t, "", JoinFireRisk(nil))
	assert.Equal(t, "balagne: sévère; niolu: très sévère",
		JoinFireRisk([]string{"balagne: sévère", " ", "niolu: très sévère"}))
	assert.Equal(t, "a; a", JoinFireRisk([]string{"a", "a"}), "warnings are joined as given")
}
