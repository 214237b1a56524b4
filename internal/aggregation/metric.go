// Package aggregation extracts threshold crossings and extremes from hourly
// forecasts and combines them per stage and report type.
package aggregation

import (
	"github.com/smukkama/gr20-alert/internal/forecast"
)

// MetricKey names one aggregated metric.
type MetricKey string

const (
	NightTemp           MetricKey = "night_temp"
	DayTemp             MetricKey = "day_temp"
	RainAmount          MetricKey = "rain_amount"
	RainProbability     MetricKey = "rain_probability"
	WindSpeed           MetricKey = "wind_speed"
	WindGust            MetricKey = "wind_gust"
	Thunderstorm        MetricKey = "thunderstorm"
	ThunderstormNextDay MetricKey = "thunderstorm_next_day"
)

// Direction selects whether a metric tracks the maximum or the minimum.
type Direction int

const (
	Max Direction = iota
	Min
)

// Metric describes how to read and compare one value of an HourlyRecord.
type Metric struct {
	Key       MetricKey
	Direction Direction
	// ThresholdKey is the Thresholds entry the metric is compared against.
	ThresholdKey MetricKey
	Unit         string
	Select       func(forecast.HourlyRecord) (float64, bool)
}

// Crosses reports whether v meets the threshold in the metric's direction.
func (m Metric) Crosses(v, threshold float64) bool {
	if m.Direction == Min {
		return v <= threshold
	}
	return v >= threshold
}

// Beats reports whether v is a strictly better extreme than current.
func (m Metric) Beats(v, current float64) bool {
	if m.Direction == Min {
		return v < current
	}
	return v > current
}

func amount(get func(forecast.HourlyRecord) float64) func(forecast.HourlyRecord) (float64, bool) {
	return func(r forecast.HourlyRecord) (float64, bool) {
		return get(r), true
	}
}

func nullable(get func(forecast.HourlyRecord) *float64) func(forecast.HourlyRecord) (float64, bool) {
	return func(r forecast.HourlyRecord) (float64, bool) {
		v := get(r)
		if v == nil {
			return 0, false
		}
		return *v, true
	}
}

var metrics = map[MetricKey]Metric{
	NightTemp: {
		Key: NightTemp, Direction: Min, ThresholdKey: NightTemp, Unit: "°C",
		Select: nullable(func(r forecast.HourlyRecord) *float64 { return r.Temperature }),
	},
	DayTemp: {
		Key: DayTemp, Direction: Max, ThresholdKey: DayTemp, Unit: "°C",
		Select: nullable(func(r forecast.HourlyRecord) *float64 { return r.Temperature }),
	},
	RainAmount: {
		Key: RainAmount, Direction: Max, ThresholdKey: RainAmount, Unit: "mm",
		Select: amount(func(r forecast.HourlyRecord) float64 { return r.RainAmount }),
	},
	RainProbability: {
		Key: RainProbability, Direction: Max, ThresholdKey: RainProbability, Unit: "%",
		Select: nullable(func(r forecast.HourlyRecord) *float64 { return r.RainProbability }),
	},
	WindSpeed: {
		Key: WindSpeed, Direction: Max, ThresholdKey: WindSpeed, Unit: "km/h",
		Select: amount(func(r forecast.HourlyRecord) float64 { return r.WindSpeed }),
	},
	WindGust: {
		Key: WindGust, Direction: Max, ThresholdKey: WindGust, Unit: "km/h",
		Select: amount(func(r forecast.HourlyRecord) float64 { return r.WindGusts }),
	},
	Thunderstorm: {
		Key: Thunderstorm, Direction: Max, ThresholdKey: Thunderstorm, Unit: "%",
		Select: nullable(func(r forecast.HourlyRecord) *float64 { return r.ThunderstormProbability }),
	},
	ThunderstormNextDay: {
		Key: ThunderstormNextDay, Direction: Max, ThresholdKey: Thunderstorm, Unit: "%",
		Select: nullable(func(r forecast.HourlyRecord) *float64 { return r.ThunderstormProbability }),
	},
}

// MetricFor returns the definition of key.
func MetricFor(key MetricKey) (Metric, bool) {
	m, ok := metrics[key]
	return m, ok
}

// Window is an inclusive hour-of-day range.
type Window struct {
	Start int
	End   int
}

// DefaultWindow is the daytime window used for every metric except the
// night temperature.
var DefaultWindow = Window{Start: 4, End: 19}

// DefaultNightWindow covers the pre-dawn hours.
var DefaultNightWindow = Window{Start: 0, End: 6}

func (w Window) Contains(hour int) bool {
	return hour >= w.Start && hour <= w.End
}

// Hours lists every hour of the window in order.
func (w Window) Hours() []int {
	hours := make([]int, 0, w.End-w.Start+1)
	for h := w.Start; h <= w.End; h++ {
		hours = append(hours, h)
	}
	return hours
}
