package aggregation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smukkama/gr20-alert/internal/forecast"
	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// ReportType selects the dates and the template of a report.
type ReportType string

const (
	Morning ReportType = "morning"
	Evening ReportType = "evening"
	Update  ReportType = "update"
)

// ParseReportType accepts morning, evening and update.
func ParseReportType(s string) (ReportType, error) {
	switch t := ReportType(strings.ToLower(strings.TrimSpace(s))); t {
	case Morning, Evening, Update:
		return t, nil
	default:
		return "", fmt.Errorf("unknown report type %q", s)
	}
}

// ConfigurationError marks a deployment problem (missing threshold, no stage
// for the report date) as opposed to missing weather data.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// Thresholds maps threshold keys to limits.
type Thresholds map[MetricKey]float64

// DayForecast is the fetched input of one relative day: 1 is the day the
// report is generated, 2 the next day, 3 the day after.
type DayForecast struct {
	Day      int
	Date     time.Time
	Stage    *itinerary.Stage
	Series   []forecast.Series
	FireRisk []string
}

// Forecasts holds the fetched days keyed by relative day.
type Forecasts map[int]*DayForecast

// Windows are the hour ranges used by Aggregate.
type Windows struct {
	Day   Window
	Night Window
}

// DefaultWindows returns the 4-19 day window and the 0-6 night window.
func DefaultWindows() Windows {
	return Windows{Day: DefaultWindow, Night: DefaultNightWindow}
}

type step struct {
	metric MetricKey
	day    int
	night  bool
}

var plans = map[ReportType][]step{
	Morning: {
		{metric: Thunderstorm, day: 1},
		{metric: RainProbability, day: 1},
		{metric: RainAmount, day: 1},
		{metric: DayTemp, day: 1},
		{metric: WindSpeed, day: 1},
		{metric: WindGust, day: 1},
		{metric: ThunderstormNextDay, day: 2},
	},
	Evening: {
		{metric: NightTemp, day: 1, night: true},
		{metric: Thunderstorm, day: 2},
		{metric: ThunderstormNextDay, day: 3},
		{metric: RainProbability, day: 2},
		{metric: RainAmount, day: 2},
		{metric: DayTemp, day: 2},
		{metric: WindSpeed, day: 2},
		{metric: WindGust, day: 2},
	},
}

func init() {
	plans[Update] = plans[Morning]
}

// PrimaryDay is the relative day whose stage heads the report.
func PrimaryDay(t ReportType) int {
	if t == Evening {
		return 2
	}
	return 1
}

// Days lists the relative days a report type reads, ascending.
func Days(t ReportType) []int {
	seen := map[int]bool{}
	var days []int
	for _, s := range plans[t] {
		if !seen[s.day] {
			seen[s.day] = true
			days = append(days, s.day)
		}
	}
	sort.Ints(days)
	return days
}

// ReportContext is everything the formatter and the debug exporter need.
type ReportContext struct {
	Type     ReportType
	Date     time.Time
	Stage    string
	Stages   map[int]string
	Metrics  map[MetricKey]*AggregatedMetric
	Order    []MetricKey
	FireRisk string
}

// Metric returns the aggregated metric for key, nil if the report type does
// not use it.
func (c *ReportContext) Metric(key MetricKey) *AggregatedMetric {
	if c == nil {
		return nil
	}
	return c.Metrics[key]
}

// Aggregate runs ProcessMetric for every metric of the report type against
// the stage and date of its relative day. A day missing from forecasts, or
// fetched without data, yields metrics without values. A missing threshold
// or a missing primary stage is a *ConfigurationError.
func Aggregate(reportType ReportType, forecasts Forecasts, thresholds Thresholds, windows Windows) (*ReportContext, error) {
	plan, ok := plans[reportType]
	if !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("unknown report type %q", reportType)}
	}

	primary := forecasts[PrimaryDay(reportType)]
	if primary == nil || primary.Stage == nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("no stage for day %d of %s report", PrimaryDay(reportType), reportType)}
	}

	ctx := &ReportContext{
		Type:    reportType,
		Date:    primary.Date,
		Stage:   primary.Stage.Name,
		Stages:  make(map[int]string),
		Metrics: make(map[MetricKey]*AggregatedMetric, len(plan)),
	}
	for day, f := range forecasts {
		if f != nil && f.Stage != nil {
			ctx.Stages[day] = f.Stage.Name
		}
	}

	for _, s := range plan {
		metric := metrics[s.metric]
		threshold, ok := thresholds[metric.ThresholdKey]
		if !ok {
			return nil, &ConfigurationError{Message: fmt.Sprintf("missing threshold %s", metric.ThresholdKey)}
		}

		window := windows.Day
		if s.night {
			window = windows.Night
		}

		var agg AggregatedMetric
		if f := forecasts[s.day]; f != nil {
			agg = ProcessMetric(f.Stage, f.Series, metric, threshold, f.Date, window)
		} else {
			agg = ProcessMetric(nil, nil, metric, threshold, primary.Date.AddDate(0, 0, s.day-PrimaryDay(reportType)), window)
		}
		agg.Day = s.day

		ctx.Metrics[s.metric] = &agg
		ctx.Order = append(ctx.Order, s.metric)
	}

	ctx.FireRisk = JoinFireRisk(primary.FireRisk)
	return ctx, nil
}

// JoinFireRisk joins the non-empty warnings with "; " in order.
func JoinFireRisk(warnings []string) string {
	parts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w = strings.TrimSpace(w); w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, "; ")
}
