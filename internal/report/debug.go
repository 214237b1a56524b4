package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/smukkama/gr20-alert/internal/aggregation"
	"github.com/smukkama/gr20-alert/internal/forecast"
	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// Divergence is one number where the debug trace and the report context
// disagree.
type Divergence struct {
	Metric aggregation.MetricKey
	Label  string
	Field  string
	Want   string
	Got    string
}

// DivergenceError lists every disagreement found by RenderDebug.
type DivergenceError struct {
	Divergences []Divergence
}

func (e *DivergenceError) Error() string {
	parts := make([]string, 0, len(e.Divergences))
	for _, d := range e.Divergences {
		parts = append(parts, fmt.Sprintf("%s %s %s: context %s, debug %s", d.Metric, d.Label, d.Field, d.Want, d.Got))
	}
	return "debug output diverges from report: " + strings.Join(parts, "; ")
}

var metricTitles = map[aggregation.MetricKey]string{
	aggregation.NightTemp:           "Nachttemperatur",
	aggregation.DayTemp:             "Hitze",
	aggregation.RainAmount:          "Regenmenge",
	aggregation.RainProbability:     "Regenwahrscheinlichkeit",
	aggregation.WindSpeed:           "Wind",
	aggregation.WindGust:            "Böen",
	aggregation.Thunderstorm:        "Gewitter",
	aggregation.ThunderstormNextDay: "Gewitter +1",
}

// RenderDebug recomputes every metric of ctx from the raw forecasts and
// renders hour tables, per-point annotations and summary tables. The text is
// always returned; a *DivergenceError reports numbers that differ from ctx.
func RenderDebug(forecasts aggregation.Forecasts, ctx *aggregation.ReportContext) (string, error) {
	var b strings.Builder
	var divergences []Divergence

	fmt.Fprintf(&b, "GR20 Debug - %s - %s - %s\n", ctx.Type, ctx.Date.Format("2006-01-02"), ctx.Stage)
	if primary := forecasts[aggregation.PrimaryDay(ctx.Type)]; primary != nil && primary.Stage != nil && len(primary.Stage.Points) > 0 {
		b.WriteString(SunLine(primary.Stage.Points[0], ctx.Date))
		b.WriteString("\n")
	}

	for _, key := range ctx.Order {
		agg := ctx.Metric(key)
		var stage *itinerary.Stage
		var series []forecast.Series
		if f := forecasts[agg.Day]; f != nil {
			stage, series = f.Stage, f.Series
		}

		recomputed := aggregation.ProcessMetric(stage, series, agg.Metric, agg.Threshold, agg.Date, agg.Window)
		recomputed.Day = agg.Day
		divergences = append(divergences, compare(agg, &recomputed)...)

		fmt.Fprintf(&b, "\n== %s T%d %s (%s, Schwelle %s) ==\n",
			metricTitles[key], agg.Day, agg.Date.Format("2006-01-02"), recomputed.Stage, debugValue(agg.Threshold, agg.Metric.Unit))
		writePointTables(&b, &recomputed, series)
		writeSummary(&b, &recomputed)
	}

	if len(divergences) > 0 {
		return b.String(), &DivergenceError{Divergences: divergences}
	}
	return b.String(), nil
}

// SunLine renders sunrise and sunset at point on date, in date's location.
func SunLine(point itinerary.GeoPoint, date time.Time) string {
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, date.Location())
	times := suncalc.GetTimes(noon, point.Lat, point.Lon)
	sunrise := times["sunrise"].Value.In(date.Location())
	sunset := times["sunset"].Value.In(date.Location())
	return fmt.Sprintf("Sonnenaufgang %s - Sonnenuntergang %s", sunrise.Format("15:04"), sunset.Format("15:04"))
}

func writePointTables(b *strings.Builder, agg *aggregation.AggregatedMetric, series []forecast.Series) {
	for i, res := range agg.Points {
		var records []forecast.HourlyRecord
		if i < len(series) {
			records = series[i].Records
		}
		values := hourValues(records, agg.Date, agg.Metric)

		fmt.Fprintf(b, "%s\n", agg.Label(i))
		for _, h := range agg.Window.Hours() {
			if len(values[h]) == 0 {
				fmt.Fprintf(b, "  %02d:00 %s\n", h, debugValue(0, agg.Metric.Unit))
			}
			for _, v := range values[h] {
				fmt.Fprintf(b, "  %02d:00 %s\n", h, debugValue(v, agg.Metric.Unit))
			}
		}
		fmt.Fprintf(b, "  (Threshold) %s\n", timeValue(res.ThresholdTime, res.ThresholdValue, agg.Metric.Unit))
		fmt.Fprintf(b, "  (Max) %s\n", timeValue(res.MaxTime, res.MaxValue, agg.Metric.Unit))
	}
}

func writeSummary(b *strings.Builder, agg *aggregation.AggregatedMetric) {
	unit := agg.Metric.Unit

	b.WriteString("GEO | Time | Threshold\n")
	for i, res := range agg.Points {
		fmt.Fprintf(b, "%s | %s\n", agg.Label(i), summaryCell(res.ThresholdTime, res.ThresholdValue, unit))
	}
	fmt.Fprintf(b, "Threshold | %s\n", summaryCell(agg.ThresholdTime, agg.ThresholdValue, unit))

	b.WriteString("GEO | Time | Max\n")
	for i, res := range agg.Points {
		fmt.Fprintf(b, "%s | %s\n", agg.Label(i), summaryCell(res.MaxTime, res.MaxValue, unit))
	}
	fmt.Fprintf(b, "MAX | %s\n", summaryCell(agg.MaxTime, agg.MaxValue, unit))
}

// hourValues lists the metric values of date per hour in time order. An
// hour repeated by a DST fall-back keeps both records; hours without a value
// are absent and render as zero.
func hourValues(records []forecast.HourlyRecord, date time.Time, metric aggregation.Metric) map[int][]float64 {
	sorted := make([]forecast.HourlyRecord, 0, len(records))
	for _, rec := range records {
		if aggregation.SameDate(rec.Timestamp, date) {
			sorted = append(sorted, rec)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	values := make(map[int][]float64)
	for _, rec := range sorted {
		if v, ok := metric.Select(rec); ok {
			h := rec.Timestamp.Hour()
			values[h] = append(values[h], v)
		}
	}
	return values
}

func debugValue(v float64, unit string) string {
	if unit == "mm" {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func timeValue(hour *int, v *float64, unit string) string {
	if hour == nil || v == nil {
		return "-"
	}
	return fmt.Sprintf("%02d:00 %s", *hour, debugValue(*v, unit))
}

func summaryCell(hour *int, v *float64, unit string) string {
	if hour == nil || v == nil {
		return "- | -"
	}
	return fmt.Sprintf("%02d:00 | %s", *hour, debugValue(*v, unit))
}

func compare(want, got *aggregation.AggregatedMetric) []Divergence {
	var out []Divergence
	key := want.Metric.Key

	check := func(label, field string, w, g string) {
		if w != g {
			out = append(out, Divergence{Metric: key, Label: label, Field: field, Want: w, Got: g})
		}
	}

	if len(want.Points) != len(got.Points) {
		check("stage", "points", strconv.Itoa(len(want.Points)), strconv.Itoa(len(got.Points)))
		return out
	}
	for i := range want.Points {
		label := want.Label(i)
		w, g := want.Points[i], got.Points[i]
		check(label, "threshold time", intString(w.ThresholdTime), intString(g.ThresholdTime))
		check(label, "threshold value", floatString(w.ThresholdValue), floatString(g.ThresholdValue))
		check(label, "max time", intString(w.MaxTime), intString(g.MaxTime))
		check(label, "max value", floatString(w.MaxValue), floatString(g.MaxValue))
	}
	check("stage", "threshold time", intString(want.ThresholdTime), intString(got.ThresholdTime))
	check("stage", "threshold value", floatString(want.ThresholdValue), floatString(got.ThresholdValue))
	check("stage", "max time", intString(want.MaxTime), intString(got.MaxTime))
	check("stage", "max value", floatString(want.MaxValue), floatString(got.MaxValue))
	return out
}

func intString(v *int) string {
	if v == nil {
		return "nil"
	}
	return strconv.Itoa(*v)
}

func floatString(v *float64) string {
	if v == nil {
		return "nil"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
