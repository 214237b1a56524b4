package aggregation

import (
	"time"

	"github.com/smukkama/gr20-alert/internal/forecast"
	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// AggregatedMetric combines the per-point results of one metric on one
// stage and date. Points is index-aligned with the stage's points. The
// stage-level fields are nil when no point had data; ThresholdPoint and
// MaxPoint are -1 in that case.
type AggregatedMetric struct {
	Metric    Metric
	Day       int
	Date      time.Time
	Stage     string
	Threshold float64
	Window    Window
	Points    []ExtractionResult

	ThresholdTime  *int
	ThresholdValue *float64
	ThresholdPoint int
	MaxTime        *int
	MaxValue       *float64
	MaxPoint       int
}

// HasData reports whether any point contributed a value.
func (a *AggregatedMetric) HasData() bool {
	return a != nil && a.MaxValue != nil
}

// Crossed reports whether any point met the threshold.
func (a *AggregatedMetric) Crossed() bool {
	return a != nil && a.ThresholdTime != nil
}

// Label returns the T{day}G{index} label of point i.
func (a *AggregatedMetric) Label(i int) string {
	return itinerary.Label(a.Day, i)
}

// ProcessMetric runs Extract for every point of stage. series is matched to
// stage.Points by index; a missing entry counts as a point without data.
// The stage threshold is the earliest crossing (first point wins ties), the
// stage extreme the best value (earliest hour, then first point, wins ties).
func ProcessMetric(stage *itinerary.Stage, series []forecast.Series, metric Metric, threshold float64, date time.Time, window Window) AggregatedMetric {
	agg := AggregatedMetric{
		Metric:         metric,
		Day:            1,
		Date:           date,
		Threshold:      threshold,
		Window:         window,
		ThresholdPoint: -1,
		MaxPoint:       -1,
	}
	if stage == nil {
		return agg
	}
	agg.Stage = stage.Name
	agg.Points = make([]ExtractionResult, len(stage.Points))

	for i := range stage.Points {
		var records []forecast.HourlyRecord
		if i < len(series) {
			records = series[i].Records
		}
		res := Extract(records, date, metric, threshold, window)
		agg.Points[i] = res

		if res.ThresholdTime != nil && (agg.ThresholdTime == nil || *res.ThresholdTime < *agg.ThresholdTime) {
			agg.ThresholdTime = res.ThresholdTime
			agg.ThresholdValue = res.ThresholdValue
			agg.ThresholdPoint = i
		}
		if res.MaxValue != nil && betterExtreme(metric, res, agg) {
			agg.MaxTime = res.MaxTime
			agg.MaxValue = res.MaxValue
			agg.MaxPoint = i
		}
	}
	return agg
}

func betterExtreme(metric Metric, res ExtractionResult, agg AggregatedMetric) bool {
	if agg.MaxValue == nil {
		return true
	}
	if metric.Beats(*res.MaxValue, *agg.MaxValue) {
		return true
	}
	return *res.MaxValue == *agg.MaxValue && *res.MaxTime < *agg.MaxTime
}
