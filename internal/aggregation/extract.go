package aggregation

import (
	"sort"
	"time"

	"github.com/smukkama/gr20-alert/internal/forecast"
)

// ExtractionResult is the outcome for one point and one metric. MaxValue nil
// means the window held no value; for min-tracking metrics the Max fields
// hold the minimum.
type ExtractionResult struct {
	ThresholdTime  *int
	ThresholdValue *float64
	MaxTime        *int
	MaxValue       *float64
}

// HasData reports whether any record in the window carried a value.
func (r ExtractionResult) HasData() bool {
	return r.MaxValue != nil
}

// Crossed reports whether the threshold was met.
func (r ExtractionResult) Crossed() bool {
	return r.ThresholdTime != nil
}

// SameDate compares calendar dates, each in its own location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Extract scans records of date within window in ascending time order. The
// first record meeting threshold fixes the threshold time; the running
// extreme keeps the earliest hour on ties.
func Extract(records []forecast.HourlyRecord, date time.Time, metric Metric, threshold float64, window Window) ExtractionResult {
	var res ExtractionResult

	for _, rec := range inWindow(records, date, window) {
		v, ok := metric.Select(rec)
		if !ok {
			continue
		}
		hour := rec.Timestamp.Hour()

		if res.ThresholdTime == nil && metric.Crosses(v, threshold) {
			res.ThresholdTime = intPtr(hour)
			res.ThresholdValue = floatPtr(v)
		}
		if res.MaxValue == nil || metric.Beats(v, *res.MaxValue) {
			res.MaxTime = intPtr(hour)
			res.MaxValue = floatPtr(v)
		}
	}
	return res
}

// inWindow filters by calendar date and hour and returns the records sorted
// by timestamp. The input is not modified.
func inWindow(records []forecast.HourlyRecord, date time.Time, window Window) []forecast.HourlyRecord {
	out := make([]forecast.HourlyRecord, 0, len(records))
	for _, rec := range records {
		if SameDate(rec.Timestamp, date) && window.Contains(rec.Timestamp.Hour()) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out
}

func sortRecords(records []forecast.HourlyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
