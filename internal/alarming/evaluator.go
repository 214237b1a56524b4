// Package alarming decides whether a dynamic update is worth sending by
// comparing a fresh report with the last one sent for the same day.
package alarming

import (
	"context"
	"fmt"
	"time"

	"github.com/smukkama/gr20-alert/internal/aggregation"
)

// ChangeKind classifies a significant change.
type ChangeKind string

const (
	ChangeNewCrossing ChangeKind = "new_crossing"
	ChangeEarlier     ChangeKind = "earlier"
	ChangeIncrease    ChangeKind = "increase"
)

// Change is one metric that moved enough to justify an update.
type Change struct {
	Metric aggregation.MetricKey
	Kind   ChangeKind
	Detail string
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Send    bool
	Reason  string
	Changes []Change
}

// Rules configures what counts as significant.
type Rules struct {
	MinShiftHours int
	MaxPerDay     int
	Deltas        map[aggregation.MetricKey]float64
}

// DeltasFromConfig maps the configuration keys of dynamic.deltas onto
// metrics. Unknown keys are ignored.
func DeltasFromConfig(cfg map[string]float64) map[aggregation.MetricKey]float64 {
	targets := map[string][]aggregation.MetricKey{
		"rain_amount":              {aggregation.RainAmount},
		"rain_probability":         {aggregation.RainProbability},
		"wind_speed":               {aggregation.WindSpeed},
		"wind_gust":                {aggregation.WindGust},
		"thunderstorm_probability": {aggregation.Thunderstorm, aggregation.ThunderstormNextDay},
		"temperature":              {aggregation.DayTemp, aggregation.NightTemp},
	}
	out := make(map[aggregation.MetricKey]float64)
	for name, delta := range cfg {
		for _, key := range targets[name] {
			out[key] = delta
		}
	}
	return out
}

// Evaluator compares reports against stored snapshots
type Evaluator struct {
	store SnapshotStore
	rules Rules
	now   func() time.Time
}

// NewEvaluator creates a new evaluator
func NewEvaluator(store SnapshotStore, rules Rules) *Evaluator {
	return &Evaluator{store: store, rules: rules, now: time.Now}
}

// Evaluate decides whether rc should be sent as a dynamic update.
func (e *Evaluator) Evaluate(ctx context.Context, rc *aggregation.ReportContext) (*Decision, error) {
	date := rc.Date.Format(dateLayout)

	sent, err := e.store.UpdatesSent(ctx, date)
	if err != nil {
		return nil, err
	}
	if e.rules.MaxPerDay > 0 && sent >= e.rules.MaxPerDay {
		return &Decision{Reason: fmt.Sprintf("daily update limit reached (%d)", e.rules.MaxPerDay)}, nil
	}

	prev, err := e.store.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return &Decision{Send: true, Reason: "no report sent for " + date}, nil
	}
	if prev.Stage != rc.Stage {
		return &Decision{Send: true, Reason: fmt.Sprintf("stage changed from %s to %s", prev.Stage, rc.Stage)}, nil
	}

	var changes []Change
	for _, key := range rc.Order {
		cur := rc.Metric(key)
		old, ok := prev.Metrics[key]
		if !ok {
			continue
		}
		if c, ok := e.evaluateChange(cur, old); ok {
			changes = append(changes, c)
		}
	}

	if len(changes) == 0 {
		return &Decision{Reason: "no significant change"}, nil
	}
	return &Decision{Send: true, Reason: fmt.Sprintf("%d significant change(s)", len(changes)), Changes: changes}, nil
}

// Record stores rc as the last sent report and, for dynamic updates, counts
// it against the daily limit.
func (e *Evaluator) Record(ctx context.Context, rc *aggregation.ReportContext, reportID string) error {
	snap := SnapshotOf(rc, reportID, e.now())
	if err := e.store.Save(ctx, snap); err != nil {
		return err
	}
	if rc.Type == aggregation.Update {
		if _, err := e.store.IncrementUpdates(ctx, snap.Date); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) evaluateChange(cur *aggregation.AggregatedMetric, old MetricState) (Change, bool) {
	key := cur.Metric.Key

	if old.ThresholdTime == nil && cur.ThresholdTime != nil {
		return Change{Metric: key, Kind: ChangeNewCrossing,
			Detail: fmt.Sprintf("threshold crossed at %d", *cur.ThresholdTime)}, true
	}
	if old.ThresholdTime != nil && cur.ThresholdTime != nil {
		shift := *old.ThresholdTime - *cur.ThresholdTime
		if e.rules.MinShiftHours > 0 && shift >= e.rules.MinShiftHours {
			return Change{Metric: key, Kind: ChangeEarlier,
				Detail: fmt.Sprintf("crossing moved from %d to %d", *old.ThresholdTime, *cur.ThresholdTime)}, true
		}
	}

	delta, ok := e.rules.Deltas[key]
	if !ok || old.MaxValue == nil || cur.MaxValue == nil {
		return Change{}, false
	}
	if evaluateCondition(*cur.MaxValue-*old.MaxValue, cur.Metric.Direction, delta) {
		return Change{Metric: key, Kind: ChangeIncrease,
			Detail: fmt.Sprintf("extreme moved from %.1f to %.1f", *old.MaxValue, *cur.MaxValue)}, true
	}
	return Change{}, false
}

// evaluateCondition reports whether diff moves beyond delta in the metric's
// direction: upwards for maxima, downwards for minima.
func evaluateCondition(diff float64, direction aggregation.Direction, delta float64) bool {
	switch direction {
	case aggregation.Max:
		return diff > delta
	case aggregation.Min:
		return -diff > delta
	default:
		return false
	}
}
