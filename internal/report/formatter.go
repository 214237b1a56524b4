// Package report renders a ReportContext as SMS/email text and as a verbose
// debug trace.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/smukkama/gr20-alert/internal/aggregation"
	"github.com/smukkama/gr20-alert/internal/itinerary"
)

const (
	DefaultSeparator = " - "
	DefaultMaxLength = 160
)

// Message is a rendered report.
type Message struct {
	Text    string
	Subject string
}

// Formatter renders report text with one separator between all tokens.
type Formatter struct {
	Separator string
	MaxLength int
}

// NewFormatter returns a formatter, falling back to " - " and 160.
func NewFormatter(separator string, maxLength int) *Formatter {
	if separator == "" {
		separator = DefaultSeparator
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Formatter{Separator: separator, MaxLength: maxLength}
}

type tokenDef struct {
	label     string
	metric    aggregation.MetricKey
	unit      string
	threshold bool
}

var (
	tokGew      = tokenDef{label: "Gew.", metric: aggregation.Thunderstorm, unit: "%", threshold: true}
	tokGewNext  = tokenDef{label: "Gew.+1", metric: aggregation.ThunderstormNextDay, unit: "%", threshold: true}
	tokRainPct  = tokenDef{label: "Regen", metric: aggregation.RainProbability, unit: "%", threshold: true}
	tokRainMM   = tokenDef{label: "Regen", metric: aggregation.RainAmount, unit: "mm", threshold: true}
	tokHeat     = tokenDef{label: "Hitze", metric: aggregation.DayTemp, unit: "°C"}
	tokWind     = tokenDef{label: "Wind", metric: aggregation.WindSpeed, threshold: true}
	tokNight    = tokenDef{label: "Nacht", metric: aggregation.NightTemp, unit: "°C"}
	tokenOrders = map[aggregation.ReportType][]tokenDef{
		aggregation.Morning: {tokGew, tokRainPct, tokRainMM, tokHeat, tokWind, tokGewNext},
		aggregation.Evening: {tokNight, tokGew, tokGewNext, tokRainPct, tokRainMM, tokHeat, tokWind},
		aggregation.Update:  {tokGew, tokRainPct, tokRainMM, tokHeat, tokWind},
	}
	subjects = map[aggregation.ReportType]string{
		aggregation.Morning: "GR20 Morgenbericht",
		aggregation.Evening: "GR20 Abendbericht",
		aggregation.Update:  "GR20 Update",
	}
)

// Format renders ctx. The text never exceeds MaxLength runes.
func (f *Formatter) Format(ctx *aggregation.ReportContext) Message {
	tokens := []string{itinerary.ShortName(ctx.Stage)}
	if ctx.Type == aggregation.Update {
		tokens = append(tokens, "Update:")
	}
	for _, def := range tokenOrders[ctx.Type] {
		tokens = append(tokens, renderToken(def, ctx.Metric(def.metric)))
	}
	if ctx.FireRisk != "" {
		tokens = append(tokens, ctx.FireRisk)
	}

	return Message{
		Text:    Truncate(strings.Join(tokens, f.Separator), f.MaxLength),
		Subject: Subject(ctx.Type, ctx.Stage),
	}
}

// ErrorReport is sent instead of a report when generation fails.
func (f *Formatter) ErrorReport(stage string, err error) Message {
	name := itinerary.ShortName(stage)
	if name == "" {
		name = "GR20"
	}
	return Message{
		Text:    Truncate(name+f.Separator+"Fehler: "+err.Error(), f.MaxLength),
		Subject: "GR20 Fehler - " + stage,
	}
}

// Subject returns the email subject of a report.
func Subject(t aggregation.ReportType, stage string) string {
	s, ok := subjects[t]
	if !ok {
		s = "GR20"
	}
	if stage == "" {
		return s
	}
	return s + " - " + stage
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func renderToken(def tokenDef, m *aggregation.AggregatedMetric) string {
	if !m.HasData() {
		return def.label + " -"
	}
	short := fmt.Sprintf("%s%s@%d", def.label, FormatValue(*m.MaxValue, def.unit), *m.MaxTime)
	if !def.threshold || !m.Crossed() || *m.ThresholdValue == *m.MaxValue {
		return short
	}
	return fmt.Sprintf("%s%s@%d(max.%s@%d)",
		def.label, FormatValue(*m.ThresholdValue, def.unit), *m.ThresholdTime,
		FormatValue(*m.MaxValue, def.unit), *m.MaxTime)
}

// FormatValue renders a value with its unit: millimetres with one decimal,
// everything else as a rounded integer.
func FormatValue(v float64, unit string) string {
	if unit == "mm" {
		return fmt.Sprintf("%.1f%s", v, unit)
	}
	return fmt.Sprintf("%d%s", int(math.Round(v)), unit)
}

// Details lists the values that do not fit the SMS, for the email body.
func Details(ctx *aggregation.ReportContext) []string {
	var lines []string
	if g := ctx.Metric(aggregation.WindGust); g.HasData() {
		line := fmt.Sprintf("Böen max. %s km/h um %d Uhr", FormatValue(*g.MaxValue, ""), *g.MaxTime)
		if g.Crossed() {
			line += fmt.Sprintf(" (ab %d Uhr über %s km/h)", *g.ThresholdTime, FormatValue(g.Threshold, ""))
		}
		lines = append(lines, line)
	}
	if ctx.FireRisk != "" {
		lines = append(lines, "Waldbrandgefahr: "+ctx.FireRisk)
	}
	return lines
}
