// Package generator runs one report end to end: it resolves the stages of
// the relevant days, fetches their forecasts, aggregates, renders and
// delivers the result, and keeps the report log.
package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smukkama/gr20-alert/internal/aggregation"
	"github.com/smukkama/gr20-alert/internal/alarming"
	"github.com/smukkama/gr20-alert/internal/database"
	"github.com/smukkama/gr20-alert/internal/forecast"
	"github.com/smukkama/gr20-alert/internal/itinerary"
	"github.com/smukkama/gr20-alert/internal/protocol"
	"github.com/smukkama/gr20-alert/internal/report"
	"github.com/smukkama/gr20-alert/pkg/config"
)

// Mode is the --modus value of a run.
type Mode string

const (
	ModeMorning Mode = "morning"
	ModeEvening Mode = "evening"
	ModeDynamic Mode = "dynamic"
)

// ParseMode validates a --modus value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMorning, ModeEvening, ModeDynamic:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want morning, evening or dynamic)", s)
}

// ReportType maps a mode onto the report it produces.
func (m Mode) ReportType() aggregation.ReportType {
	switch m {
	case ModeEvening:
		return aggregation.Evening
	case ModeDynamic:
		return aggregation.Update
	default:
		return aggregation.Morning
	}
}

// ErrOutsideItinerary is returned by Run when no stage is planned for the
// report's primary day.
var ErrOutsideItinerary = errors.New("no stage planned for the report date")

// FireRiskSource supplies fire warnings for a stage.
type FireRiskSource interface {
	Warnings(ctx context.Context, stage *itinerary.Stage, date time.Time) ([]string, error)
}

// ReportStore persists the report log.
type ReportStore interface {
	InsertReport(ctx context.Context, r *database.ReportLog) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher hands a report to the notification service.
type Publisher interface {
	PublishReport(ctx context.Context, msg *protocol.ReportMessage) error
}

// Dispatcher delivers a report directly.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *protocol.ReportMessage) error
}

// Options are the collaborators of a Generator. Provider and Itinerary are
// required, everything else is optional.
type Options struct {
	Itinerary  *itinerary.Itinerary
	Provider   forecast.Provider
	FireRisk   FireRiskSource
	Evaluator  *alarming.Evaluator
	Store      ReportStore
	Publisher  Publisher
	Dispatcher Dispatcher
	DryRun     bool
	DebugDir   string
	Logger     zerolog.Logger
}

// Result describes what a run did.
type Result struct {
	ID       string
	Type     aggregation.ReportType
	Date     time.Time
	Stage    string
	Message  report.Message
	Details  []string
	Debug    string
	Status   string
	Reason   string
	Failed   error
	Decision *alarming.Decision
}

// Generator produces and delivers reports.
type Generator struct {
	cfg  *config.Config
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

// New creates a new Generator
func New(cfg *config.Config, opts Options) *Generator {
	return &Generator{
		cfg:  cfg,
		opts: opts,
		log:  opts.Logger.With().Str("component", "generator").Logger(),
		now:  time.Now,
	}
}

// Thresholds builds the aggregation thresholds from the configuration.
func Thresholds(t config.ThresholdsConfig) aggregation.Thresholds {
	out := aggregation.Thresholds{}
	set := func(key aggregation.MetricKey, v *float64) {
		if v != nil {
			out[key] = *v
		}
	}
	set(aggregation.RainAmount, t.RainAmount)
	set(aggregation.RainProbability, t.RainProbability)
	set(aggregation.WindSpeed, t.WindSpeed)
	set(aggregation.WindGust, t.WindGust)
	set(aggregation.Thunderstorm, t.ThunderstormProbability)
	set(aggregation.DayTemp, t.Temperature)
	set(aggregation.NightTemp, t.NightTemperature)
	return out
}

// Windows builds the aggregation windows from the configuration.
func Windows(r config.ReportConfig) aggregation.Windows {
	return aggregation.Windows{
		Day:   aggregation.Window{Start: r.Window.Start, End: r.Window.End},
		Night: aggregation.Window{Start: r.NightWindow.Start, End: r.NightWindow.End},
	}
}

// Run generates the report of mode for the current day. A failure inside
// aggregation is turned into an error report; the returned error is set
// only when nothing could be delivered.
func (g *Generator) Run(ctx context.Context, mode Mode) (*Result, error) {
	loc := g.cfg.Location()
	now := g.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	reportType := mode.ReportType()

	res := &Result{ID: uuid.NewString(), Type: reportType, Date: today}

	forecasts, err := g.fetch(ctx, reportType, today)
	if err != nil {
		return nil, err
	}
	primary := forecasts[aggregation.PrimaryDay(reportType)]
	if primary == nil {
		g.log.Info().Str("type", string(reportType)).Str("date", today.Format("2006-01-02")).Msg("outside itinerary, nothing to report")
		return nil, ErrOutsideItinerary
	}
	res.Date = primary.Date
	res.Stage = primary.Stage.Name

	formatter := report.NewFormatter(g.cfg.Report.Separator, g.cfg.Report.MaxLength)
	kind := protocol.KindReport

	rc, err := aggregation.Aggregate(reportType, forecasts, Thresholds(g.cfg.Thresholds), Windows(g.cfg.Report))
	if err != nil {
		g.log.Error().Err(err).Str("type", string(reportType)).Msg("aggregation failed, sending error report")
		res.Failed = err
		res.Message = formatter.ErrorReport(res.Stage, err)
		kind = protocol.KindError
	} else {
		res.Message = formatter.Format(rc)
		res.Details = report.Details(rc)
		res.Details = append(res.Details, report.SunLine(primary.Stage.Points[0], primary.Date))

		debug, derr := report.RenderDebug(forecasts, rc)
		res.Debug = debug
		var div *report.DivergenceError
		if errors.As(derr, &div) {
			g.log.Error().Err(derr).Msg("debug export disagrees with report")
		}
	}

	if rc != nil && reportType == aggregation.Update && g.opts.Evaluator != nil {
		decision, err := g.opts.Evaluator.Evaluate(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate update: %w", err)
		}
		res.Decision = decision
		res.Reason = decision.Reason
		if !decision.Send {
			g.log.Info().Str("reason", decision.Reason).Msg("no update sent")
			res.Status = database.ReportStatusSkipped
			g.finish(ctx, res)
			return res, nil
		}
		for _, c := range decision.Changes {
			g.log.Info().Str("metric", string(c.Metric)).Str("kind", string(c.Kind)).Msg(c.Detail)
		}
	}

	msg := protocol.NewReportMessage(kind, res.Message.Subject, res.Message.Text)
	msg.ID = res.ID
	msg.ReportType = string(reportType)
	msg.Stage = res.Stage
	msg.Details = res.Details
	msg.Channels = g.cfg.Delivery.Channels

	deliverErr := g.deliver(ctx, msg, res)
	if deliverErr == nil && rc != nil && g.opts.Evaluator != nil && !g.opts.DryRun {
		if err := g.opts.Evaluator.Record(ctx, rc, res.ID); err != nil {
			g.log.Warn().Err(err).Msg("failed to store report snapshot")
		}
	}

	g.finish(ctx, res)
	if deliverErr != nil {
		return res, deliverErr
	}
	return res, nil
}

// fetch loads the forecasts of every relative day the report type reads.
// Days outside the itinerary are left out; aggregation renders them as no
// data.
func (g *Generator) fetch(ctx context.Context, reportType aggregation.ReportType, today time.Time) (aggregation.Forecasts, error) {
	start := g.cfg.Start()
	provider := forecast.NewCache(g.opts.Provider)
	forecasts := aggregation.Forecasts{}

	for _, day := range aggregation.Days(reportType) {
		date := today.AddDate(0, 0, day-1)
		stage, ok := g.opts.Itinerary.StageFor(start, date)
		if !ok {
			continue
		}

		series, err := forecast.FetchStage(ctx, provider, stage, g.cfg.Provider.Concurrency, g.log)
		if err != nil {
			return nil, err
		}

		df := &aggregation.DayForecast{Day: day, Date: date, Stage: stage, Series: series}
		if day == aggregation.PrimaryDay(reportType) && g.opts.FireRisk != nil {
			warnings, err := g.opts.FireRisk.Warnings(ctx, stage, date)
			if err != nil {
				g.log.Warn().Err(err).Str("stage", stage.Name).Msg("fire risk unavailable")
			}
			df.FireRisk = warnings
		}
		forecasts[day] = df
	}
	return forecasts, nil
}

func (g *Generator) deliver(ctx context.Context, msg *protocol.ReportMessage, res *Result) error {
	switch {
	case g.opts.DryRun:
		res.Status = database.ReportStatusDryRun
		return nil
	case g.opts.Publisher != nil:
		if err := g.opts.Publisher.PublishReport(ctx, msg); err != nil {
			res.Status = database.ReportStatusFailed
			return fmt.Errorf("failed to publish report: %w", err)
		}
		res.Status = database.ReportStatusQueued
		return nil
	case g.opts.Dispatcher != nil:
		if err := g.opts.Dispatcher.Dispatch(ctx, msg); err != nil {
			res.Status = database.ReportStatusFailed
			return fmt.Errorf("failed to deliver report: %w", err)
		}
		res.Status = database.ReportStatusSent
		return nil
	default:
		res.Status = database.ReportStatusFailed
		return fmt.Errorf("no delivery configured")
	}
}

// finish writes the debug file and the report log entry. Failures are
// logged, they never undo a delivery.
func (g *Generator) finish(ctx context.Context, res *Result) {
	if g.opts.DebugDir != "" && res.Debug != "" {
		path, err := WriteDebugFile(g.opts.DebugDir, res)
		if err != nil {
			g.log.Warn().Err(err).Msg("failed to write debug file")
		} else {
			g.log.Debug().Str("path", path).Msg("debug file written")
		}
	}

	if g.opts.Store == nil {
		return
	}
	entry := &database.ReportLog{
		ID:         res.ID,
		ReportType: string(res.Type),
		ReportDate: res.Date,
		Stage:      res.Stage,
		Subject:    res.Message.Subject,
		Text:       res.Message.Text,
		Status:     res.Status,
		Debug:      res.Debug,
		Channels:   g.cfg.Delivery.Channels,
	}
	if res.Failed != nil {
		msg := res.Failed.Error()
		entry.Error = &msg
	}
	if err := g.opts.Store.InsertReport(ctx, entry); err != nil {
		g.log.Warn().Err(err).Str("id", res.ID).Msg("failed to log report")
	}
}

// DebugFileName is "{date}_{type}.txt".
func DebugFileName(date time.Time, t aggregation.ReportType) string {
	return fmt.Sprintf("%s_%s.txt", date.Format("2006-01-02"), t)
}

// WriteDebugFile stores the debug export of res in dir.
func WriteDebugFile(dir string, res *Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create debug dir: %w", err)
	}
	path := filepath.Join(dir, DebugFileName(res.Date, res.Type))
	if err := os.WriteFile(path, []byte(res.Debug), 0o644); err != nil {
		return "", fmt.Errorf("failed to write debug file: %w", err)
	}
	return path, nil
}

// Cleanup removes report log rows and debug files older than retention.
func (g *Generator) Cleanup(ctx context.Context, retention time.Duration) error {
	cutoff := g.now().Add(-retention)
	var errs []error

	if g.opts.Store != nil {
		n, err := g.opts.Store.DeleteBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to clean report log: %w", err))
		} else {
			g.log.Info().Int64("rows", n).Msg("report log cleaned")
		}
	}

	if g.opts.DebugDir != "" {
		n, err := cleanDebugDir(g.opts.DebugDir, cutoff)
		if err != nil {
			errs = append(errs, err)
		} else {
			g.log.Info().Int("files", n).Msg("debug files cleaned")
		}
	}
	return errors.Join(errs...)
}

func cleanDebugDir(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read debug dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}
