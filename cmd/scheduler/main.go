package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/smukkama/gr20-alert/internal/alarming"
	"github.com/smukkama/gr20-alert/internal/app"
	"github.com/smukkama/gr20-alert/internal/generator"
	"github.com/smukkama/gr20-alert/internal/timer"
	"github.com/smukkama/gr20-alert/pkg/config"
	"github.com/smukkama/gr20-alert/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	debugDir := flag.String("debug-dir", "", "write debug exports to this directory")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logg := logger.New("scheduler")

	fmt.Println("Starting Report Scheduler...")

	// One snapshot store for the lifetime of the daemon so dynamic checks
	// compare against earlier runs and the daily limit holds.
	snapshots, closeSnapshots, err := app.NewSnapshotStore(context.Background(), cfg, logg)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}
	defer closeSnapshots()

	// Create scheduler
	scheduler := timer.NewScheduler(1, logg)
	scheduler.Start(context.Background())
	defer scheduler.Stop()
	fmt.Println("Scheduler started")

	s := &reportScheduler{
		configPath: *configPath,
		debugDir:   *debugDir,
		snapshots:  snapshots,
		scheduler:  scheduler,
		log:        logg,
	}

	// Schedule fixed reports
	s.scheduleDaily(generator.ModeMorning, cfg.Schedule.Morning)
	s.scheduleDaily(generator.ModeEvening, cfg.Schedule.Evening)

	// Schedule dynamic checks between morning and evening
	if cfg.Schedule.DynamicInterval > 0 {
		s.scheduleDynamic(cfg.Schedule.DynamicInterval, cfg.Schedule.Morning, cfg.Schedule.Evening)
	}

	fmt.Println("\n✓ Report Scheduler is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}

type reportScheduler struct {
	configPath string
	debugDir   string
	snapshots  alarming.SnapshotStore
	scheduler  *timer.Scheduler
	log        zerolog.Logger
}

// location reloads the time zone so SMS changes apply to the next run.
func (s *reportScheduler) location() *time.Location {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return time.Local
	}
	return cfg.Location()
}

func (s *reportScheduler) scheduleDaily(mode generator.Mode, clock string) {
	next := func(now time.Time) (time.Time, error) {
		return timer.NextDailyRun(now.In(s.location()), clock)
	}
	if err := s.repeat(string(mode)+"-report", next, func(ctx context.Context) { s.run(ctx, mode) }); err != nil {
		log.Fatalf("Failed to schedule %s report: %v", mode, err)
	}
}

func (s *reportScheduler) scheduleDynamic(interval time.Duration, from, until string) {
	next := func(now time.Time) (time.Time, error) {
		return timer.NextIntervalRun(now.In(s.location()), interval, from, until)
	}
	if err := s.repeat("dynamic-check", next, func(ctx context.Context) { s.run(ctx, generator.ModeDynamic) }); err != nil {
		log.Fatalf("Failed to schedule dynamic checks: %v", err)
	}
}

// repeat schedules job at every time next yields. The following occurrence
// is scheduled before job runs, so a failing or panicking run cannot end
// the series.
func (s *reportScheduler) repeat(taskID string, next func(now time.Time) (time.Time, error), job func(ctx context.Context)) error {
	var scheduleNext func() error
	scheduleNext = func() error {
		nextRun, err := next(time.Now())
		if err != nil {
			return fmt.Errorf("failed to calculate next run of %s: %w", taskID, err)
		}
		fmt.Printf("Next %s scheduled for: %s\n", taskID, nextRun.Format("2006-01-02 15:04:05 MST"))

		return s.scheduler.Schedule(taskID, nextRun, func(ctx context.Context) {
			if err := scheduleNext(); err != nil {
				s.log.Error().Err(err).Str("task", taskID).Msg("failed to reschedule")
			}
			job(ctx)
		})
	}
	return scheduleNext()
}

func (s *reportScheduler) run(ctx context.Context, mode generator.Mode) {
	fmt.Printf("\n--- Running %s report ---\n", mode)
	defer fmt.Printf("--- %s report complete ---\n", mode)

	cfg, err := config.Load(s.configPath)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to reload configuration")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	g, err := app.NewGenerator(ctx, cfg, app.BuildOptions{DebugDir: s.debugDir, Snapshots: s.snapshots}, s.log)
	if err != nil {
		s.log.Error().Err(err).Str("mode", string(mode)).Msg("failed to set up report run")
		return
	}
	defer g.Close()

	res, err := g.Run(ctx, mode)
	switch {
	case errors.Is(err, generator.ErrOutsideItinerary):
		s.log.Info().Str("mode", string(mode)).Msg("no stage today")
	case err != nil:
		s.log.Error().Err(err).Str("mode", string(mode)).Msg("report run failed")
	default:
		s.log.Info().Str("mode", string(mode)).Str("status", res.Status).Str("text", res.Message.Text).Msg("report run finished")
	}
}
