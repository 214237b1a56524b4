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

	"github.com/smukkama/gr20-alert/internal/app"
	"github.com/smukkama/gr20-alert/internal/generator"
	"github.com/smukkama/gr20-alert/pkg/config"
	"github.com/smukkama/gr20-alert/pkg/logger"
)

func main() {
	modus := flag.String("modus", "", "report mode: morning, evening or dynamic")
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	cleanup := flag.Bool("cleanup", false, "delete report log rows and debug files older than the retention")
	dryRun := flag.Bool("dry-run", false, "generate and log the report without sending it")
	debugDir := flag.String("debug-dir", "", "write the debug export to this directory")
	recordDir := flag.String("record-dir", "", "store the raw forecasts of this run in this directory")
	replayDir := flag.String("replay-dir", "", "read forecasts from a record directory instead of the APIs")
	show := flag.String("show", "", "print a logged report and its debug export by ID")
	flag.Parse()

	if *show != "" {
		if err := showReport(*configPath, *show); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	build := app.BuildOptions{DryRun: *dryRun, DebugDir: *debugDir, RecordDir: *recordDir, ReplayDir: *replayDir}
	if err := run(*modus, *configPath, *cleanup, build); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(modus, configPath string, cleanup bool, build app.BuildOptions) error {
	if modus == "" && !cleanup {
		return fmt.Errorf("--modus or --cleanup is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logg := logger.New("reporter")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := app.NewGenerator(ctx, cfg, build, logg)
	if err != nil {
		return err
	}
	defer g.Close()

	if cleanup {
		if err := g.Cleanup(ctx, cfg.Database.Retention); err != nil {
			return err
		}
		if modus == "" {
			return nil
		}
	}

	mode, err := generator.ParseMode(modus)
	if err != nil {
		return err
	}

	res, err := g.Run(ctx, mode)
	if errors.Is(err, generator.ErrOutsideItinerary) {
		log.Printf("No stage planned for today, nothing sent")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("[%s] %s\n", res.Status, res.Message.Text)
	if res.Reason != "" {
		fmt.Printf("Reason: %s\n", res.Reason)
	}
	if res.Failed != nil {
		return fmt.Errorf("report generation failed, error report sent: %w", res.Failed)
	}
	return nil
}

func showReport(configPath, id string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := app.OpenDatabase(cfg, logger.New("reporter"))
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("no database configured")
	}
	defer db.Close()

	r, err := db.GetReport(context.Background(), id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("report %s not found", id)
	}

	fmt.Printf("%s [%s] %s\n%s\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Status, r.Subject, r.Text)
	if r.Error != nil {
		fmt.Printf("Error: %s\n", *r.Error)
	}
	fmt.Printf("\n%s\n", r.Debug)
	return nil
}
