package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/gr20-alert/internal/app"
	"github.com/smukkama/gr20-alert/internal/generator"
	"github.com/smukkama/gr20-alert/internal/server"
	"github.com/smukkama/gr20-alert/pkg/config"
	"github.com/smukkama/gr20-alert/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logg := logger.New("webhook")

	fmt.Println("Starting SMS Webhook Server...")

	db, err := app.OpenDatabase(cfg, logg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if db != nil {
		defer db.Close()
		fmt.Println("Connected to database")
	}

	webhookCfg := server.WebhookConfig{
		Port:           cfg.Webhook.Port,
		Token:          cfg.Secrets.WebhookToken,
		AllowedSenders: cfg.Webhook.AllowedSenders,
		ConfigPath:     *configPath,
		CommandTimeout: cfg.Webhook.CommandTimeout,
		SetValue:       config.SetValue,
		Run:            runner(*configPath),
		Logger:         logg,
	}
	if db != nil {
		webhookCfg.Commands = db
	}
	if sender := app.NewSMSSender(cfg); sender != nil {
		webhookCfg.Ack = sender
	}

	srv := server.NewWebhookServer(webhookCfg)
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start webhook server: %v", err)
	}

	fmt.Println("\n✓ Webhook Server is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// runner reloads the config for every run so SMS config changes apply.
func runner(configPath string) server.RunFunc {
	return func(ctx context.Context, mode generator.Mode) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		g, err := app.NewGenerator(ctx, cfg, app.BuildOptions{}, logger.New("reporter"))
		if err != nil {
			return err
		}
		defer g.Close()

		_, err = g.Run(ctx, mode)
		return err
	}
}
