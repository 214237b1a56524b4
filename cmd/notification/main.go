package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/gr20-alert/internal/app"
	"github.com/smukkama/gr20-alert/internal/notification"
	"github.com/smukkama/gr20-alert/internal/queue"
	"github.com/smukkama/gr20-alert/pkg/config"
	"github.com/smukkama/gr20-alert/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatalf("kafka.brokers is not configured")
	}
	logg := logger.New("notification")

	fmt.Println("Starting Notification Service...")

	dispatcher := app.NewDispatcher(cfg, logg)

	// Test SMTP connection (optional, reports still go out by SMS)
	if cfg.HasChannel(notification.ChannelEmail) {
		if err := notification.NewEmailNotifier(cfg.SMTP, cfg.Secrets.SMTPPassword, logg).TestConnection(); err != nil {
			fmt.Printf("Note: %v\n", err)
		}
	}

	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.Topic, 1, 1); err != nil {
		fmt.Printf("Note: %v (assuming the topic exists)\n", err)
	}

	// Create consumer for rendered reports
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	worker := queue.NewReportWorker(consumer, dispatcher.Dispatch, logg)
	worker.Start(context.Background())

	fmt.Println("\n✓ Notification Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	worker.Stop()
	stats := consumer.Stats()
	fmt.Printf("Consumed %d messages (%d errors)\n", stats.Messages, stats.Errors)
}
