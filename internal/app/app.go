// Package app builds the collaborators shared by the commands from a loaded
// configuration.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/smukkama/gr20-alert/internal/alarming"
	"github.com/smukkama/gr20-alert/internal/database"
	"github.com/smukkama/gr20-alert/internal/firerisk"
	"github.com/smukkama/gr20-alert/internal/forecast"
	"github.com/smukkama/gr20-alert/internal/generator"
	"github.com/smukkama/gr20-alert/internal/itinerary"
	"github.com/smukkama/gr20-alert/internal/notification"
	"github.com/smukkama/gr20-alert/internal/queue"
	"github.com/smukkama/gr20-alert/pkg/config"
)

// NewProvider returns the configured primary provider with the other one as
// fallback.
func NewProvider(ctx context.Context, cfg *config.Config) forecast.Provider {
	mf := forecast.NewMeteoFrance(ctx, forecast.MeteoFranceConfig{
		BaseURL:      cfg.Provider.MeteoFrance.BaseURL,
		TokenURL:     cfg.Provider.MeteoFrance.TokenURL,
		ClientID:     cfg.Secrets.MeteoFranceClientID,
		ClientSecret: cfg.Secrets.MeteoFranceClientSecret,
		Timeout:      cfg.Provider.Timeout,
		Location:     cfg.Location(),
	})
	metno := forecast.NewMetNo(forecast.MetNoConfig{
		BaseURL:   cfg.Provider.MetNo.BaseURL,
		UserAgent: cfg.Provider.MetNo.UserAgent,
		Timeout:   cfg.Provider.Timeout,
		Location:  cfg.Location(),
	})
	if cfg.Provider.Primary == "metno" {
		return forecast.NewFallback(metno, mf)
	}
	return forecast.NewFallback(mf, metno)
}

// NewSMSSender returns the configured SMS gateway, nil when SMS is not set up.
func NewSMSSender(cfg *config.Config) notification.SMSSender {
	switch cfg.SMS.Provider {
	case "twilio":
		if cfg.Secrets.TwilioAccountSID == "" {
			return nil
		}
		return notification.NewTwilioSender(cfg.SMS.BaseURL, cfg.Secrets.TwilioAccountSID, cfg.Secrets.TwilioAuthToken, cfg.SMS.From)
	default:
		if cfg.Secrets.SevenAPIKey == "" {
			return nil
		}
		return notification.NewSevenSender(cfg.SMS.BaseURL, cfg.Secrets.SevenAPIKey, cfg.SMS.From)
	}
}

// NewDispatcher registers email and SMS for the configured channels.
func NewDispatcher(cfg *config.Config, log zerolog.Logger) *notification.Dispatcher {
	d := notification.NewDispatcher(cfg.Delivery.Channels, log)
	d.Register(notification.ChannelEmail, notification.NewEmailNotifier(cfg.SMTP, cfg.Secrets.SMTPPassword, log))
	if sender := NewSMSSender(cfg); sender != nil {
		d.Register(notification.ChannelSMS, notification.NewSMSNotifier(sender, cfg.SMS.To, log))
	} else if cfg.HasChannel(notification.ChannelSMS) {
		log.Warn().Str("provider", cfg.SMS.Provider).Msg("SMS channel configured without credentials")
	}
	return d
}

// OpenDatabase connects and migrates when a DSN is set; nil otherwise.
func OpenDatabase(cfg *config.Config, log zerolog.Logger) (*database.DB, error) {
	if cfg.Secrets.DatabaseDSN == "" {
		return nil, nil
	}
	db, err := database.Connect(cfg.Secrets.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	ran, err := db.RunMigrations(resolve(cfg, cfg.Database.Migrations))
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Strs("migrations", ran).Msg("database ready")
	return db, nil
}

// NewSnapshotStore returns the Redis store, or an in-memory one without a
// Redis address.
func NewSnapshotStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (alarming.SnapshotStore, func() error, error) {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("no redis configured, report snapshots are kept in memory")
		return alarming.NewMemoryStore(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Secrets.RedisPassword,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return alarming.NewStateManager(client), client.Close, nil
}

// Generator bundles a generator with the resources it holds open.
type Generator struct {
	*generator.Generator
	closers []func() error
}

// Close releases database, Redis and Kafka handles.
func (g *Generator) Close() error {
	var first error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildOptions controls NewGenerator. RecordDir keeps the raw forecasts of
// the run, ReplayDir replaces the forecast services with recorded files.
// Snapshots, when set, is used instead of a store opened per generator and
// is not closed by Generator.Close; long-running processes share one.
type BuildOptions struct {
	DryRun    bool
	DebugDir  string
	RecordDir string
	ReplayDir string
	Snapshots alarming.SnapshotStore
}

// NewGenerator wires a generator from cfg: provider with fallback, fire
// risk, snapshot store, report log and Kafka or direct delivery.
func NewGenerator(ctx context.Context, cfg *config.Config, b BuildOptions, log zerolog.Logger) (*Generator, error) {
	it, err := itinerary.Load(resolve(cfg, cfg.Itinerary))
	if err != nil {
		return nil, err
	}

	provider := NewProvider(ctx, cfg)
	if b.ReplayDir != "" {
		provider = forecast.NewReplay(b.ReplayDir, cfg.Location())
	}
	if b.RecordDir != "" {
		provider = forecast.NewRecorder(provider, b.RecordDir)
	}

	g := &Generator{}
	opts := generator.Options{
		Itinerary: it,
		Provider:  provider,
		DryRun:    b.DryRun,
		DebugDir:  b.DebugDir,
		Logger:    log,
	}

	if cfg.FireRisk.URL != "" {
		opts.FireRisk = firerisk.NewClient(cfg.FireRisk.URL, cfg.FireRisk.MinLevel, cfg.Provider.Timeout)
	}

	store := b.Snapshots
	if store == nil {
		s, closeStore, err := NewSnapshotStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		store = s
		g.closers = append(g.closers, closeStore)
	}
	opts.Evaluator = alarming.NewEvaluator(store, alarming.Rules{
		MinShiftHours: cfg.Dynamic.MinShiftHours,
		MaxPerDay:     cfg.Dynamic.MaxPerDay,
		Deltas:        alarming.DeltasFromConfig(cfg.Dynamic.Deltas),
	})

	db, err := OpenDatabase(cfg, log)
	if err != nil {
		g.Close()
		return nil, err
	}
	if db != nil {
		g.closers = append(g.closers, db.Close)
		opts.Store = db
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		g.closers = append(g.closers, producer.Close)
		opts.Publisher = producer
	} else {
		opts.Dispatcher = NewDispatcher(cfg, log)
	}

	g.Generator = generator.New(cfg, opts)
	return g, nil
}

// resolve makes relative paths relative to the config file.
func resolve(cfg *config.Config, path string) string {
	if path == "" || filepath.IsAbs(path) || cfg.Path() == "" {
		return path
	}
	return filepath.Join(filepath.Dir(cfg.Path()), path)
}
