package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every secret read from the environment.
const EnvPrefix = "GR20"

const dateLayout = "2006-01-02"

type Config struct {
	StartDate  string           `yaml:"startdatum" validate:"required,datetime=2006-01-02"`
	Timezone   string           `yaml:"timezone" validate:"required"`
	Itinerary  string           `yaml:"itinerary" validate:"required"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Report     ReportConfig     `yaml:"report"`
	Provider   ProviderConfig   `yaml:"provider"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	SMS        SMSConfig        `yaml:"sms"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Dynamic    DynamicConfig    `yaml:"dynamic"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Database   DatabaseConfig   `yaml:"database"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	FireRisk   FireRiskConfig   `yaml:"fire_risk"`

	Secrets Secrets `yaml:"-"`

	path string
}

// ThresholdsConfig holds the per-metric limits. The five alert thresholds
// have no defaults: a deployment without them is misconfigured.
type ThresholdsConfig struct {
	RainAmount              *float64 `yaml:"rain_amount" validate:"required,gte=0"`
	RainProbability         *float64 `yaml:"rain_probability" validate:"required,gte=0,lte=100"`
	WindSpeed               *float64 `yaml:"wind_speed" validate:"required,gte=0"`
	WindGust                *float64 `yaml:"wind_gust_threshold" validate:"required,gte=0"`
	ThunderstormProbability *float64 `yaml:"thunderstorm_probability" validate:"required,gte=0,lte=100"`
	Temperature             *float64 `yaml:"temperature"`
	NightTemperature        *float64 `yaml:"night_temperature"`
}

type HourWindow struct {
	Start int `yaml:"start" validate:"gte=0,lte=23"`
	End   int `yaml:"end" validate:"gte=0,lte=23,gtefield=Start"`
}

type ReportConfig struct {
	Separator   string     `yaml:"separator"`
	MaxLength   int        `yaml:"max_length" validate:"gt=0"`
	Window      HourWindow `yaml:"window"`
	NightWindow HourWindow `yaml:"night_window"`
}

type ProviderConfig struct {
	Primary     string            `yaml:"primary" validate:"oneof=meteofrance metno"`
	Timeout     time.Duration     `yaml:"timeout"`
	Concurrency int               `yaml:"concurrency" validate:"gte=1"`
	MeteoFrance MeteoFranceConfig `yaml:"meteofrance"`
	MetNo       MetNoConfig       `yaml:"metno"`
}

type MeteoFranceConfig struct {
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	TokenURL string `yaml:"token_url" validate:"omitempty,url"`
}

type MetNoConfig struct {
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	UserAgent string `yaml:"user_agent"`
}

type DeliveryConfig struct {
	Channels []string `yaml:"channels" validate:"dive,oneof=email sms"`
}

type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type SMSConfig struct {
	Provider string   `yaml:"provider" validate:"omitempty,oneof=seven twilio"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	BaseURL  string   `yaml:"base_url" validate:"omitempty,url"`
}

type ScheduleConfig struct {
	Morning         string        `yaml:"morning" validate:"omitempty,datetime=15:04"`
	Evening         string        `yaml:"evening" validate:"omitempty,datetime=15:04"`
	DynamicInterval time.Duration `yaml:"dynamic_interval"`
}

type DynamicConfig struct {
	MinShiftHours int                `yaml:"min_shift_hours"`
	MaxPerDay     int                `yaml:"max_per_day"`
	Deltas        map[string]float64 `yaml:"deltas"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type DatabaseConfig struct {
	Migrations string        `yaml:"migrations"`
	Retention  time.Duration `yaml:"retention"`
}

type WebhookConfig struct {
	Port           int           `yaml:"port"`
	AllowedSenders []string      `yaml:"allowed_senders"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type FireRiskConfig struct {
	URL      string `yaml:"url" validate:"omitempty,url"`
	MinLevel int    `yaml:"min_level"`
}

// Secrets are never stored in the YAML file.
type Secrets struct {
	MeteoFranceClientID     string `envconfig:"METEOFRANCE_CLIENT_ID"`
	MeteoFranceClientSecret string `envconfig:"METEOFRANCE_CLIENT_SECRET"`
	SMTPPassword            string `envconfig:"SMTP_PASSWORD"`
	SevenAPIKey             string `envconfig:"SEVEN_API_KEY"`
	TwilioAccountSID        string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken         string `envconfig:"TWILIO_AUTH_TOKEN"`
	WebhookToken            string `envconfig:"WEBHOOK_TOKEN"`
	DatabaseDSN             string `envconfig:"DATABASE_DSN"`
	RedisPassword           string `envconfig:"REDIS_PASSWORD"`
}

// ConfigErrorType classifies configuration failures.
type ConfigErrorType string

const (
	ErrTypeRead       ConfigErrorType = "read"
	ErrTypeParse      ConfigErrorType = "parse"
	ErrTypeEnv        ConfigErrorType = "env"
	ErrTypeValidation ConfigErrorType = "validation"
)

// ConfigError is returned by Load for any configuration problem.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads the YAML file at path, overlays secrets from the environment
// (a .env file is honoured when present) and validates the result.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Type: ErrTypeRead, Message: "failed to read config file " + path, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// Parse builds a Config from YAML bytes plus environment secrets.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Type: ErrTypeParse, Message: "failed to parse config", Err: err}
	}
	applyDefaultThresholds(cfg)

	if err := envconfig.Process(EnvPrefix, &cfg.Secrets); err != nil {
		return nil, &ConfigError{Type: ErrTypeEnv, Message: "failed to read secrets", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and values that tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ConfigError{Type: ErrTypeValidation, Message: "invalid field " + verrs[0].Namespace(), Err: err}
		}
		return &ConfigError{Type: ErrTypeValidation, Message: "invalid config", Err: err}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &ConfigError{Type: ErrTypeValidation, Message: "unknown timezone " + c.Timezone, Err: err}
	}
	return nil
}

// Path returns the file the config was loaded from, empty for Parse.
func (c *Config) Path() string {
	return c.path
}

// Location returns the itinerary time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Start returns the first hiking day at midnight in the itinerary time zone.
func (c *Config) Start() time.Time {
	t, err := time.ParseInLocation(dateLayout, c.StartDate, c.Location())
	if err != nil {
		return time.Time{}
	}
	return t
}

// HasChannel reports whether reports go out on the given channel.
func (c *Config) HasChannel(channel string) bool {
	for _, ch := range c.Delivery.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

func defaultConfig() *Config {
	return &Config{
		Timezone:  "Europe/Paris",
		Itinerary: "etappen.json",
		Report: ReportConfig{
			Separator:   " - ",
			MaxLength:   160,
			Window:      HourWindow{Start: 4, End: 19},
			NightWindow: HourWindow{Start: 0, End: 6},
		},
		Provider: ProviderConfig{
			Primary:     "meteofrance",
			Timeout:     30 * time.Second,
			Concurrency: 3,
			MeteoFrance: MeteoFranceConfig{
				BaseURL:  "https://webservice.meteofrance.com",
				TokenURL: "https://portail-api.meteofrance.fr/token",
			},
			MetNo: MetNoConfig{
				BaseURL:   "https://api.met.no/weatherapi/locationforecast/2.0",
				UserAgent: "gr20-alert/1.0",
			},
		},
		Delivery: DeliveryConfig{Channels: []string{"email"}},
		SMTP: SMTPConfig{
			Host: "smtp.gmail.com",
			Port: 587,
			From: "gr20-alert@example.com",
		},
		SMS: SMSConfig{Provider: "seven"},
		Schedule: ScheduleConfig{
			Morning:         "04:30",
			Evening:         "19:00",
			DynamicInterval: 2 * time.Hour,
		},
		Dynamic: DynamicConfig{
			MinShiftHours: 2,
			MaxPerDay:     3,
			Deltas: map[string]float64{
				"rain_amount":              1.0,
				"rain_probability":         20,
				"wind_speed":               10,
				"wind_gust":                15,
				"thunderstorm_probability": 20,
				"temperature":              3,
			},
		},
		Redis: RedisConfig{Addr: ""},
		Kafka: KafkaConfig{
			Topic:   "gr20.reports",
			GroupID: "gr20-notification",
		},
		Database: DatabaseConfig{
			Migrations: "migrations",
			Retention:  30 * 24 * time.Hour,
		},
		Webhook: WebhookConfig{
			Port:           8080,
			CommandTimeout: 2 * time.Minute,
		},
		FireRisk: FireRiskConfig{MinLevel: 3},
	}
}

func applyDefaultThresholds(cfg *Config) {
	if cfg.Thresholds.Temperature == nil {
		v := 30.0
		cfg.Thresholds.Temperature = &v
	}
	if cfg.Thresholds.NightTemperature == nil {
		v := 5.0
		cfg.Thresholds.NightTemperature = &v
	}
}
