// Package config reads the service settings from PHARMABOT_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"pharmabot/internal/domain"
)

const Prefix = "pharmabot"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config настройки сервиса
type Config struct {
	HTTPAddr    string   `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"json"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`

	Storage     string `envconfig:"STORAGE" default:"memory"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	Seed        bool   `envconfig:"SEED" default:"true"`

	RefillHorizonDays    int           `envconfig:"REFILL_HORIZON_DAYS" default:"3"`
	RefillScanInterval   time.Duration `envconfig:"REFILL_SCAN_INTERVAL" default:"1h"`
	DefaultSupplyDays    int           `envconfig:"DEFAULT_SUPPLY_DAYS" default:"30"`
	ActiveMedicationDays int           `envconfig:"ACTIVE_MEDICATION_DAYS" default:"90"`
	LowStockThreshold    int64         `envconfig:"LOW_STOCK_THRESHOLD" default:"10"`
	InteractionsFile     string        `envconfig:"INTERACTIONS_FILE"`

	SupportedLanguages []string `envconfig:"SUPPORTED_LANGUAGES" default:"en,hi,mr,bn,gu,ml,ta"`
	DefaultLanguage    string   `envconfig:"DEFAULT_LANGUAGE" default:"en"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL"`

	NotifyChannels []string `envconfig:"NOTIFY_CHANNELS" default:"log"`
	NotifyAsync    bool     `envconfig:"NOTIFY_ASYNC" default:"true"`
	WebhookURL     string   `envconfig:"WEBHOOK_URL"`
	WebhookToken   string   `envconfig:"WEBHOOK_TOKEN"`
	NotifyQueueURL string   `envconfig:"NOTIFY_QUEUE_URL"`

	AWSRegion         string `envconfig:"AWS_REGION" default:"us-east-1"`
	RefillAlertsTable string `envconfig:"REFILL_ALERTS_TABLE"`
	DynamoDBEndpoint  string `envconfig:"DYNAMODB_ENDPOINT"`
	MetricsNamespace  string `envconfig:"METRICS_NAMESPACE"`

	SpeechBaseURL string        `envconfig:"SPEECH_BASE_URL"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"30m"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	c.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.DefaultLanguage))
	c.SupportedLanguages = cleanList(c.SupportedLanguages)
	c.NotifyChannels = cleanList(c.NotifyChannels)
	c.CORSOrigins = cleanList(c.CORSOrigins)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return domain.Validationf("PHARMABOT_DATABASE_URL is required for postgres storage")
		}
	default:
		return domain.Validationf("unknown storage %q", c.Storage)
	}
	if c.RefillHorizonDays < 0 {
		return domain.Validationf("refill horizon must not be negative")
	}
	if c.RefillScanInterval < 0 {
		return domain.Validationf("refill scan interval must not be negative")
	}
	if c.DefaultSupplyDays <= 0 || c.ActiveMedicationDays <= 0 {
		return domain.Validationf("supply and active medication days must be positive")
	}
	if c.LowStockThreshold < 0 {
		return domain.Validationf("low stock threshold must not be negative")
	}

	langs := c.Languages()
	if len(langs) == 0 {
		return domain.Validationf("at least one supported language is required")
	}
	for _, l := range langs {
		if !l.Valid() {
			return domain.Validationf("unsupported language %q", l)
		}
	}
	def := domain.Language(c.DefaultLanguage)
	if !def.Valid() {
		return domain.Validationf("unsupported default language %q", c.DefaultLanguage)
	}

	for _, ch := range c.NotifyChannels {
		switch ch {
		case "log":
		case "webhook":
			if c.WebhookURL == "" {
				return domain.Validationf("webhook channel needs PHARMABOT_WEBHOOK_URL")
			}
		case "queue":
			if c.NotifyQueueURL == "" {
				return domain.Validationf("queue channel needs PHARMABOT_NOTIFY_QUEUE_URL")
			}
		case "pgnotify":
			if c.Storage != StoragePostgres {
				return domain.Validationf("pgnotify channel needs postgres storage")
			}
		default:
			return domain.Validationf("unknown notify channel %q", ch)
		}
	}
	return nil
}

// Languages returns SupportedLanguages as domain values.
func (c Config) Languages() []domain.Language {
	out := make([]domain.Language, 0, len(c.SupportedLanguages))
	for _, l := range c.SupportedLanguages {
		out = append(out, domain.Language(l))
	}
	return out
}

// UsesAWS reports whether any AWS client is needed.
func (c Config) UsesAWS() bool {
	return c.RefillAlertsTable != "" || c.MetricsNamespace != "" || c.HasChannel("queue")
}

func (c Config) HasChannel(name string) bool {
	for _, ch := range c.NotifyChannels {
		if ch == name {
			return true
		}
	}
	return false
}
