package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmabot/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.True(t, cfg.Seed)
	assert.Equal(t, 3, cfg.RefillHorizonDays)
	assert.Equal(t, time.Hour, cfg.RefillScanInterval)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, []string{"log"}, cfg.NotifyChannels)
	assert.Len(t, cfg.Languages(), 7)
	assert.False(t, cfg.UsesAWS())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PHARMABOT_STORAGE", "Postgres")
	t.Setenv("PHARMABOT_DATABASE_URL", "postgres://localhost/pharmabot?sslmode=disable")
	t.Setenv("PHARMABOT_SUPPORTED_LANGUAGES", "en, HI ,mr")
	t.Setenv("PHARMABOT_NOTIFY_CHANNELS", "log,pgnotify,queue")
	t.Setenv("PHARMABOT_NOTIFY_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/1/orders")
	t.Setenv("PHARMABOT_REFILL_SCAN_INTERVAL", "15m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, []domain.Language{domain.LangEnglish, domain.LangHindi, domain.LangMarathi}, cfg.Languages())
	assert.Equal(t, 15*time.Minute, cfg.RefillScanInterval)
	assert.True(t, cfg.HasChannel("queue"))
	assert.True(t, cfg.UsesAWS())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Storage:              StorageMemory,
			DefaultSupplyDays:    30,
			ActiveMedicationDays: 90,
			SupportedLanguages:   []string{"en"},
			DefaultLanguage:      "en",
			NotifyChannels:       []string{"log"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage = StoragePostgres }},
		{"negative horizon", func(c *Config) { c.RefillHorizonDays = -1 }},
		{"zero supply days", func(c *Config) { c.DefaultSupplyDays = 0 }},
		{"unknown language", func(c *Config) { c.SupportedLanguages = []string{"en", "fr"} }},
		{"no languages", func(c *Config) { c.SupportedLanguages = nil }},
		{"bad default language", func(c *Config) { c.DefaultLanguage = "xx" }},
		{"webhook without url", func(c *Config) { c.NotifyChannels = []string{"webhook"} }},
		{"pgnotify on memory", func(c *Config) { c.NotifyChannels = []string{"pgnotify"} }},
		{"unknown channel", func(c *Config) { c.NotifyChannels = []string{"sms"} }},
	}
	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrValidation)
		})
	}
}
