package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithPath_Defaults(t *testing.T) {
	cfg, err := LoadWithPath(writeEnv(t, "APP_NAME=polyphonica-test\n"))
	require.NoError(t, err)

	assert.Equal(t, "polyphonica-test", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 35*time.Minute, cfg.Booking.HoldWindow)
	assert.Equal(t, 15*time.Minute, cfg.Booking.HoldGrace)
	assert.Equal(t, 7, cfg.Booking.RefundCutoffDays)
	assert.Equal(t, 10, cfg.Booking.MaxTicketsPerOrder)
	assert.Equal(t, 30, cfg.FeeSync.LookbackDays)
	assert.Equal(t, "gbp", cfg.Stripe.Currency)
	assert.Equal(t, "mock", cfg.Stripe.Gateway)
	assert.Equal(t, EventBusNone, cfg.Events.Bus)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadWithPath_EnvOverridesFile(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("EVENTS_BUS", "Kafka")
	t.Setenv("EVENTS_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadWithPath(writeEnv(t, "SERVER_PORT=7070\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, EventBusKafka, cfg.Events.Bus)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Name: "svc", Environment: "development"},
		Server:  ServerConfig{Port: 8080},
		JWT:     JWTConfig{Secret: "s3cret"},
		Stripe:  StripeConfig{Gateway: "mock"},
		Booking: BookingConfig{HoldWindow: 35 * time.Minute, MaxTicketsPerOrder: 10},
		Events:  EventsConfig{Bus: EventBusNone},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"default secret in production", func(c *Config) {
			c.App.Environment = "production"
			c.JWT.Secret = defaultJWTSecret
		}, true},
		{"stripe without key", func(c *Config) { c.Stripe.Gateway = "stripe" }, true},
		{"stripe with key", func(c *Config) {
			c.Stripe.Gateway = "stripe"
			c.Stripe.SecretKey = "sk_test_x"
		}, false},
		{"stripe in production without webhook secret", func(c *Config) {
			c.App.Environment = "production"
			c.Stripe.Gateway = "stripe"
			c.Stripe.SecretKey = "sk_live_x"
		}, true},
		{"stripe in production with webhook secret", func(c *Config) {
			c.App.Environment = "production"
			c.Stripe.Gateway = "stripe"
			c.Stripe.SecretKey = "sk_live_x"
			c.Stripe.WebhookSecret = "whsec_x"
		}, false},
		{"unknown gateway", func(c *Config) { c.Stripe.Gateway = "paypal" }, true},
		{"hold window too short", func(c *Config) { c.Booking.HoldWindow = 20 * time.Minute }, true},
		{"unknown bus", func(c *Config) { c.Events.Bus = "nats" }, true},
		{"kafka without brokers", func(c *Config) { c.Events.Bus = EventBusKafka }, true},
		{"rabbitmq", func(c *Config) { c.Events.Bus = EventBusRabbitMQ }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
