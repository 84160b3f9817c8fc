package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tableside/pkg/stripe"
)

func validConfig() Config {
	return Config{
		Addr:         defaultAddr,
		DatabaseURL:  "postgres://localhost/tableside",
		APIKeyPepper: "pepper",
		Currency:     "usd",
		Cart:         CartConfig{TTL: time.Hour, MaxAttempts: 10},
		TableOrder:   TableOrderConfig{MaxAttempts: 5},
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: defaultAddr, Currency: " EUR "}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/0", cfg.Redis.URL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "eur", cfg.Currency)
}

func TestApplyPlatformDefaults_ExplicitWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL"},
		{name: "no pepper", mutate: func(c *Config) { c.APIKeyPepper = "" }, wantErr: "pepper"},
		{name: "bad currency", mutate: func(c *Config) { c.Currency = "dollars" }, wantErr: "currency"},
		{
			name:    "stripe without secret",
			mutate:  func(c *Config) { c.Stripe = stripe.Config{Environment: "test", APIKey: "sk_test_123"} },
			wantErr: "webhook secret",
		},
		{name: "zero attempts", mutate: func(c *Config) { c.TableOrder.MaxAttempts = 0 }, wantErr: "attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
