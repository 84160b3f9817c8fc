package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/tableside/pkg/redis"
	"github.com/xenking/tableside/pkg/stripe"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (TABLESIDE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (TABLESIDE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for staff API key hashing" flag:"api-key-pepper"`
	Currency     string `default:"usd" usage:"ISO currency code of menu prices"`
	Redis        redis.Config
	Stripe       stripe.Config
	Cart         CartConfig
	TableOrder   TableOrderConfig
	Webhook      WebhookConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CartConfig controls diner carts kept in Redis.
type CartConfig struct {
	TTL         time.Duration `default:"6h" usage:"Idle time after which a cart is dropped"`
	MaxAttempts int           `default:"10" usage:"Optimistic lock attempts per cart write"`
}

// TableOrderConfig controls table order writes.
type TableOrderConfig struct {
	MaxAttempts int `default:"5" usage:"Attempts per table order read-modify-write before reporting a conflict"`
}

// WebhookConfig controls webhook deduplication.
type WebhookConfig struct {
	DedupTTL time.Duration `default:"72h" usage:"How long processed webhook event ids are remembered"`
}

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TABLESIDE",
		Files:     []string{"config.yaml", "/etc/tableside/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set TABLESIDE_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("api key pepper is required: set TABLESIDE_API_KEY_PEPPER")
	}
	if len(c.Currency) != 3 {
		return errors.Errorf("currency %q is not an ISO code", c.Currency)
	}
	if c.Stripe.Enabled() && c.Stripe.WebhookSecret == "" {
		return errors.New("stripe webhook secret is required when stripe is enabled")
	}
	if c.Cart.MaxAttempts < 1 || c.TableOrder.MaxAttempts < 1 {
		return errors.New("max attempts must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's TABLESIDE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	c.Currency = strings.ToLower(strings.TrimSpace(c.Currency))
}
