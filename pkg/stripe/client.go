// Package stripe bootstraps the Stripe SDK and verifies webhook payloads.
package stripe

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Config holds Stripe credentials.
type Config struct {
	Environment   string `default:"test" yaml:"environment" usage:"Stripe environment (test or live)"`
	APIKey        string `yaml:"api_key" usage:"Stripe secret key; payments are disabled when empty"`
	WebhookSecret string `yaml:"webhook_secret" usage:"Stripe webhook signing secret"`
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.APIKey) != "" }

// Client carries the validated Stripe environment and webhook secret.
type Client struct {
	environment   string
	signingSecret string
}

// NewClient validates cfg and initializes the Stripe SDK key.
func NewClient(cfg Config) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment)
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	return &Client{environment: env, signingSecret: signingSecret}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// ConstructEvent verifies the Stripe-Signature header against payload and
// decodes the event.
func (c *Client) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if signature == "" {
		return stripe.Event{}, errors.New("stripe signature missing")
	}
	event, err := webhook.ConstructEvent(payload, signature, c.SigningSecret())
	if err != nil {
		return stripe.Event{}, errors.Wrap(err, "verify signature")
	}
	return event, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return errors.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return errors.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
