// Package gateway adapts the Stripe PaymentIntents API to payment.Gateway.
package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/xenking/tableside/internal/domain/payment"
	pkgstripe "github.com/xenking/tableside/pkg/stripe"
)

// Metadata keys attached to every intent.
const (
	MetadataPaymentID = "payment_id"
	MetadataTableID   = "table_id"
)

// zeroDecimal lists currencies Stripe charges in whole units.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true,
	"mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true,
	"xof": true, "xpf": true,
}

type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type sdkIntents struct{}

func (sdkIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (sdkIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, params)
}

var _ payment.Gateway = (*Stripe)(nil)

// Stripe implements payment.Gateway with PaymentIntents.
type Stripe struct {
	client  *pkgstripe.Client
	intents intentAPI
}

// NewStripe creates the gateway. client must come from pkgstripe.NewClient,
// which installs the API key.
func NewStripe(client *pkgstripe.Client) *Stripe {
	return &Stripe{client: client, intents: sdkIntents{}}
}

// CreateIntent opens a PaymentIntent for the payment. The payment id is the
// idempotency key, so a retried request returns the same intent.
func (s *Stripe) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	amount, err := ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("payment-" + req.PaymentID)
	params.AddMetadata(MetadataPaymentID, req.PaymentID)
	params.AddMetadata(MetadataTableID, req.TableID)

	pi, err := s.intents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return &payment.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// FetchIntent reads the current intent state.
func (s *Stripe) FetchIntent(ctx context.Context, providerRef string) (*payment.Confirmation, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(providerRef, params)
	if err != nil {
		return nil, errors.Wrapf(err, "get payment intent %s", providerRef)
	}
	c := Confirmation(pi)
	return &c, nil
}

// ParseWebhook verifies a webhook delivery. It returns the event id and, for
// payment intent outcomes, the confirmation to apply. Other event types yield
// a nil confirmation.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (string, *payment.Confirmation, error) {
	event, err := s.client.ConstructEvent(payload, signature)
	if err != nil {
		return "", nil, err
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
	default:
		return event.ID, nil, nil
	}
	if event.Data == nil {
		return "", nil, errors.Errorf("event %s has no data", event.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return "", nil, errors.Wrap(err, "decode payment intent")
	}
	c := Confirmation(&pi)
	if event.Type != stripe.EventTypePaymentIntentSucceeded && c.Outcome == payment.OutcomePending {
		c.Outcome = payment.OutcomeFailed
	}
	return event.ID, &c, nil
}

// Confirmation maps a PaymentIntent to the outcome the payment service
// understands.
func Confirmation(pi *stripe.PaymentIntent) payment.Confirmation {
	currency := strings.ToLower(string(pi.Currency))
	c := payment.Confirmation{
		ProviderRef: pi.ID,
		Outcome:     payment.OutcomePending,
		Amount:      FromMinorUnits(pi.Amount, currency),
		Currency:    currency,
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		c.Outcome = payment.OutcomeSucceeded
		if pi.AmountReceived > 0 {
			c.Amount = FromMinorUnits(pi.AmountReceived, currency)
		}
	case stripe.PaymentIntentStatusCanceled:
		c.Outcome = payment.OutcomeFailed
		c.FailureReason = "canceled"
		if pi.CancellationReason != "" {
			c.FailureReason = "canceled: " + string(pi.CancellationReason)
		}
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A fresh intent also starts here; only a recorded error means the
		// attempt failed.
		if pi.LastPaymentError != nil {
			c.Outcome = payment.OutcomeFailed
			c.FailureReason = pi.LastPaymentError.Msg
		}
	}
	return c
}

// ToMinorUnits converts amount to the integer unit Stripe charges in.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp := currencyExponent(currency)
	minor := amount.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, errors.Errorf("amount %s has more precision than %s allows", amount, currency)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts a Stripe amount back to a decimal.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -currencyExponent(currency))
}

func currencyExponent(currency string) int32 {
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}
