package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusOverpaid is a confirmed payment whose personal orders another
	// payment had already paid. It needs a refund.
	StatusOverpaid Status = "overpaid"
)

// PendingHold is how long a pending payment keeps other payments off its
// personal orders. After that it is treated as abandoned.
const PendingHold = 30 * time.Minute

// Outcome is what the gateway reports for an intent.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Sentinel errors for payments.
var (
	ErrNotFound         = errors.New("payment not found")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrPaymentsDisabled = errors.New("payments are not configured")
	ErrNothingToPay     = errors.New("nothing to pay")
	ErrAlreadyInPayment = errors.New("personal orders are already being paid")
)

// HeldError reports the pending payment that holds some of the requested
// personal orders. It matches ErrAlreadyInPayment.
type HeldError struct {
	PaymentID        string
	PersonalOrderIDs []string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("personal orders %s are held by payment %s", strings.Join(e.PersonalOrderIDs, ", "), e.PaymentID)
}

// Is reports whether target is ErrAlreadyInPayment.
func (e *HeldError) Is(target error) bool { return target == ErrAlreadyInPayment }

// GatewayError wraps a failure reported by the payment gateway. It matches
// ErrPaymentFailed.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPaymentFailed.
func (e *GatewayError) Is(target error) bool { return target == ErrPaymentFailed }

// Payment settles a selection of personal orders of one table.
type Payment struct {
	ID               string
	TableID          string
	PersonalOrderIDs []string
	Subtotal         decimal.Decimal
	Tip              decimal.Decimal
	Amount           decimal.Decimal
	Currency         string
	Status           Status
	ProviderRef      string
	ClientSecret     string
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IntentRequest asks the gateway to start collecting amount.
type IntentRequest struct {
	PaymentID string
	TableID   string
	Amount    decimal.Decimal
	Currency  string
}

// Intent is the gateway's handle for a started payment. ClientSecret is
// handed to the browser to confirm the payment.
type Intent struct {
	ID           string
	ClientSecret string
}

// Confirmation is the gateway's report on an intent, from a webhook or a
// status lookup.
type Confirmation struct {
	ProviderRef   string
	Outcome       Outcome
	Amount        decimal.Decimal
	Currency      string
	FailureReason string
}

// Gateway is the payment provider.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	FetchIntent(ctx context.Context, providerRef string) (*Confirmation, error)
}

// Repository defines persistence operations for payments.
type Repository interface {
	// Create stores p unless a payment of the same table that is pending
	// since after heldSince covers one of its personal orders, in which case
	// it returns a *HeldError.
	Create(ctx context.Context, p *Payment, heldSince time.Time) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByProviderRef(ctx context.Context, ref string) (*Payment, error)
	AttachIntent(ctx context.Context, id, providerRef, clientSecret string) error
	// Finish moves a pending payment to status and returns the stored
	// payment. It reports false when the payment had already left pending.
	// A payment finished as StatusSucceeded is stored as StatusOverpaid
	// instead when another succeeded payment of the table covers one of its
	// personal orders.
	Finish(ctx context.Context, id string, status Status, reason string) (*Payment, bool, error)
}
