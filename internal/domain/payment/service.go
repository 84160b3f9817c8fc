package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/tableside/internal/domain/tableorder"
	"github.com/xenking/tableside/internal/domain/tip"
)

// TableOrders is the part of the table order service payments need.
type TableOrders interface {
	Quote(ctx context.Context, tableID string, keys []string) (*tableorder.QuoteResult, error)
	Settle(ctx context.Context, tableID string, keys []string) (tableorder.Settlement, error)
}

// CreateRequest selects the personal orders to pay and the tip on top.
type CreateRequest struct {
	TableID          string
	PersonalOrderIDs []string
	Tip              tip.Spec
}

// Service creates payments and applies settlements once the gateway confirms
// them.
type Service struct {
	repo     Repository
	gateway  Gateway
	tables   TableOrders
	currency string
	now      func() time.Time

	settled       metric.Int64Counter
	settledAmount metric.Float64Counter
	failed        metric.Int64Counter
	overpaid      metric.Int64Counter
}

// NewService creates a payment Service. A nil gateway disables payment
// creation.
func NewService(repo Repository, gateway Gateway, tables TableOrders, currency string, meter metric.Meter) (*Service, error) {
	settled, err := meter.Int64Counter("tableside.payments.settled",
		metric.WithDescription("Payments confirmed and settled"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "settled counter")
	}
	settledAmount, err := meter.Float64Counter("tableside.payments.settled_amount",
		metric.WithDescription("Amount settled through confirmed payments"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "settled amount counter")
	}
	failed, err := meter.Int64Counter("tableside.payments.failed",
		metric.WithDescription("Payments reported failed by the gateway"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}
	overpaid, err := meter.Int64Counter("tableside.payments.overpaid",
		metric.WithDescription("Confirmed payments for personal orders another payment had already paid"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "overpaid counter")
	}

	return &Service{
		repo:          repo,
		gateway:       gateway,
		tables:        tables,
		currency:      strings.ToLower(currency),
		now:           time.Now,
		settled:       settled,
		settledAmount: settledAmount,
		failed:        failed,
		overpaid:      overpaid,
	}, nil
}

// Create prices the selected personal orders plus tip, records a pending
// payment and opens a gateway intent for it. Nothing is settled here. While
// another payment younger than PendingHold is pending for one of the
// selected personal orders, Create fails with a *HeldError.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Payment, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}

	quote, err := s.tables.Quote(ctx, req.TableID, req.PersonalOrderIDs)
	if err != nil {
		return nil, err
	}
	tipAmount, err := req.Tip.Amount(quote.AmountDue)
	if err != nil {
		return nil, err
	}
	amount := quote.AmountDue.Add(tipAmount)
	if !amount.IsPositive() {
		return nil, ErrNothingToPay
	}

	ids := make([]string, len(quote.PersonalOrders))
	for i, po := range quote.PersonalOrders {
		ids[i] = po.ID
	}

	now := s.now()
	p := &Payment{
		ID:               uuid.New().String(),
		TableID:          req.TableID,
		PersonalOrderIDs: ids,
		Subtotal:         quote.AmountDue,
		Tip:              tipAmount,
		Amount:           amount,
		Currency:         s.currency,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, p, now.Add(-PendingHold)); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		PaymentID: p.ID,
		TableID:   p.TableID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	})
	if err != nil {
		if _, _, finishErr := s.repo.Finish(ctx, p.ID, StatusFailed, err.Error()); finishErr != nil {
			zctx.From(ctx).Warn("Mark payment failed", zap.String("payment_id", p.ID), zap.Error(finishErr))
		}
		return nil, &GatewayError{Op: "create intent", Err: err}
	}

	if err := s.repo.AttachIntent(ctx, p.ID, intent.ID, intent.ClientSecret); err != nil {
		return nil, fmt.Errorf("attach intent: %w", err)
	}
	p.ProviderRef = intent.ID
	p.ClientSecret = intent.ClientSecret
	return p, nil
}

// Get returns the payment with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.repo.Get(ctx, id)
}

// Confirm applies a gateway report. A succeeded report with the expected
// amount settles the personal orders and then marks the payment succeeded,
// or overpaid when another payment already paid for them. A failed report
// marks it failed and settles nothing. Reports for payments that already
// left pending change nothing, so redelivered webhooks are harmless.
func (s *Service) Confirm(ctx context.Context, c Confirmation) (*Payment, error) {
	p, err := s.repo.GetByProviderRef(ctx, c.ProviderRef)
	if err != nil {
		return nil, err
	}
	lg := zctx.From(ctx).With(
		zap.String("payment_id", p.ID),
		zap.String("table_id", p.TableID),
		zap.String("outcome", string(c.Outcome)),
	)

	if p.Status != StatusPending {
		lg.Debug("Payment already finished", zap.String("status", string(p.Status)))
		return p, nil
	}

	switch c.Outcome {
	case OutcomePending:
		return p, nil
	case OutcomeFailed:
		p, _, err := s.finish(ctx, p, StatusFailed, c.FailureReason)
		return p, err
	case OutcomeSucceeded:
	default:
		return nil, errors.Errorf("unknown payment outcome %q", c.Outcome)
	}

	if !c.Amount.Equal(p.Amount) || !strings.EqualFold(c.Currency, p.Currency) {
		lg.Error("Confirmed amount does not match payment",
			zap.String("confirmed", c.Amount.StringFixed(2)+" "+c.Currency),
			zap.String("expected", p.Amount.StringFixed(2)+" "+p.Currency),
		)
		p, _, err := s.finish(ctx, p, StatusFailed, "confirmed amount does not match")
		return p, err
	}

	settlement, err := s.tables.Settle(ctx, p.TableID, p.PersonalOrderIDs)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	p, changed, err := s.finish(ctx, p, StatusSucceeded, "")
	if err != nil {
		return nil, err
	}
	if !changed {
		return p, nil
	}

	attrs := metric.WithAttributes(attribute.String("currency", p.Currency))
	if p.Status == StatusOverpaid {
		s.overpaid.Add(ctx, 1, attrs)
		lg.Error("Payment overpaid, refund needed",
			zap.String("amount", p.Amount.StringFixed(2)+" "+p.Currency),
			zap.String("subtotal", p.Subtotal.StringFixed(2)),
			zap.String("settled", settlement.AmountDue.StringFixed(2)),
			zap.Int("personal_orders", len(p.PersonalOrderIDs)),
			zap.Int("settled_personal_orders", len(settlement.Settled)),
			zap.String("reason", p.FailureReason),
		)
		return p, nil
	}
	s.settled.Add(ctx, 1, attrs)
	s.settledAmount.Add(ctx, p.Amount.InexactFloat64(), attrs)
	lg.Info("Payment settled",
		zap.Int("personal_orders", len(settlement.Settled)),
		zap.Bool("table_cleared", settlement.Residual == nil),
	)
	return p, nil
}

// Sync pulls the intent state from the gateway and confirms it. It is the
// fallback for webhooks that have not arrived.
func (s *Service) Sync(ctx context.Context, id string) (*Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending || p.ProviderRef == "" {
		return p, nil
	}
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}

	c, err := s.gateway.FetchIntent(ctx, p.ProviderRef)
	if err != nil {
		return nil, &GatewayError{Op: "fetch intent", Err: err}
	}
	return s.Confirm(ctx, *c)
}

// finish stores the final status of p and reports whether this call moved
// it out of pending.
func (s *Service) finish(ctx context.Context, p *Payment, status Status, reason string) (*Payment, bool, error) {
	stored, changed, err := s.repo.Finish(ctx, p.ID, status, reason)
	if err != nil {
		return nil, false, fmt.Errorf("finish payment: %w", err)
	}
	if changed && stored.Status == StatusFailed {
		s.failed.Add(ctx, 1)
	}
	return stored, changed, nil
}
