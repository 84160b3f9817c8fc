package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tableside/internal/domain/pricing"
)

// Status is the kitchen progress of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
)

var statusFlow = []Status{StatusPending, StatusPreparing, StatusReady, StatusCompleted}

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrIdempotencyConflict is returned when an order id is reused for a
// different table.
var ErrIdempotencyConflict = errors.New("order id already used for another table")

// ErrUnknownStatus is returned when parsing a status outside the flow.
var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range statusFlow {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
}

func (s Status) index() int {
	for i, st := range statusFlow {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// Next returns the status that follows s.
func (s Status) Next() (Status, bool) {
	i := s.index()
	if i < 0 || i+1 >= len(statusFlow) {
		return "", false
	}
	return statusFlow[i+1], true
}

// CanTransitionTo reports whether to directly follows s. The flow is
// strictly linear: no skips, no way back.
func (s Status) CanTransitionTo(to Status) bool {
	next, ok := s.Next()
	return ok && next == to
}

// Order is a single-customer checkout.
type Order struct {
	ID               string
	TableID          string
	Status           Status
	Items            []pricing.Line
	Subtotal         decimal.Decimal
	Tip              decimal.Decimal
	Total            decimal.Decimal
	PaymentReference string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores o unless an order with the same id exists, in which case
	// it returns the stored order and created=false.
	Create(ctx context.Context, o *Order) (stored *Order, created bool, err error)
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order from one status to another and returns
	// ErrInvalidTransition when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
}
