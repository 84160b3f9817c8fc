package tableorder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds how often a read-modify-write is retried after
// losing a race.
const DefaultMaxAttempts = 5

// Service applies table order mutations with retry on concurrent
// modification.
type Service struct {
	repo        Repository
	maxAttempts int
	now         func() time.Time
}

// NewService creates a Service. A non-positive maxAttempts uses
// DefaultMaxAttempts.
func NewService(repo Repository, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{repo: repo, maxAttempts: maxAttempts, now: time.Now}
}

// Get returns the outstanding table order of tableID.
func (s *Service) Get(ctx context.Context, tableID string) (*TableOrder, error) {
	return s.repo.Get(ctx, tableID)
}

// RecordPersonalOrder adds po to the table's order and returns the stored
// personal order. Recording an id that was recorded before returns the stored
// entry without adding a second one, also after it has been settled.
func (s *Service) RecordPersonalOrder(ctx context.Context, tableID string, po PersonalOrder) (*PersonalOrder, error) {
	if len(po.Lines) == 0 {
		return nil, ErrEmptyPersonalOrder
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = s.now()
	}

	to, err := s.update(ctx, tableID, func(current *TableOrder) (*TableOrder, error) {
		return AddPersonalOrder(current, tableID, po), nil
	})
	if errors.Is(err, ErrAlreadyRecorded) {
		recorded, err := s.repo.Recorded(ctx, tableID, po.ID)
		if err != nil {
			return nil, fmt.Errorf("load recorded personal order: %w", err)
		}
		zctx.From(ctx).Info("Personal order already settled",
			zap.String("table_id", tableID),
			zap.String("personal_order_id", po.ID),
		)
		return recorded, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record personal order: %w", err)
	}

	stored, ok := to.Find(po.ID)
	if !ok {
		return nil, errors.Errorf("personal order %s missing after update", po.ID)
	}
	return stored, nil
}

// QuoteResult is the amount owed for a selection of personal orders.
type QuoteResult struct {
	AmountDue      decimal.Decimal
	PersonalOrders []PersonalOrder
}

// Quote prices a settlement without applying it.
func (s *Service) Quote(ctx context.Context, tableID string, keys []string) (*QuoteResult, error) {
	to, err := s.repo.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	amount, selected, err := Quote(to, keys)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{AmountDue: amount, PersonalOrders: selected}, nil
}

// Settle removes the personal orders named by keys. It is safe to call again
// with the same keys: already settled orders are skipped and a table without
// an outstanding order settles nothing.
func (s *Service) Settle(ctx context.Context, tableID string, keys []string) (Settlement, error) {
	var result Settlement
	_, err := s.update(ctx, tableID, func(current *TableOrder) (*TableOrder, error) {
		result = Settle(current, keys)
		if len(result.Settled) == 0 {
			return current, nil
		}
		return result.Residual, nil
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("settle table order: %w", err)
	}
	return result, nil
}

// update retries fn on ErrConcurrentModification. Every attempt re-reads the
// current state, so fn must be free of side effects.
func (s *Service) update(ctx context.Context, tableID string, fn UpdateFunc) (*TableOrder, error) {
	stamped := func(current *TableOrder) (*TableOrder, error) {
		next, err := fn(current)
		if err != nil || next == nil || next == current {
			return next, err
		}
		now := s.now()
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		return next, nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		to, err := s.repo.Update(ctx, tableID, stamped)
		if err == nil {
			return to, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
		zctx.From(ctx).Debug("Table order update conflict, retrying",
			zap.String("table_id", tableID),
			zap.Int("attempt", attempt),
		)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
