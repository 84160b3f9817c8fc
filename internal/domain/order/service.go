package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/tableside/internal/domain/menu"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/table"
	"github.com/xenking/tableside/internal/domain/tip"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems        = errors.New("items required")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// MenuItemNotFoundError indicates a requested menu item does not exist.
type MenuItemNotFoundError struct {
	MenuItemID string
}

func (e *MenuItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %s not found", e.MenuItemID)
}

// ItemUnavailableError indicates a menu item that is off the menu for now.
type ItemUnavailableError struct {
	MenuItemID string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("menu item %s is not available", e.MenuItemID)
}

// PriceMismatchError indicates the client priced a line differently from the
// server.
type PriceMismatchError struct {
	MenuItemID string
	Submitted  decimal.Decimal
	Resolved   decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("unit price %s for menu item %s does not match %s",
		e.Submitted.StringFixed(2), e.MenuItemID, e.Resolved.StringFixed(2))
}

// ItemRequest is one requested line.
type ItemRequest struct {
	// LineID is kept on the resulting line snapshot when set.
	LineID     string
	MenuItemID string
	Quantity   int
	// UnitPrice is the client's price. When set it must match the resolved
	// unit price.
	UnitPrice *decimal.Decimal
	Selection pricing.Selection
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	// ID makes the request idempotent: placing an id that already exists
	// returns the stored order. Empty means a fresh id.
	ID               string
	TableID          string
	Items            []ItemRequest
	Tip              tip.Spec
	PaymentReference string
}

// Service encapsulates order placement and status progression.
type Service struct {
	menu   menu.Repository
	tables table.Repository
	orders Repository
	now    func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(items menu.Repository, tables table.Repository, orders Repository) *Service {
	return &Service{
		menu:   items,
		tables: tables,
		orders: orders,
		now:    time.Now,
	}
}

// PlaceOrder resolves every line against the menu, validates selections,
// adds the tip and persists a pending order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if _, err := s.tables.Get(ctx, req.TableID); err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.MenuItemID
	}

	fetched, err := s.menu.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get menu items: %w", err)
	}
	byID := make(map[string]menu.Item, len(fetched))
	for _, it := range fetched {
		byID[it.ID] = it
	}

	lines := make([]pricing.Line, len(req.Items))
	for i, item := range req.Items {
		mi, ok := byID[item.MenuItemID]
		if !ok {
			return nil, &MenuItemNotFoundError{MenuItemID: item.MenuItemID}
		}
		if !mi.Available {
			return nil, &ItemUnavailableError{MenuItemID: item.MenuItemID}
		}

		sel := item.Selection
		if item.Quantity != 0 {
			sel.Quantity = item.Quantity
		}
		if err := pricing.Validate(mi, sel); err != nil {
			return nil, err
		}

		line := pricing.Resolve(mi, sel)
		if item.UnitPrice != nil && !item.UnitPrice.Round(2).Equal(line.UnitPrice) {
			return nil, &PriceMismatchError{
				MenuItemID: item.MenuItemID,
				Submitted:  *item.UnitPrice,
				Resolved:   line.UnitPrice,
			}
		}
		line.ID = item.LineID
		lines[i] = line
	}

	subtotal := pricing.Subtotal(lines)
	tipAmount, err := req.Tip.Amount(subtotal)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now()
	o := &Order{
		ID:               id,
		TableID:          req.TableID,
		Status:           StatusPending,
		Items:            lines,
		Subtotal:         subtotal,
		Tip:              tipAmount,
		Total:            subtotal.Add(tipAmount),
		PaymentReference: req.PaymentReference,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stored, _, err := s.orders.Create(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if stored.TableID != req.TableID {
		return nil, errors.Wrapf(ErrIdempotencyConflict, "order %s belongs to table %s", stored.ID, stored.TableID)
	}
	return stored, nil
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// Advance moves the order to the next status in the flow.
func (s *Service) Advance(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, ok := o.Status.Next()
	if !ok {
		return nil, errors.Wrapf(ErrInvalidTransition, "order %s is %s", id, o.Status)
	}
	return s.orders.UpdateStatus(ctx, id, o.Status, next)
}

// SetStatus moves the order to status, which must directly follow the
// current one.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(status) {
		return nil, errors.Wrapf(ErrInvalidTransition, "order %s: %s to %s", id, o.Status, status)
	}
	return s.orders.UpdateStatus(ctx, id, o.Status, status)
}
