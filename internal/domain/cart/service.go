package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/tableside/internal/domain/menu"
	"github.com/xenking/tableside/internal/domain/order"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/tableorder"
	"github.com/xenking/tableside/internal/domain/tip"
)

// ErrCustomerNameRequired is returned when submitting without a display name.
var ErrCustomerNameRequired = errors.New("customer name required")

// ItemUnavailableError indicates a menu item that cannot be added right now.
type ItemUnavailableError struct {
	MenuItemID string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("menu item %s is not available", e.MenuItemID)
}

// PersonalOrderRecorder stores a submitted cart on the table order. It must
// be idempotent on the personal order id.
type PersonalOrderRecorder interface {
	RecordPersonalOrder(ctx context.Context, tableID string, po tableorder.PersonalOrder) (*tableorder.PersonalOrder, error)
}

// OrderPlacer places a single-customer order. It must be idempotent on the
// request id.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// Service manages the in-progress carts of diners.
type Service struct {
	carts    Repository
	menu     menu.Repository
	personal PersonalOrderRecorder
	orders   OrderPlacer
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, items menu.Repository, personal PersonalOrderRecorder, orders OrderPlacer) *Service {
	return &Service{
		carts:    carts,
		menu:     items,
		personal: personal,
		orders:   orders,
		now:      time.Now,
	}
}

// Get returns the cart for key, empty when the diner has none yet.
func (s *Service) Get(ctx context.Context, key Key) (*Cart, error) {
	return s.carts.Get(ctx, key)
}

// Totals prices the cart with the given tip.
func (s *Service) Totals(ctx context.Context, key Key, spec tip.Spec) (*Cart, Totals, error) {
	c, err := s.carts.Get(ctx, key)
	if err != nil {
		return nil, Totals{}, err
	}
	totals, err := ComputeTotals(c.Lines, spec)
	if err != nil {
		return nil, Totals{}, err
	}
	return c, totals, nil
}

// AddLine validates the selection against the current menu item and appends
// a new line.
func (s *Service) AddLine(ctx context.Context, key Key, menuItemID string, sel pricing.Selection) (*Cart, *Line, error) {
	item, err := s.menu.GetByID(ctx, menuItemID)
	if err != nil {
		return nil, nil, err
	}
	if !item.Available {
		return nil, nil, &ItemUnavailableError{MenuItemID: menuItemID}
	}
	if sel.Quantity == 0 {
		sel.Quantity = 1
	}
	if err := pricing.Validate(*item, sel); err != nil {
		return nil, nil, err
	}

	line := Line{
		ID:        uuid.New().String(),
		Item:      *item,
		Selection: sel,
		AddedAt:   s.now(),
	}
	c, err := s.carts.Update(ctx, key, func(c *Cart) error {
		c.Lines = append(c.Lines, line)
		c.UpdatedAt = line.AddedAt
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return c, &line, nil
}

// UpdateQuantity sets the quantity of a line. A quantity below 1 removes it.
func (s *Service) UpdateQuantity(ctx context.Context, key Key, lineID string, quantity int) (*Cart, error) {
	return s.carts.Update(ctx, key, func(c *Cart) error {
		i, ok := c.line(lineID)
		if !ok {
			return ErrLineNotFound
		}
		if quantity < 1 {
			c.removeLines(map[string]struct{}{lineID: {}})
		} else {
			c.Lines[i].Selection.Quantity = quantity
		}
		c.UpdatedAt = s.now()
		return nil
	})
}

// RemoveLine deletes a line from the cart.
func (s *Service) RemoveLine(ctx context.Context, key Key, lineID string) (*Cart, error) {
	return s.UpdateQuantity(ctx, key, lineID, 0)
}

// Clear discards the cart.
func (s *Service) Clear(ctx context.Context, key Key) error {
	return s.carts.Delete(ctx, key)
}

// Submit records the cart as a personal order on the table and then removes
// the submitted lines. If recording fails the cart is untouched. If clearing
// fails a retry records nothing new because the personal order id is the
// cart's submission id.
func (s *Service) Submit(ctx context.Context, key Key, customerName string) (*tableorder.PersonalOrder, error) {
	customerName = strings.TrimSpace(customerName)
	if customerName == "" {
		return nil, ErrCustomerNameRequired
	}

	c, err := s.carts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	po := tableorder.NewPersonalOrder(c.SubmissionID, key.CustomerID, customerName, Price(c.Lines), s.now())
	stored, err := s.personal.RecordPersonalOrder(ctx, key.TableID, po)
	if err != nil {
		return nil, fmt.Errorf("record personal order: %w", err)
	}

	submitted := make(map[string]struct{}, len(stored.Lines))
	for _, l := range stored.Lines {
		submitted[l.ID] = struct{}{}
	}
	if err := s.clearSubmitted(ctx, key, stored.ID, submitted); err != nil {
		return nil, err
	}
	return stored, nil
}

// Checkout places the cart as a single-customer order with a tip and then
// removes the ordered lines, with the same retry guarantees as Submit.
func (s *Service) Checkout(ctx context.Context, key Key, spec tip.Spec, paymentRef string) (*order.Order, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c, err := s.carts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]order.ItemRequest, len(c.Lines))
	for i, l := range c.Lines {
		items[i] = order.ItemRequest{
			LineID:     l.ID,
			MenuItemID: l.Item.ID,
			Quantity:   l.Selection.Quantity,
			Selection:  l.Selection,
		}
	}

	o, err := s.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		ID:               c.SubmissionID,
		TableID:          key.TableID,
		Items:            items,
		Tip:              spec,
		PaymentReference: paymentRef,
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	ordered := make(map[string]struct{}, len(o.Items))
	for _, l := range o.Items {
		ordered[l.ID] = struct{}{}
	}
	if err := s.clearSubmitted(ctx, key, o.ID, ordered); err != nil {
		return nil, err
	}
	return o, nil
}

// clearSubmitted removes the lines that made it into submission id and
// starts a new submission. Lines added after the submission stay.
func (s *Service) clearSubmitted(ctx context.Context, key Key, id string, lines map[string]struct{}) error {
	_, err := s.carts.Update(ctx, key, func(c *Cart) error {
		if c.SubmissionID != id {
			return nil
		}
		c.removeLines(lines)
		c.SubmissionID = uuid.New().String()
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear submitted cart: %w", err)
	}
	return nil
}

// NewCart returns an empty cart for key with a fresh submission id.
func NewCart(key Key, now time.Time) *Cart {
	return &Cart{
		TableID:      key.TableID,
		CustomerID:   key.CustomerID,
		SubmissionID: uuid.New().String(),
		UpdatedAt:    now,
	}
}
