package tableorder

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/tableside/internal/domain/pricing"
)

// Sentinel errors for table order operations.
var (
	ErrNotFound               = errors.New("table order not found")
	ErrConcurrentModification = errors.New("table order was modified concurrently")
	ErrEmptyPersonalOrder     = errors.New("personal order has no lines")
	ErrNoSelection            = errors.New("no personal orders selected")
	// ErrAlreadyRecorded is returned by Repository.Update when the new state
	// brings back a personal order that an earlier update stored and a
	// settlement has since removed.
	ErrAlreadyRecorded = errors.New("personal order was already recorded")
)

// UnknownPersonalOrderError indicates a settlement key that matches no
// personal order on the table.
type UnknownPersonalOrderError struct {
	ID string
}

func (e *UnknownPersonalOrderError) Error() string {
	return fmt.Sprintf("personal order %s not found on table", e.ID)
}

// PersonalOrder is one diner's submitted cart. Its ID is the settlement key.
type PersonalOrder struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customerId"`
	CustomerName string          `json:"customerName"`
	Lines        []pricing.Line  `json:"lines"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// NewPersonalOrder builds a personal order from priced lines.
func NewPersonalOrder(id, customerID, customerName string, lines []pricing.Line, now time.Time) PersonalOrder {
	return PersonalOrder{
		ID:           id,
		CustomerID:   customerID,
		CustomerName: customerName,
		Lines:        lines,
		Subtotal:     pricing.Subtotal(lines),
		CreatedAt:    now,
	}
}

// TableOrder is the outstanding, not yet paid, set of personal orders of a
// table.
type TableOrder struct {
	ID             string
	TableID        string
	Version        int64
	Orderees       []string
	PersonalOrders []PersonalOrder
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Find returns the personal order with the given id.
func (to *TableOrder) Find(id string) (*PersonalOrder, bool) {
	if to == nil {
		return nil, false
	}
	for i := range to.PersonalOrders {
		if to.PersonalOrders[i].ID == id {
			return &to.PersonalOrders[i], true
		}
	}
	return nil, false
}

func (to *TableOrder) clone() *TableOrder {
	c := *to
	c.Orderees = slices.Clone(to.Orderees)
	c.PersonalOrders = slices.Clone(to.PersonalOrders)
	return &c
}

// AddPersonalOrder returns the table order with po appended. A nil to starts
// a new table order for tableID. Adding a personal order whose id is already
// present returns to itself.
func AddPersonalOrder(to *TableOrder, tableID string, po PersonalOrder) *TableOrder {
	if to == nil {
		return &TableOrder{
			ID:             uuid.New().String(),
			TableID:        tableID,
			Orderees:       []string{po.CustomerName},
			PersonalOrders: []PersonalOrder{po},
		}
	}

	if _, ok := to.Find(po.ID); ok {
		return to
	}
	next := to.clone()
	if !slices.Contains(next.Orderees, po.CustomerName) {
		next.Orderees = append(next.Orderees, po.CustomerName)
	}
	next.PersonalOrders = append(next.PersonalOrders, po)
	return next
}

// TableTotal sums the subtotals of every outstanding personal order.
func TableTotal(to *TableOrder) decimal.Decimal {
	sum := decimal.Zero
	if to == nil {
		return sum
	}
	for _, po := range to.PersonalOrders {
		sum = sum.Add(po.Subtotal)
	}
	return sum
}

// CustomerTotal sums the subtotals of the personal orders placed under name.
func CustomerTotal(to *TableOrder, name string) decimal.Decimal {
	sum := decimal.Zero
	if to == nil {
		return sum
	}
	for _, po := range to.PersonalOrders {
		if po.CustomerName == name {
			sum = sum.Add(po.Subtotal)
		}
	}
	return sum
}

// Settlement is the outcome of paying off a subset of personal orders.
type Settlement struct {
	AmountDue decimal.Decimal
	Settled   []PersonalOrder
	// Residual is what remains outstanding. Nil means nothing is left and
	// the table order must be deleted.
	Residual *TableOrder
}

// Settle removes the personal orders named by keys and reports their sum.
// Keys that are not present are ignored, so settling the same keys twice
// changes nothing the second time.
func Settle(to *TableOrder, keys []string) Settlement {
	if to == nil {
		return Settlement{AmountDue: decimal.Zero}
	}

	selected := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		selected[k] = struct{}{}
	}

	res := Settlement{AmountDue: decimal.Zero}
	remaining := make([]PersonalOrder, 0, len(to.PersonalOrders))
	for _, po := range to.PersonalOrders {
		if _, ok := selected[po.ID]; ok {
			res.AmountDue = res.AmountDue.Add(po.Subtotal)
			res.Settled = append(res.Settled, po)
			continue
		}
		remaining = append(remaining, po)
	}

	if len(remaining) == 0 {
		return res
	}

	residual := to.clone()
	residual.PersonalOrders = remaining
	residual.Orderees = orderees(remaining)
	res.Residual = residual
	return res
}

// Quote sums the personal orders named by keys without changing anything.
// Unlike Settle it requires every key to exist.
func Quote(to *TableOrder, keys []string) (decimal.Decimal, []PersonalOrder, error) {
	if len(keys) == 0 {
		return decimal.Zero, nil, ErrNoSelection
	}

	seen := make(map[string]struct{}, len(keys))
	sum := decimal.Zero
	var selected []PersonalOrder
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		po, ok := to.Find(k)
		if !ok {
			return decimal.Zero, nil, &UnknownPersonalOrderError{ID: k}
		}
		sum = sum.Add(po.Subtotal)
		selected = append(selected, *po)
	}
	return sum, selected, nil
}

// Introduced returns the personal orders of next that current does not have.
func Introduced(current, next *TableOrder) []PersonalOrder {
	if next == nil {
		return nil
	}
	var out []PersonalOrder
	for _, po := range next.PersonalOrders {
		if _, ok := current.Find(po.ID); !ok {
			out = append(out, po)
		}
	}
	return out
}

// orderees lists distinct customer names in order of first appearance.
func orderees(pos []PersonalOrder) []string {
	var names []string
	for _, po := range pos {
		if !slices.Contains(names, po.CustomerName) {
			names = append(names, po.CustomerName)
		}
	}
	return names
}

// UpdateFunc receives the current table order (nil when the table has none)
// and returns the state to persist. Returning nil deletes the table order.
type UpdateFunc func(current *TableOrder) (*TableOrder, error)

// Repository persists table orders keyed by table id.
type Repository interface {
	// Get returns ErrNotFound when the table has no outstanding order.
	Get(ctx context.Context, tableID string) (*TableOrder, error)
	// Update runs fn and stores its result as one atomic read-modify-write.
	// It returns ErrConcurrentModification when another writer won the race.
	// Every personal order introduced by an update is remembered for good;
	// introducing one that was remembered before fails with
	// ErrAlreadyRecorded and stores nothing.
	Update(ctx context.Context, tableID string, fn UpdateFunc) (*TableOrder, error)
	// Recorded returns the personal order as it was first stored on the
	// table, whether or not it is still outstanding. It returns ErrNotFound
	// for an id that was never stored.
	Recorded(ctx context.Context, tableID, id string) (*PersonalOrder, error)
}
