package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tableside/internal/domain/menu"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/tip"
)

// Sentinel errors for cart operations.
var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrLineNotFound = errors.New("cart line not found")
	ErrConflict     = errors.New("cart was modified concurrently")
)

// Key identifies the cart of one diner at one table.
type Key struct {
	TableID    string
	CustomerID string
}

// Line is a menu item snapshot plus the diner's customization of it.
type Line struct {
	ID        string            `json:"id"`
	Item      menu.Item         `json:"item"`
	Selection pricing.Selection `json:"selection"`
	AddedAt   time.Time         `json:"addedAt"`
}

// Cart is the ordered list of lines a diner has not submitted yet.
type Cart struct {
	TableID    string `json:"tableId"`
	CustomerID string `json:"customerId"`
	// SubmissionID becomes the id of the personal order or order created
	// from this cart. It only changes after a submission has been cleared,
	// so a retried submission records nothing twice.
	SubmissionID string    `json:"submissionId"`
	Lines        []Line    `json:"lines"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Totals is the priced view of a cart.
type Totals struct {
	Lines    []pricing.Line
	Subtotal decimal.Decimal
	Tip      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals prices every line, sums the subtotal and adds the tip.
func ComputeTotals(lines []Line, spec tip.Spec) (Totals, error) {
	priced := Price(lines)
	subtotal := pricing.Subtotal(priced)

	tipAmount, err := spec.Amount(subtotal)
	if err != nil {
		return Totals{}, err
	}

	return Totals{
		Lines:    priced,
		Subtotal: subtotal,
		Tip:      tipAmount,
		Total:    subtotal.Add(tipAmount),
	}, nil
}

// Price resolves each cart line into a priced snapshot carrying the cart
// line id.
func Price(lines []Line) []pricing.Line {
	priced := make([]pricing.Line, len(lines))
	for i, l := range lines {
		priced[i] = pricing.Resolve(l.Item, l.Selection)
		priced[i].ID = l.ID
	}
	return priced
}

func (c *Cart) line(id string) (int, bool) {
	for i := range c.Lines {
		if c.Lines[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// removeLines drops every line whose id is in ids.
func (c *Cart) removeLines(ids map[string]struct{}) {
	kept := c.Lines[:0]
	for _, l := range c.Lines {
		if _, gone := ids[l.ID]; !gone {
			kept = append(kept, l)
		}
	}
	c.Lines = kept
}

// Repository stores in-progress carts. Get returns an unsaved NewCart when
// none is stored. Update applies fn atomically to the stored cart, starting
// from NewCart when none exists.
type Repository interface {
	Get(ctx context.Context, key Key) (*Cart, error)
	Update(ctx context.Context, key Key, fn func(*Cart) error) (*Cart, error)
	Delete(ctx context.Context, key Key) error
}
