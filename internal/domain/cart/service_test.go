package cart

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tableside/internal/domain/menu"
	"github.com/xenking/tableside/internal/domain/order"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/tableorder"
	"github.com/xenking/tableside/internal/domain/tableorder/tableordertest"
	"github.com/xenking/tableside/internal/domain/tip"
)

// --- Mock implementations ---

type mockCartRepo struct {
	carts     map[Key]*Cart
	updateErr error
	// failClear makes an Update fail when it would rotate the submission id.
	failClear bool
}

func newCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[Key]*Cart)}
}

func copyCart(c *Cart) *Cart {
	cp := *c
	cp.Lines = append([]Line(nil), c.Lines...)
	return &cp
}

func (m *mockCartRepo) Get(_ context.Context, key Key) (*Cart, error) {
	if c, ok := m.carts[key]; ok {
		return copyCart(c), nil
	}
	return NewCart(key, time.Now()), nil
}

func (m *mockCartRepo) Update(_ context.Context, key Key, fn func(*Cart) error) (*Cart, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	c, ok := m.carts[key]
	if !ok {
		c = NewCart(key, time.Now())
	}
	next := copyCart(c)
	if err := fn(next); err != nil {
		return nil, err
	}
	if m.failClear && next.SubmissionID != c.SubmissionID {
		return nil, errors.New("redis unavailable")
	}
	m.carts[key] = next
	return copyCart(next), nil
}

func (m *mockCartRepo) Delete(_ context.Context, key Key) error {
	delete(m.carts, key)
	return nil
}

type mockMenuRepo struct {
	items map[string]menu.Item
}

func (m *mockMenuRepo) List(_ context.Context, _ string) ([]menu.Item, error) { return nil, nil }

func (m *mockMenuRepo) GetByID(_ context.Context, id string) (*menu.Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, menu.ErrNotFound
	}
	return &it, nil
}

func (m *mockMenuRepo) GetByIDs(_ context.Context, _ []string) ([]menu.Item, error) { return nil, nil }

func (m *mockMenuRepo) Upsert(_ context.Context, _ *menu.Item) error { return nil }

type mockRecorder struct {
	recorded map[string]tableorder.PersonalOrder
	err      error
	calls    int
}

func (m *mockRecorder) RecordPersonalOrder(_ context.Context, _ string, po tableorder.PersonalOrder) (*tableorder.PersonalOrder, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.recorded == nil {
		m.recorded = make(map[string]tableorder.PersonalOrder)
	}
	if existing, ok := m.recorded[po.ID]; ok {
		return &existing, nil
	}
	m.recorded[po.ID] = po
	return &po, nil
}

type mockPlacer struct {
	placed map[string]*order.Order
	err    error
}

func (m *mockPlacer) PlaceOrder(_ context.Context, req order.PlaceOrderRequest) (*order.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.placed == nil {
		m.placed = make(map[string]*order.Order)
	}
	if o, ok := m.placed[req.ID]; ok {
		return o, nil
	}
	o := &order.Order{ID: req.ID, TableID: req.TableID, Status: order.StatusPending}
	for _, it := range req.Items {
		o.Items = append(o.Items, pricing.Line{ID: it.LineID, MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	m.placed[req.ID] = o
	return o, nil
}

// --- Helpers ---

var key = Key{TableID: "t1", CustomerID: "c1"}

func saladItem() menu.Item {
	return menu.Item{
		ID:        "salad",
		Name:      "Salad",
		Price:     d("9.00"),
		Available: true,
		Checklists: []menu.Checklist{{
			Name:        "Protein",
			Max:         2,
			Ingredients: []menu.Ingredient{{Name: "Chicken", Price: d("3.00"), Max: 1}},
		}},
	}
}

type fixture struct {
	svc      *Service
	carts    *mockCartRepo
	recorder *mockRecorder
	placer   *mockPlacer
}

func newFixture() *fixture {
	f := &fixture{
		carts:    newCartRepo(),
		recorder: &mockRecorder{},
		placer:   &mockPlacer{},
	}
	items := &mockMenuRepo{items: map[string]menu.Item{"salad": saladItem()}}
	f.svc = NewService(f.carts, items, f.recorder, f.placer)
	return f
}

func (f *fixture) addSalad(t *testing.T, qty int) *Line {
	t.Helper()
	_, line, err := f.svc.AddLine(context.Background(), key, "salad", pricing.Selection{
		Ingredients: map[string][]string{"Protein": {"Chicken"}},
		Quantity:    qty,
	})
	require.NoError(t, err)
	return line
}

// --- Tests ---

func TestAddLine(t *testing.T) {
	f := newFixture()
	f.addSalad(t, 2)

	c, totals, err := f.svc.Totals(context.Background(), key, tip.None())
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.True(t, d("24.00").Equal(totals.Subtotal))
}

func TestAddLine_DefaultsQuantity(t *testing.T) {
	f := newFixture()

	_, line, err := f.svc.AddLine(context.Background(), key, "salad", pricing.Selection{})
	require.NoError(t, err)
	assert.Equal(t, 1, line.Selection.Quantity)
}

func TestAddLine_InvalidSelection(t *testing.T) {
	f := newFixture()

	_, _, err := f.svc.AddLine(context.Background(), key, "salad", pricing.Selection{
		Ingredients: map[string][]string{"Protein": {"Chicken", "Chicken"}},
		Quantity:    1,
	})

	var selErr *pricing.SelectionInvalidError
	require.ErrorAs(t, err, &selErr)
	assert.Empty(t, f.carts.carts)
}

func TestAddLine_UnknownItem(t *testing.T) {
	f := newFixture()

	_, _, err := f.svc.AddLine(context.Background(), key, "nope", pricing.Selection{Quantity: 1})
	require.ErrorIs(t, err, menu.ErrNotFound)
}

func TestUpdateQuantity(t *testing.T) {
	f := newFixture()
	line := f.addSalad(t, 1)

	c, err := f.svc.UpdateQuantity(context.Background(), key, line.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Lines[0].Selection.Quantity)

	c, err = f.svc.UpdateQuantity(context.Background(), key, line.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)

	_, err = f.svc.UpdateQuantity(context.Background(), key, line.ID, 1)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestSubmit_RecordsAndClears(t *testing.T) {
	f := newFixture()
	f.addSalad(t, 1)
	f.addSalad(t, 2)

	po, err := f.svc.Submit(context.Background(), key, " Dana ")
	require.NoError(t, err)
	assert.Equal(t, "Dana", po.CustomerName)
	assert.Equal(t, "c1", po.CustomerID)
	assert.True(t, d("36.00").Equal(po.Subtotal))

	c, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
	assert.NotEqual(t, po.ID, c.SubmissionID)
	assert.Len(t, f.recorder.recorded, 1)
}

func TestSubmit_RecordFailureLeavesCartIntact(t *testing.T) {
	f := newFixture()
	f.addSalad(t, 1)
	before, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)

	f.recorder.err = errors.New("db down")
	_, err = f.svc.Submit(context.Background(), key, "Dana")
	require.Error(t, err)

	after, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.recorder.recorded)
}

func TestSubmit_RetryAfterClearFailureDoesNotDuplicate(t *testing.T) {
	f := newFixture()
	f.addSalad(t, 1)

	f.carts.failClear = true
	_, err := f.svc.Submit(context.Background(), key, "Dana")
	require.Error(t, err)

	c, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)

	f.carts.failClear = false
	_, err = f.svc.Submit(context.Background(), key, "Dana")
	require.NoError(t, err)

	assert.Equal(t, 2, f.recorder.calls)
	assert.Len(t, f.recorder.recorded, 1)
	c, err = f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}

func TestSubmit_RetryAfterSettlementDoesNotReopen(t *testing.T) {
	ctx := context.Background()
	carts := newCartRepo()
	tables := tableorder.NewService(tableordertest.NewRepo(), 0)
	items := &mockMenuRepo{items: map[string]menu.Item{"salad": saladItem()}}
	svc := NewService(carts, items, tables, &mockPlacer{})

	_, _, err := svc.AddLine(ctx, key, "salad", pricing.Selection{Quantity: 1})
	require.NoError(t, err)

	carts.failClear = true
	_, err = svc.Submit(ctx, key, "Dana")
	require.Error(t, err)
	carts.failClear = false

	c, err := svc.Get(ctx, key)
	require.NoError(t, err)
	res, err := tables.Settle(ctx, key.TableID, []string{c.SubmissionID})
	require.NoError(t, err)
	require.Len(t, res.Settled, 1)

	po, err := svc.Submit(ctx, key, "Dana")
	require.NoError(t, err)
	assert.Equal(t, c.SubmissionID, po.ID)

	_, err = tables.Get(ctx, key.TableID)
	require.ErrorIs(t, err, tableorder.ErrNotFound, "a paid personal order must stay paid")

	c, err = svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}

func TestSubmit_KeepsLinesAddedAfterFailedClear(t *testing.T) {
	f := newFixture()
	f.addSalad(t, 1)

	f.carts.failClear = true
	_, err := f.svc.Submit(context.Background(), key, "Dana")
	require.Error(t, err)
	f.carts.failClear = false

	late := f.addSalad(t, 5)

	_, err = f.svc.Submit(context.Background(), key, "Dana")
	require.NoError(t, err)

	c, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, late.ID, c.Lines[0].ID)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Submit(context.Background(), key, "Dana")
	require.ErrorIs(t, err, ErrEmptyCart)

	f.addSalad(t, 1)
	_, err = f.svc.Submit(context.Background(), key, "  ")
	require.ErrorIs(t, err, ErrCustomerNameRequired)
	assert.Zero(t, f.recorder.calls)
}

func TestCheckout(t *testing.T) {
	f := newFixture()
	line := f.addSalad(t, 1)

	o, err := f.svc.Checkout(context.Background(), key, tip.Percent(15), "pi_1")
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, line.ID, o.Items[0].ID)

	c, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
	assert.Len(t, f.placer.placed, 1)
}

func TestCheckout_FailureLeavesCartIntact(t *testing.T) {
	f := newFixture()
	f.addSalad(t, 1)
	f.placer.err = errors.New("boom")

	_, err := f.svc.Checkout(context.Background(), key, tip.None(), "")
	require.Error(t, err)

	c, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)
	assert.Empty(t, f.placer.placed)
}

func TestCheckout_InvalidTip(t *testing.T) {
	f := newFixture()
	f.addSalad(t, 1)

	_, err := f.svc.Checkout(context.Background(), key, tip.Spec{Kind: tip.KindPercentage, Value: d("120")}, "")
	require.ErrorIs(t, err, tip.ErrInvalidTip)
}

func TestClear(t *testing.T) {
	f := newFixture()
	f.addSalad(t, 1)

	require.NoError(t, f.svc.Clear(context.Background(), key))

	c, err := f.svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}
