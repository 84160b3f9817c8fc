package payment

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/tableorder"
	"github.com/xenking/tableside/internal/domain/tableorder/tableordertest"
	"github.com/xenking/tableside/internal/domain/tip"
)

// --- Mock implementations ---

// mockRepo keeps payments in memory and applies the same hold and overpaid
// rules as the Postgres repository.
type mockRepo struct {
	payments map[string]*Payment
}

func newMockRepo() *mockRepo {
	return &mockRepo{payments: make(map[string]*Payment)}
}

func overlap(a, b []string) []string {
	var out []string
	for _, id := range a {
		if slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (m *mockRepo) Create(_ context.Context, p *Payment, heldSince time.Time) error {
	for _, other := range m.payments {
		if other.TableID != p.TableID || other.Status != StatusPending || !other.CreatedAt.After(heldSince) {
			continue
		}
		if shared := overlap(other.PersonalOrderIDs, p.PersonalOrderIDs); len(shared) > 0 {
			return &HeldError{PaymentID: other.ID, PersonalOrderIDs: shared}
		}
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByProviderRef(_ context.Context, ref string) (*Payment, error) {
	for _, p := range m.payments {
		if p.ProviderRef == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) AttachIntent(_ context.Context, id, ref, secret string) error {
	p, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.ProviderRef = ref
	p.ClientSecret = secret
	return nil
}

func (m *mockRepo) Finish(_ context.Context, id string, status Status, reason string) (*Payment, bool, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if p.Status != StatusPending {
		cp := *p
		return &cp, false, nil
	}
	if status == StatusSucceeded {
		var paid []string
		for _, other := range m.payments {
			if other.ID != id && other.TableID == p.TableID && other.Status == StatusSucceeded {
				paid = append(paid, overlap(other.PersonalOrderIDs, p.PersonalOrderIDs)...)
			}
		}
		if len(paid) > 0 {
			status = StatusOverpaid
			reason = "personal orders already paid: " + strings.Join(paid, ", ")
		}
	}
	p.Status = status
	p.FailureReason = reason
	cp := *p
	return &cp, true, nil
}

type mockGateway struct {
	requests  []IntentRequest
	createErr error
	fetched   *Confirmation
}

func (m *mockGateway) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	m.requests = append(m.requests, req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &Intent{ID: "pi_" + req.PaymentID, ClientSecret: "secret_" + req.PaymentID}, nil
}

func (m *mockGateway) FetchIntent(_ context.Context, _ string) (*Confirmation, error) {
	if m.fetched == nil {
		return nil, errors.New("not found")
	}
	return m.fetched, nil
}

// recordingTables runs a real table order service and records settlements.
// settleErr makes Settle fail before touching the table order.
type recordingTables struct {
	*tableorder.Service
	settleErr error
	settles   [][]string
}

func (m *recordingTables) Settle(ctx context.Context, tableID string, keys []string) (tableorder.Settlement, error) {
	if m.settleErr != nil {
		return tableorder.Settlement{}, m.settleErr
	}
	m.settles = append(m.settles, keys)
	return m.Service.Settle(ctx, tableID, keys)
}

// --- Helpers ---

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	svc     *Service
	repo    *mockRepo
	gateway *mockGateway
	tables  *recordingTables
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMockRepo(),
		gateway: &mockGateway{},
		tables:  &recordingTables{Service: tableorder.NewService(tableordertest.NewRepo(), 0)},
		clock:   time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(f.repo, f.gateway, f.tables, "USD", noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	svc.now = func() time.Time { return f.clock }
	f.svc = svc
	f.record(t, "A", "40.00")
	return f
}

// record puts a personal order of the given subtotal on table t1.
func (f *fixture) record(t *testing.T, id, amount string) {
	t.Helper()
	price := d(amount)
	line := pricing.Line{MenuItemID: "m", Name: "Dish", Quantity: 1, UnitPrice: price, LineTotal: price}
	_, err := f.tables.RecordPersonalOrder(context.Background(), "t1",
		tableorder.NewPersonalOrder(id, "c-"+id, "Guest "+id, []pricing.Line{line}, f.clock))
	require.NoError(t, err)
}

func (f *fixture) create(t *testing.T, ids ...string) *Payment {
	t.Helper()
	if len(ids) == 0 {
		ids = []string{"A"}
	}
	p, err := f.svc.Create(context.Background(), CreateRequest{
		TableID:          "t1",
		PersonalOrderIDs: ids,
		Tip:              tip.Percent(15),
	})
	require.NoError(t, err)
	return p
}

func succeeded(p *Payment) Confirmation {
	return Confirmation{ProviderRef: p.ProviderRef, Outcome: OutcomeSucceeded, Amount: p.Amount, Currency: "usd"}
}

// --- Tests ---

func TestCreate(t *testing.T) {
	f := newFixture(t)

	p := f.create(t)

	assert.Equal(t, StatusPending, p.Status)
	assert.True(t, d("40.00").Equal(p.Subtotal))
	assert.True(t, d("6.00").Equal(p.Tip))
	assert.True(t, d("46.00").Equal(p.Amount))
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, []string{"A"}, p.PersonalOrderIDs)
	assert.Equal(t, "pi_"+p.ID, p.ProviderRef)
	assert.NotEmpty(t, p.ClientSecret)

	require.Len(t, f.gateway.requests, 1)
	assert.True(t, d("46.00").Equal(f.gateway.requests[0].Amount))
	assert.Empty(t, f.tables.settles, "creating a payment must not settle")
	to, err := f.tables.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, to.PersonalOrders, 1)

	stored, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ProviderRef, stored.ProviderRef)
}

func TestCreate_GatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = errors.New("card_declined")

	_, err := f.svc.Create(context.Background(), CreateRequest{TableID: "t1", PersonalOrderIDs: []string{"A"}})

	require.ErrorIs(t, err, ErrPaymentFailed)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Empty(t, f.tables.settles)
	for _, p := range f.repo.payments {
		assert.Equal(t, StatusFailed, p.Status)
	}
}

func TestCreate_Disabled(t *testing.T) {
	tables := &recordingTables{Service: tableorder.NewService(tableordertest.NewRepo(), 0)}
	svc, err := NewService(newMockRepo(), nil, tables, "usd", noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateRequest{TableID: "t1", PersonalOrderIDs: []string{"A"}})
	require.ErrorIs(t, err, ErrPaymentsDisabled)
}

func TestCreate_QuoteError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{TableID: "t1", PersonalOrderIDs: []string{"Z"}})

	var unknown *tableorder.UnknownPersonalOrderError
	require.ErrorAs(t, err, &unknown)
	assert.Empty(t, f.gateway.requests)
}

func TestCreate_NothingToPay(t *testing.T) {
	f := newFixture(t)
	f.record(t, "free", "0.00")

	_, err := f.svc.Create(context.Background(), CreateRequest{TableID: "t1", PersonalOrderIDs: []string{"free"}})
	require.ErrorIs(t, err, ErrNothingToPay)
	assert.Empty(t, f.repo.payments)
}

func TestCreate_HeldByPendingPayment(t *testing.T) {
	f := newFixture(t)
	f.record(t, "B", "10.00")
	first := f.create(t, "A", "B")

	tests := []struct {
		name string
		ids  []string
		held []string
	}{
		{name: "same selection", ids: []string{"A", "B"}, held: []string{"A", "B"}},
		{name: "partial overlap", ids: []string{"B"}, held: []string{"B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), CreateRequest{TableID: "t1", PersonalOrderIDs: tt.ids})
			require.ErrorIs(t, err, ErrAlreadyInPayment)

			var held *HeldError
			require.ErrorAs(t, err, &held)
			assert.Equal(t, first.ID, held.PaymentID)
			assert.Equal(t, tt.held, held.PersonalOrderIDs)
		})
	}
	assert.Len(t, f.gateway.requests, 1, "a held selection must not open an intent")
	assert.Len(t, f.repo.payments, 1)
}

func TestCreate_FinishedPaymentDoesNotHold(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = errors.New("card_declined")
	_, err := f.svc.Create(context.Background(), CreateRequest{TableID: "t1", PersonalOrderIDs: []string{"A"}})
	require.ErrorIs(t, err, ErrPaymentFailed)

	f.gateway.createErr = nil
	p := f.create(t)
	assert.Equal(t, StatusPending, p.Status)
}

func TestCreate_StalePendingDoesNotHold(t *testing.T) {
	f := newFixture(t)
	stale := f.create(t)

	f.clock = f.clock.Add(PendingHold + time.Minute)
	fresh := f.create(t)
	assert.NotEqual(t, stale.ID, fresh.ID)
}

func TestConfirm_OverlappingPaymentsOverpaid(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	f := newFixture(t)
	first := f.create(t)
	f.clock = f.clock.Add(PendingHold + time.Minute)
	second := f.create(t)

	got, err := f.svc.Confirm(ctx, succeeded(first))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	_, err = f.tables.Get(ctx, "t1")
	require.ErrorIs(t, err, tableorder.ErrNotFound)

	got, err = f.svc.Confirm(ctx, succeeded(second))
	require.NoError(t, err)
	assert.Equal(t, StatusOverpaid, got.Status)
	assert.Equal(t, "personal orders already paid: A", got.FailureReason)

	entries := logs.FilterMessage("Payment overpaid, refund needed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].ContextMap()["payment_id"])
	assert.Equal(t, "0.00", entries[0].ContextMap()["settled"])

	again, err := f.svc.Confirm(ctx, succeeded(second))
	require.NoError(t, err)
	assert.Equal(t, StatusOverpaid, again.Status)
	assert.Equal(t, 1, logs.FilterMessage("Payment overpaid, refund needed").Len())

	stored, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, stored.Status)
}

func TestConfirm_SettleRetryAfterFinishIsNotOverpaid(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	// The personal order was settled by an earlier attempt that failed
	// before the payment was finished.
	_, err := f.tables.Service.Settle(context.Background(), "t1", []string{"A"})
	require.NoError(t, err)

	got, err := f.svc.Confirm(context.Background(), succeeded(p))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestConfirm_SucceededSettlesOnce(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	got, err := f.svc.Confirm(context.Background(), succeeded(p))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)

	again, err := f.svc.Confirm(context.Background(), succeeded(p))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, again.Status)

	require.Len(t, f.tables.settles, 1)
	assert.Equal(t, []string{"A"}, f.tables.settles[0])
	_, err = f.tables.Get(context.Background(), "t1")
	require.ErrorIs(t, err, tableorder.ErrNotFound)
}

func TestConfirm_FailedDoesNotSettle(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	got, err := f.svc.Confirm(context.Background(), Confirmation{
		ProviderRef:   p.ProviderRef,
		Outcome:       OutcomeFailed,
		FailureReason: "insufficient_funds",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "insufficient_funds", got.FailureReason)

	late, err := f.svc.Confirm(context.Background(), succeeded(p))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, late.Status)
	assert.Empty(t, f.tables.settles)
}

func TestConfirm_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	c := succeeded(p)
	c.Amount = d("1.00")
	got, err := f.svc.Confirm(context.Background(), c)

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Empty(t, f.tables.settles)
}

func TestConfirm_SettleErrorKeepsPending(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)
	f.tables.settleErr = tableorder.ErrConcurrentModification

	_, err := f.svc.Confirm(context.Background(), succeeded(p))
	require.ErrorIs(t, err, tableorder.ErrConcurrentModification)

	stored, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	f.tables.settleErr = nil
	got, err := f.svc.Confirm(context.Background(), succeeded(p))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestConfirm_PendingOutcome(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	got, err := f.svc.Confirm(context.Background(), Confirmation{ProviderRef: p.ProviderRef, Outcome: OutcomePending})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestConfirm_UnknownRef(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), Confirmation{ProviderRef: "pi_unknown", Outcome: OutcomeSucceeded})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSync(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)
	c := succeeded(p)
	f.gateway.fetched = &c

	got, err := f.svc.Sync(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)

	got, err = f.svc.Sync(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Len(t, f.tables.settles, 1)
}
