//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tableside/internal/domain/feedback"
	"github.com/xenking/tableside/internal/domain/order"
	"github.com/xenking/tableside/internal/domain/payment"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/waiter"
)

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	seedTable(t, "tbl-orders", 804)
	repo := NewOrderRepository(testPool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &order.Order{
		ID:      uuid.New().String(),
		TableID: "tbl-orders",
		Status:  order.StatusPending,
		Items: []pricing.Line{{
			ID: "l1", MenuItemID: "m1", Name: "Burger", Quantity: 2,
			Selection: pricing.Selection{Exclusions: []string{"onion"}, Instructions: "well done", Quantity: 2},
			UnitPrice: decimal.RequireFromString("10.50"), LineTotal: decimal.RequireFromString("21.00"),
		}},
		Subtotal:  decimal.RequireFromString("21.00"),
		Tip:       decimal.RequireFromString("3.15"),
		Total:     decimal.RequireFromString("24.15"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, created, err := repo.Create(ctx, o)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, o.ID, stored.ID)

	dup := *o
	dup.Total = decimal.NewFromInt(1)
	stored, created, err = repo.Create(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, o.Total.Equal(stored.Total))
	assert.Equal(t, []string{"onion"}, stored.Items[0].Selection.Exclusions)

	advanced, err := repo.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPreparing, advanced.Status)

	_, err = repo.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusPreparing)
	require.ErrorIs(t, err, order.ErrInvalidTransition)

	_, err = repo.UpdateStatus(ctx, uuid.New().String(), order.StatusPending, order.StatusPreparing)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func pendingPayment(tableID string, ids ...string) *payment.Payment {
	now := time.Now()
	return &payment.Payment{
		ID:               uuid.New().String(),
		TableID:          tableID,
		PersonalOrderIDs: ids,
		Subtotal:         decimal.NewFromInt(60),
		Tip:              decimal.NewFromInt(6),
		Amount:           decimal.NewFromInt(66),
		Currency:         "usd",
		Status:           payment.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestPaymentRepository(t *testing.T) {
	ctx := context.Background()
	seedTable(t, "tbl-payments", 805)
	repo := NewPaymentRepository(testPool)

	p := pendingPayment("tbl-payments", "A", "B")
	require.NoError(t, repo.Create(ctx, p, time.Now().Add(-payment.PendingHold)))
	require.NoError(t, repo.AttachIntent(ctx, p.ID, "pi_"+p.ID, "secret"))

	got, err := repo.GetByProviderRef(ctx, "pi_"+p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.PersonalOrderIDs)
	assert.True(t, p.Amount.Equal(got.Amount))

	finished, changed, err := repo.Finish(ctx, p.ID, payment.StatusSucceeded, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, payment.StatusSucceeded, finished.Status)

	finished, changed, err = repo.Finish(ctx, p.ID, payment.StatusFailed, "late")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, payment.StatusSucceeded, finished.Status)

	got, err = repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, got.Status)

	_, _, err = repo.Finish(ctx, uuid.New().String(), payment.StatusFailed, "")
	require.ErrorIs(t, err, payment.ErrNotFound)
}

func TestPaymentRepository_OverlappingPayments(t *testing.T) {
	ctx := context.Background()
	seedTable(t, "tbl-overlap", 809)
	repo := NewPaymentRepository(testPool)
	heldSince := time.Now().Add(-payment.PendingHold)

	first := pendingPayment("tbl-overlap", "A", "B")
	require.NoError(t, repo.Create(ctx, first, heldSince))

	err := repo.Create(ctx, pendingPayment("tbl-overlap", "B", "C"), heldSince)
	var held *payment.HeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, first.ID, held.PaymentID)
	assert.Equal(t, []string{"B"}, held.PersonalOrderIDs)

	require.NoError(t, repo.Create(ctx, pendingPayment("tbl-overlap", "C"), heldSince))

	// Once the hold has lapsed a second payment can start; if both are then
	// confirmed the later one is stored as overpaid.
	second := pendingPayment("tbl-overlap", "A")
	require.NoError(t, repo.Create(ctx, second, time.Now().Add(time.Minute)))

	got, changed, err := repo.Finish(ctx, first.ID, payment.StatusSucceeded, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, payment.StatusSucceeded, got.Status)

	got, changed, err = repo.Finish(ctx, second.ID, payment.StatusSucceeded, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, payment.StatusOverpaid, got.Status)
	assert.Equal(t, "personal orders already paid: A", got.FailureReason)
}

func TestWaiterCallRepository(t *testing.T) {
	ctx := context.Background()
	seedTable(t, "tbl-waiter", 806)
	svc := waiter.NewService(NewWaiterCallRepository(testPool))

	first, created, err := svc.Call(ctx, "tbl-waiter", "water please")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.Call(ctx, "tbl-waiter", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	acked, err := svc.Acknowledge(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, acked.AcknowledgedAt)

	ackedAgain, err := svc.Acknowledge(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, acked.AcknowledgedAt.Equal(*ackedAgain.AcknowledgedAt))

	_, created, err = svc.Call(ctx, "tbl-waiter", "")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestFeedbackRepository(t *testing.T) {
	seedTable(t, "tbl-feedback", 807)
	svc := feedback.NewService(NewFeedbackRepository(testPool))

	f, err := svc.Submit(context.Background(), "tbl-feedback", 5, "great")
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
}
