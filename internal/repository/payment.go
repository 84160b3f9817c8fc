package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableside/internal/domain/payment"
	"github.com/xenking/tableside/internal/domain/table"
)

const (
	paymentColumns = `id, table_id, personal_order_ids, subtotal, tip, amount, currency, status,
	provider_ref, client_secret, failure_reason, created_at, updated_at`

	createPaymentSQL = `INSERT INTO payments (` + paymentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13)`

	getPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	getPaymentByRefSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE provider_ref = $1`

	attachIntentSQL = `UPDATE payments SET provider_ref = $2, client_secret = $3, updated_at = now()
	WHERE id = $1`

	finishPaymentSQL = `UPDATE payments SET status = $2, failure_reason = $3, updated_at = now()
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + paymentColumns

	// lockTableSQL serializes payment writes of one table.
	lockTableSQL = `SELECT id FROM restaurant_tables WHERE id = $1 FOR UPDATE`

	heldPaymentSQL = `SELECT id, ARRAY(SELECT unnest(personal_order_ids) INTERSECT SELECT unnest($2::text[]) ORDER BY 1)
	FROM payments
	WHERE table_id = $1 AND status = 'pending' AND created_at > $3 AND personal_order_ids && $2::text[]
	ORDER BY created_at
	LIMIT 1`

	paidElsewhereSQL = `SELECT COALESCE(array_agg(DISTINCT u.po_id ORDER BY u.po_id), '{}')
	FROM payments o, unnest(o.personal_order_ids) AS u(po_id)
	WHERE o.table_id = $1 AND o.id <> $2 AND o.status = 'succeeded' AND u.po_id = ANY($3::text[])`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts p after checking, under the table's row lock, that no
// payment pending since after heldSince covers its personal orders.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment, heldSince time.Time) (rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := lockTable(ctx, tx, p.TableID); err != nil {
		return err
	}

	var (
		heldBy string
		held   []string
	)
	err = tx.QueryRow(ctx, heldPaymentSQL, p.TableID, nonNil(p.PersonalOrderIDs), heldSince).Scan(&heldBy, &held)
	switch {
	case err == nil:
		return &payment.HeldError{PaymentID: heldBy, PersonalOrderIDs: held}
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("checking held personal orders: %w", err)
	}

	_, err = tx.Exec(ctx, createPaymentSQL,
		p.ID, p.TableID, nonNil(p.PersonalOrderIDs), p.Subtotal, p.Tip, p.Amount, p.Currency, string(p.Status),
		p.ProviderRef, p.ClientSecret, p.FailureReason, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return r.queryOne(ctx, getPaymentSQL, id)
}

func (r *PaymentRepository) GetByProviderRef(ctx context.Context, ref string) (*payment.Payment, error) {
	return r.queryOne(ctx, getPaymentByRefSQL, ref)
}

func (r *PaymentRepository) AttachIntent(ctx context.Context, id, providerRef, clientSecret string) error {
	tag, err := r.pool.Exec(ctx, attachIntentSQL, id, providerRef, clientSecret)
	if err != nil {
		return fmt.Errorf("attaching intent to payment %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// Finish moves a pending payment to status. It reports false when the
// payment had already left pending. Succeeded payments are checked against
// the other succeeded payments of the table under its row lock and stored
// as overpaid when they share a personal order.
func (r *PaymentRepository) Finish(ctx context.Context, id string, status payment.Status, reason string) (_ *payment.Payment, _ bool, rerr error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status != payment.StatusPending {
		return current, false, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if status == payment.StatusSucceeded {
		if err := lockTable(ctx, tx, current.TableID); err != nil {
			return nil, false, err
		}
		var paid []string
		if err := tx.QueryRow(ctx, paidElsewhereSQL, current.TableID, id, nonNil(current.PersonalOrderIDs)).Scan(&paid); err != nil {
			return nil, false, fmt.Errorf("checking paid personal orders: %w", err)
		}
		if len(paid) > 0 {
			status = payment.StatusOverpaid
			reason = "personal orders already paid: " + strings.Join(paid, ", ")
		}
	}

	rows, err := tx.Query(ctx, finishPaymentSQL, id, string(status), reason)
	if err != nil {
		return nil, false, fmt.Errorf("finishing payment %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another writer finished it between the read and the update.
		_ = tx.Rollback(ctx)
		stored, err := r.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return stored, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("finishing payment %q: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return &p, true, nil
}

func lockTable(ctx context.Context, tx pgx.Tx, tableID string) error {
	var id string
	if err := tx.QueryRow(ctx, lockTableSQL, tableID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return table.ErrNotFound
		}
		return fmt.Errorf("locking table %q: %w", tableID, err)
	}
	return nil
}

func (r *PaymentRepository) queryOne(ctx context.Context, sql string, arg string) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	return &p, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		status string
		ref    *string
	)
	err := row.Scan(
		&p.ID, &p.TableID, &p.PersonalOrderIDs, &p.Subtotal, &p.Tip, &p.Amount, &p.Currency, &status,
		&ref, &p.ClientSecret, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Status = payment.Status(status)
	if ref != nil {
		p.ProviderRef = *ref
	}
	return p, err
}
