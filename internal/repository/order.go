package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableside/internal/domain/order"
)

const (
	orderColumns = `id, table_id, status, items, subtotal, tip, total, payment_reference, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
	WHERE id = $1 AND status = $2
	RETURNING ` + orderColumns
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column. An existing id is left untouched and the
// stored order is returned instead.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling order items: %w", err)
	}

	tag, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.TableID, string(o.Status), itemsJSON, o.Subtotal, o.Tip, o.Total, o.PaymentReference,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		stored, err := r.Get(ctx, o.ID)
		if err != nil {
			return nil, false, err
		}
		return stored, false, nil
	}
	return o, true, nil
}

// Get returns the order with the given id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.queryOne(ctx, getOrderSQL, id)
}

// UpdateStatus compares and swaps the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	o, err := r.queryOne(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if errors.Is(err, order.ErrNotFound) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, errors.Wrapf(order.ErrInvalidTransition, "order %s is no longer %s", id, from)
	}
	return o, err
}

func (r *OrderRepository) queryOne(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
		items  []byte
	)
	err := row.Scan(
		&o.ID, &o.TableID, &status, &items, &o.Subtotal, &o.Tip, &o.Total, &o.PaymentReference,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decoding items of order %q: %w", o.ID, err)
	}
	return o, nil
}
