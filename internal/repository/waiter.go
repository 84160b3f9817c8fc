package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableside/internal/domain/waiter"
)

const (
	waiterCallColumns = `id, table_id, note, created_at, acknowledged_at`

	createWaiterCallSQL = `INSERT INTO waiter_calls (id, table_id, note, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (table_id) WHERE acknowledged_at IS NULL DO NOTHING`

	getOpenWaiterCallSQL = `SELECT ` + waiterCallColumns + ` FROM waiter_calls
	WHERE table_id = $1 AND acknowledged_at IS NULL`

	listOpenWaiterCallsSQL = `SELECT ` + waiterCallColumns + ` FROM waiter_calls
	WHERE acknowledged_at IS NULL ORDER BY created_at`

	ackWaiterCallSQL = `UPDATE waiter_calls SET acknowledged_at = COALESCE(acknowledged_at, $2)
	WHERE id = $1
	RETURNING ` + waiterCallColumns

	// createOpenAttempts bounds the insert/select loop when calls are
	// acknowledged between the two statements.
	createOpenAttempts = 3
)

var _ waiter.Repository = (*WaiterCallRepository)(nil)

// WaiterCallRepository implements waiter.Repository backed by PostgreSQL. A
// partial unique index keeps one open call per table.
type WaiterCallRepository struct {
	pool *pgxpool.Pool
}

// NewWaiterCallRepository returns a WaiterCallRepository that uses the given
// pool.
func NewWaiterCallRepository(pool *pgxpool.Pool) *WaiterCallRepository {
	return &WaiterCallRepository{pool: pool}
}

func (r *WaiterCallRepository) CreateOpen(ctx context.Context, c *waiter.Call) (*waiter.Call, bool, error) {
	for range createOpenAttempts {
		tag, err := r.pool.Exec(ctx, createWaiterCallSQL, c.ID, c.TableID, c.Note, c.CreatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("creating waiter call: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return c, true, nil
		}

		open, err := r.queryOne(ctx, getOpenWaiterCallSQL, c.TableID)
		if errors.Is(err, waiter.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return open, false, nil
	}
	return nil, false, errors.Errorf("open waiter call for table %s kept changing", c.TableID)
}

func (r *WaiterCallRepository) ListOpen(ctx context.Context) ([]waiter.Call, error) {
	rows, err := r.pool.Query(ctx, listOpenWaiterCallsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing waiter calls: %w", err)
	}
	return pgx.CollectRows(rows, scanWaiterCall)
}

func (r *WaiterCallRepository) Acknowledge(ctx context.Context, id string, at time.Time) (*waiter.Call, error) {
	return r.queryOne(ctx, ackWaiterCallSQL, id, at)
}

func (r *WaiterCallRepository) queryOne(ctx context.Context, sql string, args ...any) (*waiter.Call, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying waiter call: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanWaiterCall)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, waiter.ErrNotFound
		}
		return nil, fmt.Errorf("querying waiter call: %w", err)
	}
	return &c, nil
}

func scanWaiterCall(row pgx.CollectableRow) (waiter.Call, error) {
	var c waiter.Call
	err := row.Scan(&c.ID, &c.TableID, &c.Note, &c.CreatedAt, &c.AcknowledgedAt)
	return c, err
}
