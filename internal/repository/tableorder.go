package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableside/internal/domain/tableorder"
)

const (
	tableOrderColumns = `table_id, id, version, orderees, personal_orders, created_at, updated_at`

	getTableOrderSQL = `SELECT ` + tableOrderColumns + ` FROM table_orders WHERE table_id = $1`

	lockTableOrderSQL = getTableOrderSQL + ` FOR UPDATE`

	insertTableOrderSQL = `INSERT INTO table_orders (` + tableOrderColumns + `)
		VALUES ($1, $2, 1, $3, $4, $5, $6)`

	updateTableOrderSQL = `UPDATE table_orders
		SET version = version + 1, orderees = $3, personal_orders = $4, updated_at = $5
		WHERE table_id = $1 AND version = $2`

	deleteTableOrderSQL = `DELETE FROM table_orders WHERE table_id = $1 AND version = $2`

	recordPersonalOrderSQL = `INSERT INTO recorded_personal_orders (table_id, id, personal_order, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (table_id, id) DO NOTHING`

	getRecordedPersonalOrderSQL = `SELECT personal_order FROM recorded_personal_orders
		WHERE table_id = $1 AND id = $2`
)

var _ tableorder.Repository = (*TableOrderRepository)(nil)

// TableOrderRepository implements tableorder.Repository backed by PostgreSQL.
// Each table has at most one row; personal orders are stored as JSONB.
type TableOrderRepository struct {
	pool *pgxpool.Pool
}

// NewTableOrderRepository returns a TableOrderRepository that uses the given
// pool.
func NewTableOrderRepository(pool *pgxpool.Pool) *TableOrderRepository {
	return &TableOrderRepository{pool: pool}
}

// Get returns the outstanding table order of tableID.
func (r *TableOrderRepository) Get(ctx context.Context, tableID string) (*tableorder.TableOrder, error) {
	to, err := queryTableOrder(ctx, r.pool, getTableOrderSQL, tableID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, tableorder.ErrNotFound
	}
	return to, nil
}

// Update locks the table's row, applies fn and writes the result in the same
// transaction. The version predicate and the primary key on table_id turn a
// lost race into tableorder.ErrConcurrentModification. Introduced personal
// orders are added to recorded_personal_orders in that transaction too.
func (r *TableOrderRepository) Update(ctx context.Context, tableID string, fn tableorder.UpdateFunc) (_ *tableorder.TableOrder, rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin table order tx: %w", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := queryTableOrder(ctx, tx, lockTableOrderSQL, tableID)
	if err != nil {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	switch {
	case next == current:
		// Nothing to write.
	case next == nil:
		if err := execVersioned(ctx, tx, deleteTableOrderSQL, tableID, current.Version); err != nil {
			return nil, err
		}
	case current == nil:
		pos, err := json.Marshal(next.PersonalOrders)
		if err != nil {
			return nil, fmt.Errorf("marshaling personal orders: %w", err)
		}
		_, err = tx.Exec(ctx, insertTableOrderSQL,
			tableID, next.ID, nonNil(next.Orderees), pos, next.CreatedAt, next.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, tableorder.ErrConcurrentModification
			}
			return nil, fmt.Errorf("inserting table order %q: %w", tableID, err)
		}
		next.TableID = tableID
		next.Version = 1
	default:
		pos, err := json.Marshal(next.PersonalOrders)
		if err != nil {
			return nil, fmt.Errorf("marshaling personal orders: %w", err)
		}
		if err := execVersioned(ctx, tx, updateTableOrderSQL,
			tableID, current.Version, nonNil(next.Orderees), pos, next.UpdatedAt,
		); err != nil {
			return nil, err
		}
		next.Version = current.Version + 1
	}

	if err := recordIntroduced(ctx, tx, tableID, tableorder.Introduced(current, next)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit table order tx: %w", err)
	}
	return next, nil
}

// Recorded returns the personal order as first stored on tableID.
func (r *TableOrderRepository) Recorded(ctx context.Context, tableID, id string) (*tableorder.PersonalOrder, error) {
	var raw []byte
	if err := r.pool.QueryRow(ctx, getRecordedPersonalOrderSQL, tableID, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tableorder.ErrNotFound
		}
		return nil, fmt.Errorf("getting recorded personal order %q: %w", id, err)
	}
	var po tableorder.PersonalOrder
	if err := json.Unmarshal(raw, &po); err != nil {
		return nil, fmt.Errorf("decoding recorded personal order %q: %w", id, err)
	}
	return &po, nil
}

// recordIntroduced remembers pos. A conflict means the id was stored by an
// earlier update and has been settled since.
func recordIntroduced(ctx context.Context, tx pgx.Tx, tableID string, pos []tableorder.PersonalOrder) error {
	for _, po := range pos {
		raw, err := json.Marshal(po)
		if err != nil {
			return fmt.Errorf("marshaling personal order %q: %w", po.ID, err)
		}
		tag, err := tx.Exec(ctx, recordPersonalOrderSQL, tableID, po.ID, raw, po.CreatedAt)
		if err != nil {
			return fmt.Errorf("recording personal order %q: %w", po.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return tableorder.ErrAlreadyRecorded
		}
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// queryTableOrder returns nil without error when the table has no order.
func queryTableOrder(ctx context.Context, q querier, sql, tableID string) (*tableorder.TableOrder, error) {
	rows, err := q.Query(ctx, sql, tableID)
	if err != nil {
		return nil, fmt.Errorf("getting table order %q: %w", tableID, err)
	}
	to, err := pgx.CollectExactlyOneRow(rows, scanTableOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting table order %q: %w", tableID, err)
	}
	return &to, nil
}

func execVersioned(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("writing table order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tableorder.ErrConcurrentModification
	}
	return nil
}

func scanTableOrder(row pgx.CollectableRow) (tableorder.TableOrder, error) {
	var (
		to  tableorder.TableOrder
		pos []byte
	)
	err := row.Scan(&to.TableID, &to.ID, &to.Version, &to.Orderees, &pos, &to.CreatedAt, &to.UpdatedAt)
	if err != nil {
		return to, err
	}
	if err := json.Unmarshal(pos, &to.PersonalOrders); err != nil {
		return to, fmt.Errorf("decoding personal orders of %q: %w", to.TableID, err)
	}
	return to, nil
}
