package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableside/internal/domain/table"
)

const (
	getTableSQL   = `SELECT id, number, label FROM restaurant_tables WHERE id = $1`
	listTablesSQL = `SELECT id, number, label FROM restaurant_tables ORDER BY number`

	upsertTableSQL = `INSERT INTO restaurant_tables (id, number, label) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET number = EXCLUDED.number, label = EXCLUDED.label`
)

var _ table.Repository = (*TableRepository)(nil)

// TableRepository implements table.Repository backed by PostgreSQL.
type TableRepository struct {
	pool *pgxpool.Pool
}

// NewTableRepository returns a TableRepository that uses the given pool.
func NewTableRepository(pool *pgxpool.Pool) *TableRepository {
	return &TableRepository{pool: pool}
}

func (r *TableRepository) Get(ctx context.Context, id string) (*table.Table, error) {
	var t table.Table
	err := r.pool.QueryRow(ctx, getTableSQL, id).Scan(&t.ID, &t.Number, &t.Label)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, table.ErrNotFound
		}
		return nil, fmt.Errorf("getting table %q: %w", id, err)
	}
	return &t, nil
}

func (r *TableRepository) List(ctx context.Context) ([]table.Table, error) {
	rows, err := r.pool.Query(ctx, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (table.Table, error) {
		var t table.Table
		err := row.Scan(&t.ID, &t.Number, &t.Label)
		return t, err
	})
}

func (r *TableRepository) Upsert(ctx context.Context, t *table.Table) error {
	if _, err := r.pool.Exec(ctx, upsertTableSQL, t.ID, t.Number, t.Label); err != nil {
		return fmt.Errorf("upserting table %q: %w", t.ID, err)
	}
	return nil
}
