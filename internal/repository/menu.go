package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableside/internal/domain/menu"
)

const (
	menuColumns = `id, name, description, price, category, image, available, checklists, option_groups`

	listMenuItemsSQL = `SELECT ` + menuColumns + `
		FROM menu_items WHERE ($1 = '' OR category = $1) ORDER BY category, name, id`

	getMenuItemByIDSQL = `SELECT ` + menuColumns + `
		FROM menu_items WHERE id = $1`

	getMenuItemsByIDsSQL = `SELECT ` + menuColumns + `
		FROM menu_items WHERE id = ANY($1)`

	upsertMenuItemSQL = `INSERT INTO menu_items (` + menuColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			image = EXCLUDED.image,
			available = EXCLUDED.available,
			checklists = EXCLUDED.checklists,
			option_groups = EXCLUDED.option_groups,
			updated_at = now()`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL. The
// customization groups are stored as JSONB next to the item row.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// List returns menu items, optionally restricted to one category.
func (r *MenuRepository) List(ctx context.Context, category string) ([]menu.Item, error) {
	rows, err := r.pool.Query(ctx, listMenuItemsSQL, category)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// GetByID returns a single menu item by its identifier.
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*menu.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}
	return &it, nil
}

// GetByIDs returns menu items matching any of the given IDs.
func (r *MenuRepository) GetByIDs(ctx context.Context, ids []string) ([]menu.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting menu items by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// Upsert inserts the item or replaces the stored one with the same id.
func (r *MenuRepository) Upsert(ctx context.Context, it *menu.Item) error {
	checklists, err := json.Marshal(nonNil(it.Checklists))
	if err != nil {
		return fmt.Errorf("marshaling checklists: %w", err)
	}
	groups, err := json.Marshal(nonNil(it.OptionGroups))
	if err != nil {
		return fmt.Errorf("marshaling option groups: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertMenuItemSQL,
		it.ID, it.Name, it.Description, it.Price, it.Category, it.Image, it.Available,
		checklists, groups,
	)
	if err != nil {
		return fmt.Errorf("upserting menu item %q: %w", it.ID, err)
	}
	return nil
}

func scanMenuItem(row pgx.CollectableRow) (menu.Item, error) {
	var (
		it                 menu.Item
		checklists, groups []byte
	)
	err := row.Scan(
		&it.ID, &it.Name, &it.Description, &it.Price, &it.Category, &it.Image, &it.Available,
		&checklists, &groups,
	)
	if err != nil {
		return it, err
	}
	if err := json.Unmarshal(checklists, &it.Checklists); err != nil {
		return it, fmt.Errorf("decoding checklists of %q: %w", it.ID, err)
	}
	if err := json.Unmarshal(groups, &it.OptionGroups); err != nil {
		return it, fmt.Errorf("decoding option groups of %q: %w", it.ID, err)
	}
	return it, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
