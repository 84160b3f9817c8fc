package table

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a table id does not exist.
var ErrNotFound = errors.New("table not found")

// Table is a physical table; its ID is what the QR code encodes.
type Table struct {
	ID     string
	Number int
	Label  string
}

// Repository provides lookup of restaurant tables.
type Repository interface {
	Get(ctx context.Context, id string) (*Table, error)
	List(ctx context.Context) ([]Table, error)
	Upsert(ctx context.Context, t *Table) error
}
