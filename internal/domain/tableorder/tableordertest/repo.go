// Package tableordertest provides an in-memory tableorder.Repository for
// tests of packages that build on table orders.
package tableordertest

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/tableside/internal/domain/tableorder"
)

var _ tableorder.Repository = (*Repo)(nil)

// Repo keeps table orders and the personal order ledger in memory. It bumps
// versions like the Postgres repository and is safe for concurrent use.
type Repo struct {
	mu       sync.Mutex
	orders   map[string]*tableorder.TableOrder
	recorded map[string]tableorder.PersonalOrder
}

// NewRepo returns an empty Repo.
func NewRepo() *Repo {
	return &Repo{
		orders:   make(map[string]*tableorder.TableOrder),
		recorded: make(map[string]tableorder.PersonalOrder),
	}
}

func (r *Repo) Get(_ context.Context, tableID string) (*tableorder.TableOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	to, ok := r.orders[tableID]
	if !ok {
		return nil, tableorder.ErrNotFound
	}
	return clone(to), nil
}

func (r *Repo) Update(_ context.Context, tableID string, fn tableorder.UpdateFunc) (*tableorder.TableOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current *tableorder.TableOrder
	if to, ok := r.orders[tableID]; ok {
		current = clone(to)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	introduced := tableorder.Introduced(current, next)
	for _, po := range introduced {
		if _, seen := r.recorded[ledgerKey(tableID, po.ID)]; seen {
			return nil, tableorder.ErrAlreadyRecorded
		}
	}
	for _, po := range introduced {
		r.recorded[ledgerKey(tableID, po.ID)] = po
	}

	switch {
	case next == current:
	case next == nil:
		delete(r.orders, tableID)
	default:
		next.Version++
		r.orders[tableID] = clone(next)
	}
	return next, nil
}

func (r *Repo) Recorded(_ context.Context, tableID, id string) (*tableorder.PersonalOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	po, ok := r.recorded[ledgerKey(tableID, id)]
	if !ok {
		return nil, tableorder.ErrNotFound
	}
	return &po, nil
}

func ledgerKey(tableID, id string) string {
	return tableID + "/" + id
}

func clone(to *tableorder.TableOrder) *tableorder.TableOrder {
	c := *to
	c.Orderees = slices.Clone(to.Orderees)
	c.PersonalOrders = slices.Clone(to.PersonalOrders)
	return &c
}
