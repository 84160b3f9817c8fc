package waiter

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxNoteLength = 280

// Sentinel errors for waiter calls.
var (
	ErrNotFound    = errors.New("waiter call not found")
	ErrNoteTooLong = errors.New("note is too long")
)

// Call asks staff to come to a table. A table has at most one open call.
type Call struct {
	ID             string
	TableID        string
	Note           string
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
}

// Open reports whether staff has not acknowledged the call yet.
func (c *Call) Open() bool { return c.AcknowledgedAt == nil }

// Repository persists waiter calls.
type Repository interface {
	// CreateOpen stores c unless the table already has an open call, in which
	// case the open call is returned with created false.
	CreateOpen(ctx context.Context, c *Call) (stored *Call, created bool, err error)
	ListOpen(ctx context.Context) ([]Call, error)
	// Acknowledge stamps an open call. Acknowledging twice keeps the first
	// stamp.
	Acknowledge(ctx context.Context, id string, at time.Time) (*Call, error)
}

// Service handles waiter calls.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a waiter Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Call opens a call for tableID, or returns the one already open.
func (s *Service) Call(ctx context.Context, tableID, note string) (*Call, bool, error) {
	note = strings.TrimSpace(note)
	if len([]rune(note)) > maxNoteLength {
		return nil, false, ErrNoteTooLong
	}

	c, created, err := s.repo.CreateOpen(ctx, &Call{
		ID:        uuid.New().String(),
		TableID:   tableID,
		Note:      note,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "create waiter call")
	}
	if created {
		zctx.From(ctx).Info("Waiter called", zap.String("table_id", tableID), zap.String("call_id", c.ID))
	}
	return c, created, nil
}

// ListOpen returns unacknowledged calls, oldest first.
func (s *Service) ListOpen(ctx context.Context) ([]Call, error) {
	return s.repo.ListOpen(ctx)
}

// Acknowledge closes the call with the given id.
func (s *Service) Acknowledge(ctx context.Context, id string) (*Call, error) {
	return s.repo.Acknowledge(ctx, id, s.now())
}
