package feedback

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5

	maxCommentLength = 2000
)

// Sentinel errors for feedback validation.
var (
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrCommentTooLong  = errors.New("comment is too long")
)

// Feedback is a diner's rating of their visit.
type Feedback struct {
	ID        string
	TableID   string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Repository persists feedback.
type Repository interface {
	Create(ctx context.Context, f *Feedback) error
}

// Service records feedback.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a feedback Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Submit validates and stores a rating for tableID.
func (s *Service) Submit(ctx context.Context, tableID string, rating int, comment string) (*Feedback, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, ErrInvalidRating
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, ErrCommentTooLong
	}

	f := &Feedback{
		ID:        uuid.New().String(),
		TableID:   tableID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, errors.Wrap(err, "create feedback")
	}
	return f, nil
}
