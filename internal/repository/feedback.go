package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableside/internal/domain/feedback"
)

const createFeedbackSQL = `INSERT INTO feedback (id, table_id, rating, comment, created_at)
	VALUES ($1, $2, $3, $4, $5)`

var _ feedback.Repository = (*FeedbackRepository)(nil)

// FeedbackRepository stores diner feedback in PostgreSQL.
type FeedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository returns a FeedbackRepository that uses the given pool.
func NewFeedbackRepository(pool *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{pool: pool}
}

func (r *FeedbackRepository) Create(ctx context.Context, f *feedback.Feedback) error {
	_, err := r.pool.Exec(ctx, createFeedbackSQL, f.ID, f.TableID, f.Rating, f.Comment, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating feedback for table %q: %w", f.TableID, err)
	}
	return nil
}
