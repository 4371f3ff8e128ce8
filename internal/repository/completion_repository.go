package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencourse/lms-api/internal/models"
)

// CompletionRepository owns course completion records.
type CompletionRepository struct {
	db *sqlx.DB
}

// NewCompletionRepository constructs the repository.
func NewCompletionRepository(db *sqlx.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// InsertIfAbsent records a completion unless one already exists for the pair.
// Returns true when this call created the row. ON CONFLICT DO NOTHING makes
// the unique constraint the arbiter under concurrent evaluation: the loser
// sees inserted=false, never an error.
func (r *CompletionRepository) InsertIfAbsent(ctx context.Context, completion *models.CourseCompletion) (bool, error) {
	if completion.ID == "" {
		completion.ID = uuid.NewString()
	}
	if completion.CompletedAt.IsZero() {
		completion.CompletedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_completions (id, user_id, course_id, completed_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, course_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, completion.ID, completion.UserID, completion.CourseID, completion.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("insert course completion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("course completion result: %w", err)
	}
	return affected > 0, nil
}

// FindByUserAndCourse returns the completion row for the pair.
func (r *CompletionRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.CourseCompletion, error) {
	const query = `SELECT id, user_id, course_id, completed_at FROM course_completions WHERE user_id = $1 AND course_id = $2 LIMIT 1`
	var completion models.CourseCompletion
	if err := r.db.GetContext(ctx, &completion, query, userID, courseID); err != nil {
		return nil, err
	}
	return &completion, nil
}
