package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencourse/lms-api/internal/models"
)

// LessonRepository handles persistence of lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindByID returns a lesson by its ID.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	const query = `SELECT id, course_id, title, position, video_url, duration_seconds, free_preview, published, created_at, updated_at FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListByCourse returns lessons for a course ordered by position. When
// publishedOnly is set, draft lessons are excluded.
func (r *LessonRepository) ListByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]models.Lesson, error) {
	query := `SELECT id, course_id, title, position, video_url, duration_seconds, free_preview, published, created_at, updated_at FROM lessons WHERE course_id = $1`
	if publishedOnly {
		query += ` AND published = TRUE`
	}
	query += ` ORDER BY position ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// Create persists a new lesson record.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons (id, course_id, title, position, video_url, duration_seconds, free_preview, published, created_at, updated_at)
        VALUES (:id, :course_id, :title, :position, :video_url, :duration_seconds, :free_preview, :published, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// Update mutates the editable fields of a lesson.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET title = :title, position = :position, video_url = :video_url, duration_seconds = :duration_seconds, free_preview = :free_preview, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return nil
}

// SetPublished flips lesson visibility.
func (r *LessonRepository) SetPublished(ctx context.Context, id string, published bool, ts time.Time) error {
	const query = `UPDATE lessons SET published = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, published, ts)
	if err != nil {
		return fmt.Errorf("set lesson published: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
