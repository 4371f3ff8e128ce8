package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencourse/lms-api/internal/models"
)

// ProgressRepository owns per-(user, lesson) watch state rows.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Upsert creates or overwrites the single row for (user, lesson). The unique
// constraint on the pair guarantees one row per pair; the conflict path turns
// a second watch event into an update.
func (r *ProgressRepository) Upsert(ctx context.Context, progress *models.LessonProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	if progress.LastWatchedAt.IsZero() {
		progress.LastWatchedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lesson_progress (id, user_id, lesson_id, watched_percentage, last_position_seconds, last_watched_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id, lesson_id) DO UPDATE SET
            watched_percentage = EXCLUDED.watched_percentage,
            last_position_seconds = EXCLUDED.last_position_seconds,
            last_watched_at = EXCLUDED.last_watched_at
        RETURNING id`
	if err := r.db.GetContext(ctx, &progress.ID, query,
		progress.ID, progress.UserID, progress.LessonID,
		progress.WatchedPercentage, progress.LastPositionSeconds, progress.LastWatchedAt); err != nil {
		return fmt.Errorf("upsert lesson progress: %w", err)
	}
	return nil
}

// FindByUserAndLesson returns the progress row for the pair.
func (r *ProgressRepository) FindByUserAndLesson(ctx context.Context, userID, lessonID string) (*models.LessonProgress, error) {
	const query = `SELECT id, user_id, lesson_id, watched_percentage, last_position_seconds, last_watched_at FROM lesson_progress WHERE user_id = $1 AND lesson_id = $2 LIMIT 1`
	var progress models.LessonProgress
	if err := r.db.GetContext(ctx, &progress, query, userID, lessonID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// CourseCounts aggregates published lesson totals and the number of published
// lessons the user has watched past the completion threshold. One query, no
// per-lesson round trips; unpublished lessons never enter either counter.
func (r *ProgressRepository) CourseCounts(ctx context.Context, userID, courseID string, threshold int) (*models.CourseProgressCounts, error) {
	const query = `SELECT
        COUNT(*) AS published_lessons,
        COUNT(*) FILTER (WHERE lp.watched_percentage >= $3) AS completed_lessons
        FROM lessons l
        LEFT JOIN lesson_progress lp ON lp.lesson_id = l.id AND lp.user_id = $1
        WHERE l.course_id = $2 AND l.published = TRUE`
	var counts models.CourseProgressCounts
	if err := r.db.GetContext(ctx, &counts, query, userID, courseID, threshold); err != nil {
		return nil, fmt.Errorf("aggregate course progress: %w", err)
	}
	return &counts, nil
}

// ListCourseRows returns one transcript line per published lesson of the
// course joined with the user's recorded progress.
func (r *ProgressRepository) ListCourseRows(ctx context.Context, userID, courseID string) ([]models.LessonProgressRow, error) {
	const query = `SELECT l.id AS lesson_id, l.title AS lesson_title, l.position,
        COALESCE(lp.watched_percentage, 0) AS watched_percentage,
        lp.last_watched_at
        FROM lessons l
        LEFT JOIN lesson_progress lp ON lp.lesson_id = l.id AND lp.user_id = $1
        WHERE l.course_id = $2 AND l.published = TRUE
        ORDER BY l.position ASC`
	var rows []models.LessonProgressRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, courseID); err != nil {
		return nil, fmt.Errorf("list course progress rows: %w", err)
	}
	return rows, nil
}
