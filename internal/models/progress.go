package models

import "time"

// LessonProgress holds per-(user, lesson) watch state. At most one row exists
// per pair; writes always go through an upsert.
type LessonProgress struct {
	ID                  string    `db:"id" json:"id"`
	UserID              string    `db:"user_id" json:"user_id"`
	LessonID            string    `db:"lesson_id" json:"lesson_id"`
	WatchedPercentage   int       `db:"watched_percentage" json:"watched_percentage"`
	LastPositionSeconds int       `db:"last_position_seconds" json:"last_position_seconds"`
	LastWatchedAt       time.Time `db:"last_watched_at" json:"last_watched_at"`
}

// IsCompleted reports whether the watched percentage meets the lesson
// completion threshold.
func (p *LessonProgress) IsCompleted(threshold int) bool {
	return p.WatchedPercentage >= threshold
}

// IsInProgress reports partial progress below the completion threshold.
func (p *LessonProgress) IsInProgress(threshold int) bool {
	return p.WatchedPercentage > 0 && p.WatchedPercentage < threshold
}

// CourseCompletion records the first time a user finished a course. Created
// exactly once per (user, course); the unique constraint on the pair is the
// gate that keeps concurrent evaluators from double-recording.
type CourseCompletion struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`
}

// CourseProgressCounts is the aggregate used to derive completion percentage.
// Only published lessons contribute to either counter.
type CourseProgressCounts struct {
	PublishedLessons int `db:"published_lessons"`
	CompletedLessons int `db:"completed_lessons"`
}

// CourseEvaluation is the outcome of a completion evaluation run.
type CourseEvaluation struct {
	Percentage    int        `json:"percentage"`
	Completed     bool       `json:"completed"`
	JustCompleted bool       `json:"just_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// LessonProgressRow is a transcript line joining a lesson with the user's
// recorded progress, if any.
type LessonProgressRow struct {
	LessonID          string     `db:"lesson_id" json:"lesson_id"`
	LessonTitle       string     `db:"lesson_title" json:"lesson_title"`
	Position          int        `db:"position" json:"position"`
	WatchedPercentage int        `db:"watched_percentage" json:"watched_percentage"`
	LastWatchedAt     *time.Time `db:"last_watched_at" json:"last_watched_at,omitempty"`
}
