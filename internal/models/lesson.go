package models

import "time"

// Lesson is a single video unit within a course.
type Lesson struct {
	ID              string    `db:"id" json:"id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	Title           string    `db:"title" json:"title"`
	Position        int       `db:"position" json:"position"`
	VideoURL        string    `db:"video_url" json:"video_url"`
	DurationSeconds int       `db:"duration_seconds" json:"duration_seconds"`
	FreePreview     bool      `db:"free_preview" json:"free_preview"`
	Published       bool      `db:"published" json:"published"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
