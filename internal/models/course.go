package models

import "time"

// Course is a unit of the catalog holding ordered lessons.
type Course struct {
	ID           string     `db:"id" json:"id"`
	Title        string     `db:"title" json:"title"`
	Slug         string     `db:"slug" json:"slug"`
	Description  string     `db:"description" json:"description"`
	InstructorID string     `db:"instructor_id" json:"instructor_id"`
	Price        *float64   `db:"price" json:"price,omitempty"`
	Currency     string     `db:"currency" json:"currency"`
	Published    bool       `db:"published" json:"published"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsFree reports whether the course can be joined without payment.
func (c *Course) IsFree() bool {
	return c.Price == nil || *c.Price == 0
}

// CourseDetail enriches Course with instructor and lesson info.
type CourseDetail struct {
	Course
	InstructorName string `db:"instructor_name" json:"instructor_name"`
	LessonCount    int    `db:"lesson_count" json:"lesson_count"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Search       string
	InstructorID string
	Published    *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
