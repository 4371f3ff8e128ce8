package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusRefunded EnrollmentStatus = "REFUNDED"
	EnrollmentStatusCanceled EnrollmentStatus = "CANCELED"
)

// Enrollment captures a user's registration to a course.
type Enrollment struct {
	ID               string           `db:"id" json:"id"`
	UserID           string           `db:"user_id" json:"user_id"`
	CourseID         string           `db:"course_id" json:"course_id"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	PaidAmount       *float64         `db:"paid_amount" json:"paid_amount,omitempty"`
	Currency         string           `db:"currency" json:"currency"`
	PaymentReference *string          `db:"payment_reference" json:"payment_reference,omitempty"`
	EnrolledAt       time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CanceledAt       *time.Time       `db:"canceled_at" json:"canceled_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with user and course info.
type EnrollmentDetail struct {
	Enrollment
	UserName    string `db:"user_name" json:"user_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID    string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
