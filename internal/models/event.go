package models

import "time"

// EventType classifies domain facts emitted for the notification pipeline.
type EventType string

const (
	EventEnrollmentCreated EventType = "enrollment.created"
	EventCourseCompleted   EventType = "course.completed"
	EventCertificateIssued EventType = "certificate.issued"
)

// Event is a domain fact handed to the notification queue. Delivery channels
// are downstream concerns; the core only emits.
type Event struct {
	Type          EventType `json:"type"`
	UserID        string    `json:"user_id"`
	CourseID      string    `json:"course_id,omitempty"`
	EnrollmentID  string    `json:"enrollment_id,omitempty"`
	CertificateID string    `json:"certificate_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// TranscriptFormat selects the rendered transcript output.
type TranscriptFormat string

const (
	TranscriptFormatCSV TranscriptFormat = "csv"
	TranscriptFormatPDF TranscriptFormat = "pdf"
)
