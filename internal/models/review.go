package models

import "time"

// ReviewSubjectType discriminates what a moderation review points at.
type ReviewSubjectType string

const (
	ReviewSubjectCourse ReviewSubjectType = "COURSE"
	ReviewSubjectLesson ReviewSubjectType = "LESSON"
)

// ReviewState represents moderation workflow states.
type ReviewState string

const (
	ReviewStateDraft    ReviewState = "DRAFT"
	ReviewStatePending  ReviewState = "PENDING"
	ReviewStateApproved ReviewState = "APPROVED"
	ReviewStateRejected ReviewState = "REJECTED"
)

// ModerationReview holds the current review state for a course or lesson.
// Only the latest state per subject is retained; submissions update in place
// rather than appending history.
type ModerationReview struct {
	ID          string            `db:"id" json:"id"`
	SubjectType ReviewSubjectType `db:"subject_type" json:"subject_type"`
	SubjectID   string            `db:"subject_id" json:"subject_id"`
	State       ReviewState       `db:"state" json:"state"`
	SubmittedBy string            `db:"submitted_by" json:"submitted_by"`
	ReviewerID  *string           `db:"reviewer_id" json:"reviewer_id,omitempty"`
	Note        *string           `db:"note" json:"note,omitempty"`
	SubmittedAt time.Time         `db:"submitted_at" json:"submitted_at"`
	ReviewedAt  *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
}
