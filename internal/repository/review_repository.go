package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencourse/lms-api/internal/models"
)

// ReviewRepository holds the single current moderation review per subject.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Upsert writes the current review state for a subject. One row per
// (subject_type, subject_id): resubmission overwrites the previous state, no
// history is kept.
func (r *ReviewRepository) Upsert(ctx context.Context, review *models.ModerationReview) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.SubmittedAt.IsZero() {
		review.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO moderation_reviews (id, subject_type, subject_id, state, submitted_by, reviewer_id, note, submitted_at, reviewed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (subject_type, subject_id) DO UPDATE SET
            state = EXCLUDED.state,
            submitted_by = EXCLUDED.submitted_by,
            reviewer_id = EXCLUDED.reviewer_id,
            note = EXCLUDED.note,
            submitted_at = EXCLUDED.submitted_at,
            reviewed_at = EXCLUDED.reviewed_at
        RETURNING id`
	if err := r.db.GetContext(ctx, &review.ID, query,
		review.ID, review.SubjectType, review.SubjectID, review.State,
		review.SubmittedBy, review.ReviewerID, review.Note,
		review.SubmittedAt, review.ReviewedAt); err != nil {
		return fmt.Errorf("upsert moderation review: %w", err)
	}
	return nil
}

// FindBySubject returns the current review for a subject.
func (r *ReviewRepository) FindBySubject(ctx context.Context, subjectType models.ReviewSubjectType, subjectID string) (*models.ModerationReview, error) {
	const query = `SELECT id, subject_type, subject_id, state, submitted_by, reviewer_id, note, submitted_at, reviewed_at FROM moderation_reviews WHERE subject_type = $1 AND subject_id = $2 LIMIT 1`
	var review models.ModerationReview
	if err := r.db.GetContext(ctx, &review, query, subjectType, subjectID); err != nil {
		return nil, err
	}
	return &review, nil
}

// UpdateState records a reviewer decision on the current review.
func (r *ReviewRepository) UpdateState(ctx context.Context, id string, state models.ReviewState, reviewerID string, note *string, reviewedAt time.Time) error {
	const query = `UPDATE moderation_reviews SET state = $2, reviewer_id = $3, note = $4, reviewed_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, state, reviewerID, note, reviewedAt); err != nil {
		return fmt.Errorf("update review state: %w", err)
	}
	return nil
}
