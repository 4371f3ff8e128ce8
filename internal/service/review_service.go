package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencourse/lms-api/internal/models"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type reviewRepository interface {
	Upsert(ctx context.Context, review *models.ModerationReview) error
	FindBySubject(ctx context.Context, subjectType models.ReviewSubjectType, subjectID string) (*models.ModerationReview, error)
	UpdateState(ctx context.Context, id string, state models.ReviewState, reviewerID string, note *string, reviewedAt time.Time) error
}

type contentPublisher interface {
	SetPublished(ctx context.Context, id string, published bool) error
}

// SubmitReviewRequest queues a course or lesson for moderation.
type SubmitReviewRequest struct {
	SubjectType models.ReviewSubjectType `json:"subject_type" validate:"required,oneof=COURSE LESSON"`
	SubjectID   string                   `json:"subject_id" validate:"required"`
}

// DecideReviewRequest records a moderator decision.
type DecideReviewRequest struct {
	SubjectType models.ReviewSubjectType `json:"subject_type" validate:"required,oneof=COURSE LESSON"`
	SubjectID   string                   `json:"subject_id" validate:"required"`
	Note        *string                  `json:"note,omitempty"`
}

// ReviewService tracks the moderation state of courses and lessons. Each
// subject holds exactly one review row; submitting again overwrites it, so
// prior decisions are not preserved.
type ReviewService struct {
	repo      reviewRepository
	courses   contentPublisher
	lessons   contentPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReviewService constructs ReviewService. courses and lessons receive the
// publish side effect of an approval.
func NewReviewService(repo reviewRepository, courses, lessons contentPublisher, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{repo: repo, courses: courses, lessons: lessons, validator: validate, logger: logger}
}

// Submit moves a subject into the pending state. A subject already pending or
// approved cannot be resubmitted; a rejected or draft subject can.
func (s *ReviewService) Submit(ctx context.Context, actor models.Actor, req SubmitReviewRequest) (*models.ModerationReview, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	current, err := s.repo.FindBySubject(ctx, req.SubjectType, req.SubjectID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review")
	}
	if current != nil {
		switch current.State {
		case models.ReviewStatePending:
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject is already pending review")
		case models.ReviewStateApproved:
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject is already approved")
		}
	}

	review := &models.ModerationReview{
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		State:       models.ReviewStatePending,
		SubmittedBy: actor.UserID,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit review")
	}
	return review, nil
}

// Approve records an admin approval and publishes the subject.
func (s *ReviewService) Approve(ctx context.Context, actor models.Actor, req DecideReviewRequest) (*models.ModerationReview, error) {
	review, err := s.decide(ctx, actor, req, models.ReviewStateApproved)
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, review.SubjectType, review.SubjectID); err != nil {
		return nil, err
	}
	return review, nil
}

// Reject records an admin rejection. The subject stays unpublished and may be
// resubmitted.
func (s *ReviewService) Reject(ctx context.Context, actor models.Actor, req DecideReviewRequest) (*models.ModerationReview, error) {
	return s.decide(ctx, actor, req, models.ReviewStateRejected)
}

// Get returns the current review for a subject.
func (s *ReviewService) Get(ctx context.Context, subjectType models.ReviewSubjectType, subjectID string) (*models.ModerationReview, error) {
	review, err := s.repo.FindBySubject(ctx, subjectType, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "review not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review")
	}
	return review, nil
}

func (s *ReviewService) decide(ctx context.Context, actor models.Actor, req DecideReviewRequest, state models.ReviewState) (*models.ModerationReview, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may review")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	review, err := s.repo.FindBySubject(ctx, req.SubjectType, req.SubjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "review not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review")
	}
	if review.State != models.ReviewStatePending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("review is %s, only pending reviews can be decided", strings.ToLower(string(review.State))))
	}

	reviewedAt := time.Now().UTC()
	if err := s.repo.UpdateState(ctx, review.ID, state, actor.UserID, req.Note, reviewedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review decision")
	}
	review.State = state
	review.ReviewerID = &actor.UserID
	review.Note = req.Note
	review.ReviewedAt = &reviewedAt
	return review, nil
}

func (s *ReviewService) publish(ctx context.Context, subjectType models.ReviewSubjectType, subjectID string) error {
	var publisher contentPublisher
	switch subjectType {
	case models.ReviewSubjectCourse:
		publisher = s.courses
	case models.ReviewSubjectLesson:
		publisher = s.lessons
	}
	if publisher == nil {
		return nil
	}
	if err := publisher.SetPublished(ctx, subjectID, true); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "review subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish review subject")
	}
	return nil
}
