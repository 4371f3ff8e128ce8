package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencourse/lms-api/internal/models"
	"github.com/opencourse/lms-api/internal/repository"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, canceledAt *time.Time) error
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentEvents interface {
	EnrollmentCreated(enrollment *models.Enrollment)
}

// EnrollFreeRequest joins a free published course.
type EnrollFreeRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// EnrollPaidRequest records an enrollment whose payment was confirmed
// out-of-band by the payment collaborator.
type EnrollPaidRequest struct {
	CourseID         string `json:"course_id" validate:"required"`
	PaymentReference string `json:"payment_reference" validate:"required"`
}

// EnrollmentService owns enrollment creation, uniqueness, and cancellation.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   enrollmentCourseReader
	events    enrollmentEvents
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses enrollmentCourseReader, events enrollmentEvents, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, events: events, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// EnrollFree joins a user to a free published course. Any existing enrollment
// row for the pair blocks re-enrollment, including canceled ones.
func (s *EnrollmentService) EnrollFree(ctx context.Context, actor models.Actor, req EnrollFreeRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	course, err := s.loadPublishedCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.IsFree() {
		return nil, appErrors.Clone(appErrors.ErrCourseNotFree, "")
	}
	if err := s.ensureNotEnrolled(ctx, actor.UserID, course.ID); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		UserID:     actor.UserID,
		CourseID:   course.ID,
		Status:     models.EnrollmentStatusActive,
		Currency:   course.Currency,
		EnrolledAt: time.Now().UTC(),
	}
	if err := s.create(ctx, enrollment); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// EnrollPaid records a paid enrollment. Payment confirmation is the caller's
// responsibility; this component trusts the provided reference.
func (s *EnrollmentService) EnrollPaid(ctx context.Context, actor models.Actor, req EnrollPaidRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	course, err := s.loadPublishedCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotEnrolled(ctx, actor.UserID, course.ID); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		UserID:           actor.UserID,
		CourseID:         course.ID,
		Status:           models.EnrollmentStatusActive,
		PaidAmount:       course.Price,
		Currency:         course.Currency,
		PaymentReference: &req.PaymentReference,
		EnrolledAt:       time.Now().UTC(),
	}
	if err := s.create(ctx, enrollment); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Cancel marks an active enrollment canceled. Only the owner or an admin may
// cancel; canceling a non-active enrollment is a conflict, not a no-op.
func (s *EnrollmentService) Cancel(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin may cancel")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentNotActive, "")
	}
	canceledAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentStatusCanceled, &canceledAt); err != nil {
		// The guarded write lost to a concurrent transition off active.
		if errors.Is(err, repository.ErrNoRowUpdated) {
			return nil, appErrors.Clone(appErrors.ErrEnrollmentNotActive, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}
	enrollment.Status = models.EnrollmentStatusCanceled
	enrollment.CanceledAt = &canceledAt
	return enrollment, nil
}

// MarkRefunded transitions an active enrollment to refunded after a payment
// failure or refund. Admin only.
func (s *EnrollmentService) MarkRefunded(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may refund")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentNotActive, "")
	}
	refundedAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentStatusRefunded, &refundedAt); err != nil {
		if errors.Is(err, repository.ErrNoRowUpdated) {
			return nil, appErrors.Clone(appErrors.ErrEnrollmentNotActive, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refund enrollment")
	}
	enrollment.Status = models.EnrollmentStatusRefunded
	enrollment.CanceledAt = &refundedAt
	return enrollment, nil
}

func (s *EnrollmentService) loadPublishedCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Published {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not published")
	}
	return course, nil
}

func (s *EnrollmentService) ensureNotEnrolled(ctx context.Context, userID, courseID string) error {
	_, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err == nil {
		return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}
	if err != sql.ErrNoRows {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	return nil
}

func (s *EnrollmentService) create(ctx context.Context, enrollment *models.Enrollment) error {
	if err := s.repo.Create(ctx, enrollment); err != nil {
		// Concurrent enrollment for the same pair: the unique constraint
		// guarantees exactly one row, the loser gets the conflict.
		if repository.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if s.events != nil {
		s.events.EnrollmentCreated(enrollment)
	}
	return nil
}
