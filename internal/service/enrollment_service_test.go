package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencourse/lms-api/internal/models"
	"github.com/opencourse/lms-api/internal/repository"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type stubEnrollmentRepo struct {
	byPair     *models.Enrollment
	byPairErr  error
	byID       *models.Enrollment
	byIDErr    error
	createErr  error
	created    *models.Enrollment
	statusID   string
	statusSet  models.EnrollmentStatus
	statusTime *time.Time
	updateErr  error
}

func (s *stubEnrollmentRepo) List(_ context.Context, _ models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (s *stubEnrollmentRepo) FindByID(_ context.Context, _ string) (*models.Enrollment, error) {
	return s.byID, s.byIDErr
}

func (s *stubEnrollmentRepo) FindByUserAndCourse(_ context.Context, _, _ string) (*models.Enrollment, error) {
	return s.byPair, s.byPairErr
}

func (s *stubEnrollmentRepo) Create(_ context.Context, enrollment *models.Enrollment) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = enrollment
	return nil
}

func (s *stubEnrollmentRepo) UpdateStatus(_ context.Context, id string, status models.EnrollmentStatus, canceledAt *time.Time) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.statusID = id
	s.statusSet = status
	s.statusTime = canceledAt
	return nil
}

type stubCourseReader struct {
	course *models.Course
	err    error
}

func (s *stubCourseReader) FindByID(_ context.Context, _ string) (*models.Course, error) {
	return s.course, s.err
}

type recordingEnrollmentEvents struct {
	created []*models.Enrollment
}

func (r *recordingEnrollmentEvents) EnrollmentCreated(enrollment *models.Enrollment) {
	r.created = append(r.created, enrollment)
}

func publishedCourse(price *float64) *models.Course {
	return &models.Course{ID: "course-1", Title: "Intro", Currency: "USD", Price: price, Published: true}
}

func floatPtr(v float64) *float64 { return &v }

func TestEnrollFreeCreatesActiveEnrollment(t *testing.T) {
	repo := &stubEnrollmentRepo{byPairErr: sql.ErrNoRows}
	events := &recordingEnrollmentEvents{}
	svc := NewEnrollmentService(repo, &stubCourseReader{course: publishedCourse(nil)}, events, nil, nil)

	enrollment, err := svc.EnrollFree(context.Background(), models.Actor{UserID: "user-1", Role: models.RoleStudent}, EnrollFreeRequest{CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, "user-1", enrollment.UserID)
	assert.Nil(t, enrollment.PaidAmount)
	assert.Len(t, events.created, 1)
}

func TestEnrollFreeRejectsPaidCourse(t *testing.T) {
	repo := &stubEnrollmentRepo{byPairErr: sql.ErrNoRows}
	svc := NewEnrollmentService(repo, &stubCourseReader{course: publishedCourse(floatPtr(49.90))}, nil, nil, nil)

	_, err := svc.EnrollFree(context.Background(), models.Actor{UserID: "user-1"}, EnrollFreeRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseNotFree.Code, appErrors.FromError(err).Code)
}

func TestEnrollFreeRejectsUnpublishedCourse(t *testing.T) {
	course := publishedCourse(nil)
	course.Published = false
	svc := NewEnrollmentService(&stubEnrollmentRepo{byPairErr: sql.ErrNoRows}, &stubCourseReader{course: course}, nil, nil, nil)

	_, err := svc.EnrollFree(context.Background(), models.Actor{UserID: "user-1"}, EnrollFreeRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollFreeBlockedByCanceledEnrollment(t *testing.T) {
	repo := &stubEnrollmentRepo{
		byPair: &models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "course-1", Status: models.EnrollmentStatusCanceled},
	}
	svc := NewEnrollmentService(repo, &stubCourseReader{course: publishedCourse(nil)}, nil, nil, nil)

	_, err := svc.EnrollFree(context.Background(), models.Actor{UserID: "user-1"}, EnrollFreeRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestEnrollFreeTranslatesConcurrentUniqueViolation(t *testing.T) {
	repo := &stubEnrollmentRepo{
		byPairErr: sql.ErrNoRows,
		createErr: &pq.Error{Code: "23505"},
	}
	svc := NewEnrollmentService(repo, &stubCourseReader{course: publishedCourse(nil)}, nil, nil, nil)

	_, err := svc.EnrollFree(context.Background(), models.Actor{UserID: "user-1"}, EnrollFreeRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)
}

func TestEnrollPaidRecordsPaymentReference(t *testing.T) {
	repo := &stubEnrollmentRepo{byPairErr: sql.ErrNoRows}
	svc := NewEnrollmentService(repo, &stubCourseReader{course: publishedCourse(floatPtr(120))}, nil, nil, nil)

	enrollment, err := svc.EnrollPaid(context.Background(), models.Actor{UserID: "user-1"}, EnrollPaidRequest{CourseID: "course-1", PaymentReference: "pay_abc123"})
	require.NoError(t, err)
	require.NotNil(t, enrollment.PaidAmount)
	assert.Equal(t, 120.0, *enrollment.PaidAmount)
	require.NotNil(t, enrollment.PaymentReference)
	assert.Equal(t, "pay_abc123", *enrollment.PaymentReference)
}

func TestEnrollPaidRequiresPaymentReference(t *testing.T) {
	svc := NewEnrollmentService(&stubEnrollmentRepo{byPairErr: sql.ErrNoRows}, &stubCourseReader{course: publishedCourse(floatPtr(120))}, nil, nil, nil)

	_, err := svc.EnrollPaid(context.Background(), models.Actor{UserID: "user-1"}, EnrollPaidRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCancelByOwnerSucceeds(t *testing.T) {
	repo := &stubEnrollmentRepo{
		byID: &models.Enrollment{ID: "enr-1", UserID: "user-1", Status: models.EnrollmentStatusActive},
	}
	svc := NewEnrollmentService(repo, nil, nil, nil, nil)

	enrollment, err := svc.Cancel(context.Background(), models.Actor{UserID: "user-1", Role: models.RoleStudent}, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCanceled, enrollment.Status)
	assert.NotNil(t, enrollment.CanceledAt)
	assert.Equal(t, models.EnrollmentStatusCanceled, repo.statusSet)
}

func TestCancelByStrangerIsForbidden(t *testing.T) {
	repo := &stubEnrollmentRepo{
		byID: &models.Enrollment{ID: "enr-1", UserID: "user-1", Status: models.EnrollmentStatusActive},
	}
	svc := NewEnrollmentService(repo, nil, nil, nil, nil)

	_, err := svc.Cancel(context.Background(), models.Actor{UserID: "user-2", Role: models.RoleStudent}, "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCancelNonActiveIsConflict(t *testing.T) {
	repo := &stubEnrollmentRepo{
		byID: &models.Enrollment{ID: "enr-1", UserID: "user-1", Status: models.EnrollmentStatusRefunded},
	}
	svc := NewEnrollmentService(repo, nil, nil, nil, nil)

	_, err := svc.Cancel(context.Background(), models.Actor{UserID: "user-1"}, "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentNotActive.Code, appErrors.FromError(err).Code)
}

func TestCancelConcurrentTransitionIsConflict(t *testing.T) {
	// The read sees an active row but a concurrent cancel or refund moves it
	// off active before the guarded write lands.
	repo := &stubEnrollmentRepo{
		byID:      &models.Enrollment{ID: "enr-1", UserID: "user-1", Status: models.EnrollmentStatusActive},
		updateErr: repository.ErrNoRowUpdated,
	}
	svc := NewEnrollmentService(repo, nil, nil, nil, nil)

	_, err := svc.Cancel(context.Background(), models.Actor{UserID: "user-1"}, "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentNotActive.Code, appErrors.FromError(err).Code)
}

func TestMarkRefundedRequiresAdmin(t *testing.T) {
	svc := NewEnrollmentService(&stubEnrollmentRepo{}, nil, nil, nil, nil)

	_, err := svc.MarkRefunded(context.Background(), models.Actor{UserID: "user-1", Role: models.RoleStudent}, "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
