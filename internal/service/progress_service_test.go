package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencourse/lms-api/internal/models"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type stubProgressRepo struct {
	upserted  *models.LessonProgress
	upsertErr error
	found     *models.LessonProgress
	foundErr  error
	rows      []models.LessonProgressRow
}

func (s *stubProgressRepo) Upsert(_ context.Context, progress *models.LessonProgress) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = progress
	return nil
}

func (s *stubProgressRepo) FindByUserAndLesson(_ context.Context, _, _ string) (*models.LessonProgress, error) {
	return s.found, s.foundErr
}

func (s *stubProgressRepo) ListCourseRows(_ context.Context, _, _ string) ([]models.LessonProgressRow, error) {
	return s.rows, nil
}

type stubLessonReader struct {
	lesson *models.Lesson
	err    error
}

func (s *stubLessonReader) FindByID(_ context.Context, _ string) (*models.Lesson, error) {
	return s.lesson, s.err
}

type stubEnrollmentChecker struct {
	active bool
	err    error
}

func (s *stubEnrollmentChecker) ExistsActive(_ context.Context, _, _ string) (bool, error) {
	return s.active, s.err
}

type stubEvaluator struct {
	eval        *models.CourseEvaluation
	err         error
	invalidated int
	evaluated   int
}

func (s *stubEvaluator) Evaluate(_ context.Context, _, _ string) (*models.CourseEvaluation, error) {
	s.evaluated++
	return s.eval, s.err
}

func (s *stubEvaluator) Invalidate(_ context.Context, _, _ string) {
	s.invalidated++
}

type stubCertRequester struct {
	calls int
	err   error
}

func (s *stubCertRequester) RequestForCompletion(_ context.Context, _, _ string) (*models.Certificate, error) {
	s.calls++
	return nil, s.err
}

type recordingProgressEvents struct {
	completed [][2]string
}

func (r *recordingProgressEvents) CourseCompleted(userID, courseID string) {
	r.completed = append(r.completed, [2]string{userID, courseID})
}

func publishedLesson() *models.Lesson {
	return &models.Lesson{ID: "lesson-1", CourseID: "course-1", Title: "Basics", Published: true}
}

func studentActor() models.Actor {
	return models.Actor{UserID: "user-1", Role: models.RoleStudent}
}

func TestRecordUpsertsAndEvaluates(t *testing.T) {
	repo := &stubProgressRepo{}
	evaluator := &stubEvaluator{eval: &models.CourseEvaluation{Percentage: 40}}
	svc := NewProgressService(repo, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: true}, evaluator, nil, nil, nil, nil)

	result, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{
		LessonID:            "lesson-1",
		WatchedPercentage:   80,
		LastPositionSeconds: 320,
	})
	require.NoError(t, err)
	require.NotNil(t, repo.upserted)
	assert.Equal(t, 80, repo.upserted.WatchedPercentage)
	assert.Equal(t, 320, repo.upserted.LastPositionSeconds)
	assert.Equal(t, 1, evaluator.invalidated, "cache must be invalidated before re-evaluating")
	assert.Equal(t, 1, evaluator.evaluated)
	assert.Equal(t, 40, result.Evaluation.Percentage)
}

func TestRecordRejectsPercentageOutOfBounds(t *testing.T) {
	svc := NewProgressService(&stubProgressRepo{}, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: true}, &stubEvaluator{}, nil, nil, nil, nil)

	for _, pct := range []int{-1, 101} {
		_, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: pct})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestRecordRejectsNegativePosition(t *testing.T) {
	svc := NewProgressService(&stubProgressRepo{}, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: true}, &stubEvaluator{}, nil, nil, nil, nil)

	_, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 50, LastPositionSeconds: -5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordWithoutEnrollmentIsForbidden(t *testing.T) {
	svc := NewProgressService(&stubProgressRepo{}, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: false}, &stubEvaluator{}, nil, nil, nil, nil)

	_, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 50})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRecordFreePreviewSkipsEnrollmentCheck(t *testing.T) {
	lesson := publishedLesson()
	lesson.FreePreview = true
	evaluator := &stubEvaluator{eval: &models.CourseEvaluation{Percentage: 10}}
	svc := NewProgressService(&stubProgressRepo{}, &stubLessonReader{lesson: lesson}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: false}, evaluator, nil, nil, nil, nil)

	_, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 50})
	require.NoError(t, err)
}

func TestRecordUnpublishedLessonIsRejected(t *testing.T) {
	lesson := publishedLesson()
	lesson.Published = false
	svc := NewProgressService(&stubProgressRepo{}, &stubLessonReader{lesson: lesson}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: true}, &stubEvaluator{}, nil, nil, nil, nil)

	_, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 50})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRecordLowerPercentageOverwrites(t *testing.T) {
	repo := &stubProgressRepo{}
	evaluator := &stubEvaluator{eval: &models.CourseEvaluation{Percentage: 20}}
	svc := NewProgressService(repo, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: true}, evaluator, nil, nil, nil, nil)

	_, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, repo.upserted.WatchedPercentage, "writes are last-write-wins, lower values stick")
}

func TestRecordJustCompletedTriggersSideEffects(t *testing.T) {
	evaluator := &stubEvaluator{eval: &models.CourseEvaluation{Percentage: 100, Completed: true, JustCompleted: true}}
	certs := &stubCertRequester{}
	events := &recordingProgressEvents{}
	svc := NewProgressService(&stubProgressRepo{}, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: true}, evaluator, certs, events, nil, nil)

	_, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, certs.calls)
	require.Len(t, events.completed, 1)
	assert.Equal(t, [2]string{"user-1", "course-1"}, events.completed[0])
}

func TestRecordCertificateFailureDoesNotFailWrite(t *testing.T) {
	evaluator := &stubEvaluator{eval: &models.CourseEvaluation{Percentage: 100, Completed: true, JustCompleted: true}}
	certs := &stubCertRequester{err: errors.New("certificate store down")}
	svc := NewProgressService(&stubProgressRepo{}, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: true}, evaluator, certs, nil, nil, nil)

	result, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 100})
	require.NoError(t, err)
	assert.True(t, result.Evaluation.JustCompleted)
	assert.Equal(t, 1, certs.calls)
}

func TestRecordUnpublishedCourseSkipsEvaluation(t *testing.T) {
	course := publishedCourse(nil)
	course.Published = false
	repo := &stubProgressRepo{}
	evaluator := &stubEvaluator{eval: &models.CourseEvaluation{Percentage: 100, Completed: true, JustCompleted: true}}
	certs := &stubCertRequester{}
	events := &recordingProgressEvents{}
	svc := NewProgressService(repo, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: course}, &stubEnrollmentChecker{active: true}, evaluator, certs, events, nil, nil)

	result, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 100})
	require.NoError(t, err)
	require.NotNil(t, repo.upserted, "the watch state itself is still stored")
	assert.Nil(t, result.Evaluation)
	assert.Zero(t, evaluator.invalidated)
	assert.Zero(t, evaluator.evaluated, "an unpublished course must not evaluate")
	assert.Zero(t, certs.calls)
	assert.Empty(t, events.completed)
}

func TestRecordRepeatedCompletionDoesNotReEmit(t *testing.T) {
	evaluator := &stubEvaluator{eval: &models.CourseEvaluation{Percentage: 100, Completed: true, JustCompleted: false}}
	certs := &stubCertRequester{}
	events := &recordingProgressEvents{}
	svc := NewProgressService(&stubProgressRepo{}, &stubLessonReader{lesson: publishedLesson()}, &stubCourseReader{course: publishedCourse(nil)}, &stubEnrollmentChecker{active: true}, evaluator, certs, events, nil, nil)

	_, err := svc.Record(context.Background(), studentActor(), RecordProgressRequest{LessonID: "lesson-1", WatchedPercentage: 100})
	require.NoError(t, err)
	assert.Zero(t, certs.calls)
	assert.Empty(t, events.completed)
}
