package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencourse/lms-api/internal/models"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type progressRepository interface {
	Upsert(ctx context.Context, progress *models.LessonProgress) error
	FindByUserAndLesson(ctx context.Context, userID, lessonID string) (*models.LessonProgress, error)
	ListCourseRows(ctx context.Context, userID, courseID string) ([]models.LessonProgressRow, error)
}

type progressLessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

type progressCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type progressEnrollmentChecker interface {
	ExistsActive(ctx context.Context, userID, courseID string) (bool, error)
}

type completionEvaluator interface {
	Evaluate(ctx context.Context, userID, courseID string) (*models.CourseEvaluation, error)
	Invalidate(ctx context.Context, userID, courseID string)
}

type certificateRequester interface {
	RequestForCompletion(ctx context.Context, userID, courseID string) (*models.Certificate, error)
}

type progressEvents interface {
	CourseCompleted(userID, courseID string)
}

// RecordProgressRequest reports watch position for a lesson.
type RecordProgressRequest struct {
	LessonID            string `json:"lesson_id" validate:"required"`
	WatchedPercentage   int    `json:"watched_percentage" validate:"min=0,max=100"`
	LastPositionSeconds int    `json:"last_position_seconds" validate:"min=0"`
}

// RecordProgressResult pairs the stored row with the course evaluation the
// write triggered.
type RecordProgressResult struct {
	Progress   *models.LessonProgress  `json:"progress"`
	Evaluation *models.CourseEvaluation `json:"evaluation"`
}

// ProgressService records lesson watch state and chains the downstream
// completion evaluation after every write.
type ProgressService struct {
	repo         progressRepository
	lessons      progressLessonReader
	courses      progressCourseReader
	enrollments  progressEnrollmentChecker
	completions  completionEvaluator
	certificates certificateRequester
	events       progressEvents
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewProgressService constructs ProgressService.
func NewProgressService(repo progressRepository, lessons progressLessonReader, courses progressCourseReader, enrollments progressEnrollmentChecker, completions completionEvaluator, certificates certificateRequester, events progressEvents, validate *validator.Validate, logger *zap.Logger) *ProgressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		repo:         repo,
		lessons:      lessons,
		courses:      courses,
		enrollments:  enrollments,
		completions:  completions,
		certificates: certificates,
		events:       events,
		validator:    validate,
		logger:       logger,
	}
}

// Record upserts the watch state for (actor, lesson) and re-evaluates course
// completion. The write is last-write-wins: a lower percentage overwrites a
// higher one, since the player reports absolute position, not deltas.
//
// Completion side effects run after the write. A failed certificate request is
// logged and swallowed; the progress write already happened and must not be
// reported as failed.
func (s *ProgressService) Record(ctx context.Context, actor models.Actor, req RecordProgressRequest) (*RecordProgressResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress payload")
	}

	lesson, err := s.lessons.FindByID(ctx, req.LessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if !lesson.Published {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "lesson is not published")
	}

	course, err := s.courses.FindByID(ctx, lesson.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	active, err := s.enrollments.ExistsActive(ctx, actor.UserID, lesson.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !active && !lesson.FreePreview {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "active enrollment required")
	}

	progress := &models.LessonProgress{
		UserID:              actor.UserID,
		LessonID:            lesson.ID,
		WatchedPercentage:   req.WatchedPercentage,
		LastPositionSeconds: req.LastPositionSeconds,
		LastWatchedAt:       time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, progress); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record progress")
	}

	// Completion math only covers published courses. Progress against a
	// course taken down after enrollment is still stored, but it must not
	// evaluate, write a completion row, or emit completion facts.
	if !course.Published {
		return &RecordProgressResult{Progress: progress}, nil
	}

	s.completions.Invalidate(ctx, actor.UserID, lesson.CourseID)

	evaluation, err := s.completions.Evaluate(ctx, actor.UserID, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if evaluation.JustCompleted {
		s.onJustCompleted(ctx, actor.UserID, lesson.CourseID)
	}

	return &RecordProgressResult{Progress: progress, Evaluation: evaluation}, nil
}

// Get returns the stored progress row for (actor, lesson), or a zeroed row if
// nothing was recorded yet.
func (s *ProgressService) Get(ctx context.Context, actor models.Actor, lessonID string) (*models.LessonProgress, error) {
	progress, err := s.repo.FindByUserAndLesson(ctx, actor.UserID, lessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.LessonProgress{UserID: actor.UserID, LessonID: lessonID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	return progress, nil
}

// CourseRows returns the per-lesson transcript lines for a course.
func (s *ProgressService) CourseRows(ctx context.Context, actor models.Actor, courseID string) ([]models.LessonProgressRow, error) {
	rows, err := s.repo.ListCourseRows(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course progress")
	}
	return rows, nil
}

func (s *ProgressService) onJustCompleted(ctx context.Context, userID, courseID string) {
	if s.events != nil {
		s.events.CourseCompleted(userID, courseID)
	}
	if s.certificates == nil {
		return
	}
	if _, err := s.certificates.RequestForCompletion(ctx, userID, courseID); err != nil {
		s.logger.Warn("automatic certificate request failed",
			zap.String("user_id", userID),
			zap.String("course_id", courseID),
			zap.Error(err),
		)
	}
}
