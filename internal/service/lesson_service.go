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

type lessonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, lesson *models.Lesson) error
	SetPublished(ctx context.Context, id string, published bool, ts time.Time) error
}

type lessonCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateLessonRequest is the payload for adding a lesson to a course.
type CreateLessonRequest struct {
	CourseID        string `json:"course_id" validate:"required"`
	Title           string `json:"title" validate:"required,min=3,max=255"`
	Position        int    `json:"position" validate:"min=0"`
	VideoURL        string `json:"video_url" validate:"required,url"`
	DurationSeconds int    `json:"duration_seconds" validate:"min=0"`
	FreePreview     bool   `json:"free_preview"`
}

// UpdateLessonRequest is the payload for editing a lesson.
type UpdateLessonRequest struct {
	Title           *string `json:"title,omitempty" validate:"omitempty,min=3,max=255"`
	Position        *int    `json:"position,omitempty" validate:"omitempty,min=0"`
	VideoURL        *string `json:"video_url,omitempty" validate:"omitempty,url"`
	DurationSeconds *int    `json:"duration_seconds,omitempty" validate:"omitempty,min=0"`
	FreePreview     *bool   `json:"free_preview,omitempty"`
}

// LessonService manages lessons within a course.
type LessonService struct {
	repo      lessonRepository
	courses   lessonCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs LessonService.
func NewLessonService(repo lessonRepository, courses lessonCourseReader, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// ListByCourse returns lessons ordered by position. Students only see
// published lessons; the owning instructor and admins see drafts too.
func (s *LessonService) ListByCourse(ctx context.Context, actor models.Actor, courseID string) ([]models.Lesson, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	publishedOnly := !actor.IsAdmin() && course.InstructorID != actor.UserID
	lessons, err := s.repo.ListByCourse(ctx, courseID, publishedOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// Create adds an unpublished lesson to a course the actor owns.
func (s *LessonService) Create(ctx context.Context, actor models.Actor, req CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	course, err := s.loadCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if course.InstructorID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin may add lessons")
	}
	lesson := &models.Lesson{
		CourseID:        course.ID,
		Title:           req.Title,
		Position:        req.Position,
		VideoURL:        req.VideoURL,
		DurationSeconds: req.DurationSeconds,
		FreePreview:     req.FreePreview,
	}
	if err := s.repo.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// Update edits a lesson within a course the actor owns.
func (s *LessonService) Update(ctx context.Context, actor models.Actor, id string, req UpdateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lesson, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	course, err := s.loadCourse(ctx, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if course.InstructorID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin may edit lessons")
	}

	if req.Title != nil {
		lesson.Title = *req.Title
	}
	if req.Position != nil {
		lesson.Position = *req.Position
	}
	if req.VideoURL != nil {
		lesson.VideoURL = *req.VideoURL
	}
	if req.DurationSeconds != nil {
		lesson.DurationSeconds = *req.DurationSeconds
	}
	if req.FreePreview != nil {
		lesson.FreePreview = *req.FreePreview
	}
	if err := s.repo.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// SetPublished flips lesson visibility. Called by the moderation workflow on
// approval.
func (s *LessonService) SetPublished(ctx context.Context, id string, published bool) error {
	return s.repo.SetPublished(ctx, id, published, time.Now().UTC())
}

func (s *LessonService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
