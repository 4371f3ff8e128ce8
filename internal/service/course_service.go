package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencourse/lms-api/internal/models"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SetPublished(ctx context.Context, id string, published bool, ts time.Time) error
}

// CreateCourseRequest is the payload for creating a catalog course.
type CreateCourseRequest struct {
	Title       string   `json:"title" validate:"required,min=3,max=255"`
	Slug        string   `json:"slug" validate:"required,min=3,max=255"`
	Description string   `json:"description"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,min=0"`
	Currency    string   `json:"currency" validate:"omitempty,len=3"`
}

// UpdateCourseRequest is the payload for editing a course.
type UpdateCourseRequest struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,min=3,max=255"`
	Slug        *string  `json:"slug,omitempty" validate:"omitempty,min=3,max=255"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,min=0"`
	Currency    *string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// CourseService manages the course catalog. New courses start unpublished;
// publication flows through moderation review approval.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns catalog courses. Non-admin callers only see published courses
// unless they filter on their own instructor ID.
func (s *CourseService) List(ctx context.Context, actor models.Actor, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	if !actor.IsAdmin() && filter.InstructorID != actor.UserID {
		published := true
		filter.Published = &published
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
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
	return courses, pagination, nil
}

// Get returns a course by ID. Unpublished courses are visible only to admins
// and the owning instructor.
func (s *CourseService) Get(ctx context.Context, actor models.Actor, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Published && !actor.IsAdmin() && course.InstructorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, nil
}

// Create registers an unpublished course owned by the acting instructor.
func (s *CourseService) Create(ctx context.Context, actor models.Actor, req CreateCourseRequest) (*models.Course, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleInstructor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors may create courses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	course := &models.Course{
		Title:        req.Title,
		Slug:         req.Slug,
		Description:  req.Description,
		InstructorID: actor.UserID,
		Price:        req.Price,
		Currency:     currency,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update edits a course owned by the actor (admins may edit any course).
func (s *CourseService) Update(ctx context.Context, actor models.Actor, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.InstructorID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin may edit")
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Slug != nil {
		course.Slug = *req.Slug
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Price != nil {
		course.Price = req.Price
	}
	if req.Currency != nil {
		course.Currency = strings.ToUpper(*req.Currency)
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// SetPublished flips course visibility. Called by the moderation workflow on
// approval and by admins directly for unpublishing.
func (s *CourseService) SetPublished(ctx context.Context, id string, published bool) error {
	return s.repo.SetPublished(ctx, id, published, time.Now().UTC())
}
