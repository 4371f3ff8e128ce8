package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/opencourse/lms-api/internal/models"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type progressAggregator interface {
	CourseCounts(ctx context.Context, userID, courseID string, threshold int) (*models.CourseProgressCounts, error)
}

type completionRepository interface {
	InsertIfAbsent(ctx context.Context, completion *models.CourseCompletion) (bool, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.CourseCompletion, error)
}

// CompletionService derives whole-course completion from stored lesson
// progress. It never writes progress rows itself; the only row it owns is the
// once-per-(user, course) completion record.
type CompletionService struct {
	progress    progressAggregator
	completions completionRepository
	cache       *CacheService
	metrics     *MetricsService
	threshold   int
	logger      *zap.Logger
}

// NewCompletionService constructs CompletionService. threshold is the lesson
// completion threshold in percent (default 90).
func NewCompletionService(progress progressAggregator, completions completionRepository, cache *CacheService, metrics *MetricsService, threshold int, logger *zap.Logger) *CompletionService {
	if threshold <= 0 || threshold > 100 {
		threshold = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionService{
		progress:    progress,
		completions: completions,
		cache:       cache,
		metrics:     metrics,
		threshold:   threshold,
		logger:      logger,
	}
}

func completionCacheKey(userID, courseID string) string {
	return fmt.Sprintf("completion:pct:%s:%s", userID, courseID)
}

// Percentage returns the user's completion percentage for a course in
// [0, 100]. A course with zero published lessons yields 0.
func (s *CompletionService) Percentage(ctx context.Context, userID, courseID string) (int, error) {
	key := completionCacheKey(userID, courseID)
	var cached int
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	counts, err := s.progress.CourseCounts(ctx, userID, courseID, s.threshold)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate progress")
	}
	pct := percentageOf(counts)
	_ = s.cache.Set(ctx, key, pct, 0)
	return pct, nil
}

// Evaluate recomputes completion against durable state. `Completed` is true
// only at a full 100% with at least one published lesson. `JustCompleted` is
// true for exactly one caller per (user, course): the completion row's unique
// constraint arbitrates concurrent evaluations, and the loser reads back the
// original CompletedAt instead of erroring.
func (s *CompletionService) Evaluate(ctx context.Context, userID, courseID string) (*models.CourseEvaluation, error) {
	counts, err := s.progress.CourseCounts(ctx, userID, courseID, s.threshold)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate progress")
	}

	eval := &models.CourseEvaluation{Percentage: percentageOf(counts)}
	if counts.PublishedLessons == 0 || eval.Percentage < 100 {
		return eval, nil
	}
	eval.Completed = true

	completion := &models.CourseCompletion{
		UserID:      userID,
		CourseID:    courseID,
		CompletedAt: time.Now().UTC(),
	}
	inserted, err := s.completions.InsertIfAbsent(ctx, completion)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record completion")
	}
	if inserted {
		eval.JustCompleted = true
		eval.CompletedAt = &completion.CompletedAt
		s.metrics.RecordCompletion()
		return eval, nil
	}

	existing, err := s.completions.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Completion row vanished between insert and read; only cascading
			// user/course deletion can cause this.
			return eval, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completion")
	}
	eval.CompletedAt = &existing.CompletedAt
	return eval, nil
}

// Invalidate drops the cached percentage after a progress write.
func (s *CompletionService) Invalidate(ctx context.Context, userID, courseID string) {
	s.cache.Delete(ctx, completionCacheKey(userID, courseID))
}

func percentageOf(counts *models.CourseProgressCounts) int {
	if counts == nil || counts.PublishedLessons == 0 {
		return 0
	}
	return int(math.Round(100 * float64(counts.CompletedLessons) / float64(counts.PublishedLessons)))
}
