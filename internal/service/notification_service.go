package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencourse/lms-api/internal/models"
	"github.com/opencourse/lms-api/pkg/config"
	"github.com/opencourse/lms-api/pkg/jobs"
)

// NotificationService emits domain facts onto an asynchronous delivery queue.
// The core only emits; channel fan-out (mail, push, in-app) happens behind
// the queue handler.
type NotificationService struct {
	queue  *jobs.Queue[models.Event]
	logger *zap.Logger
}

// NewNotificationService constructs the service and its backing queue.
func NewNotificationService(cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.Config{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start begins queue consumption.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// EnrollmentCreated emits the enrollment-created fact.
func (s *NotificationService) EnrollmentCreated(enrollment *models.Enrollment) {
	if enrollment == nil {
		return
	}
	s.emit(models.Event{
		Type:         models.EventEnrollmentCreated,
		UserID:       enrollment.UserID,
		CourseID:     enrollment.CourseID,
		EnrollmentID: enrollment.ID,
	})
}

// CourseCompleted emits the course-completed fact.
func (s *NotificationService) CourseCompleted(userID, courseID string) {
	s.emit(models.Event{
		Type:     models.EventCourseCompleted,
		UserID:   userID,
		CourseID: courseID,
	})
}

// CertificateIssued emits the certificate-issued fact.
func (s *NotificationService) CertificateIssued(cert *models.Certificate) {
	if cert == nil {
		return
	}
	s.emit(models.Event{
		Type:          models.EventCertificateIssued,
		EnrollmentID:  cert.EnrollmentID,
		CertificateID: cert.ID,
	})
}

func (s *NotificationService) emit(event models.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	task := jobs.Task[models.Event]{
		ID:      uuid.NewString(),
		Kind:    string(event.Type),
		Payload: event,
	}
	if err := s.queue.Enqueue(task); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", task.Kind), zap.Error(err))
	}
}

func (s *NotificationService) deliver(_ context.Context, task jobs.Task[models.Event]) error {
	event := task.Payload
	s.logger.Info("notification delivered",
		zap.String("type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.String("course_id", event.CourseID),
		zap.String("enrollment_id", event.EnrollmentID),
		zap.String("certificate_id", event.CertificateID),
	)
	return nil
}
