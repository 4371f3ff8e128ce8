package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencourse/lms-api/internal/models"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
	"github.com/opencourse/lms-api/pkg/export"
	"github.com/opencourse/lms-api/pkg/storage"
)

type transcriptProgressReader interface {
	CourseRows(ctx context.Context, actor models.Actor, courseID string) ([]models.LessonProgressRow, error)
}

type transcriptCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// TranscriptExport is the handle returned after rendering a transcript.
type TranscriptExport struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TranscriptService renders a user's per-lesson progress for a course into a
// downloadable CSV or PDF file behind a signed URL.
type TranscriptService struct {
	progress transcriptProgressReader
	courses  transcriptCourseReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	enabled  bool
	logger   *zap.Logger
}

// NewTranscriptService constructs TranscriptService.
func NewTranscriptService(progress transcriptProgressReader, courses transcriptCourseReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, enabled bool, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{
		progress: progress,
		courses:  courses,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		store:    store,
		signer:   signer,
		enabled:  enabled,
		logger:   logger,
	}
}

// Export renders the actor's transcript for a course and returns a signed
// download handle.
func (s *TranscriptService) Export(ctx context.Context, actor models.Actor, courseID string, format models.TranscriptFormat) (*TranscriptExport, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "transcript export is disabled")
	}
	if format != models.TranscriptFormatCSV && format != models.TranscriptFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported transcript format")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	rows, err := s.progress.CourseRows(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	dataset := buildTranscriptDataset(rows)
	var payload []byte
	switch format {
	case models.TranscriptFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.TranscriptFormatPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("Progress Report: %s", course.Title))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}

	exportID := uuid.NewString()
	fileName := fmt.Sprintf("%s/%s-%s.%s", actor.UserID, courseID, exportID, format)
	if _, err := s.store.Save(fileName, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store transcript")
	}

	token, expiresAt, err := s.signer.Generate(exportID, fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	return &TranscriptExport{
		ID:          exportID,
		FileName:    fileName,
		DownloadURL: fmt.Sprintf("/transcripts/download?token=%s", token),
		ExpiresAt:   expiresAt,
	}, nil
}

// OpenDownload validates the signed token and opens the stored file.
func (s *TranscriptService) OpenDownload(token string) (*os.File, string, error) {
	if !s.enabled {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "transcript export is disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "transcript no longer available")
	}
	return file, relPath, nil
}

// Cleanup removes exports older than the signer TTL. Intended for a periodic
// background sweep.
func (s *TranscriptService) Cleanup(ttl time.Duration) {
	if !s.enabled || s.store == nil {
		return
	}
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("transcript cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("transcript cleanup removed files", zap.Int("count", len(deleted)))
	}
}

func buildTranscriptDataset(rows []models.LessonProgressRow) export.Dataset {
	headers := []string{"Position", "Lesson", "Watched %", "Last Watched"}
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		lastWatched := ""
		if row.LastWatchedAt != nil {
			lastWatched = row.LastWatchedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, map[string]string{
			"Position":     strconv.Itoa(row.Position),
			"Lesson":       row.LessonTitle,
			"Watched %":    strconv.Itoa(row.WatchedPercentage),
			"Last Watched": lastWatched,
		})
	}
	return export.Dataset{Headers: headers, Rows: out}
}
