package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opencourse/lms-api/internal/models"
	"github.com/opencourse/lms-api/internal/repository"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type certificateRepository interface {
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Certificate, error)
	FindDetailByHash(ctx context.Context, hash string) (*models.CertificateDetail, error)
	IdentifierExists(ctx context.Context, number, hash string) (bool, error)
	Create(ctx context.Context, cert *models.Certificate) error
	MarkApproved(ctx context.Context, id, issuedBy string, issuedAt time.Time) error
	MarkRevoked(ctx context.Context, id, revokedBy, reason string, revokedAt time.Time) error
}

type certificateEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
}

type certificateCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type completionPercentageReader interface {
	Percentage(ctx context.Context, userID, courseID string) (int, error)
}

type certificateEvents interface {
	CertificateIssued(cert *models.Certificate)
}

// CertificateService manages the per-enrollment certificate: eligibility,
// identifier generation, the PENDING -> APPROVED -> REVOKED state machine,
// and public verification.
type CertificateService struct {
	repo        certificateRepository
	enrollments certificateEnrollmentReader
	courses     certificateCourseReader
	completions completionPercentageReader
	events      certificateEvents
	metrics     *MetricsService
	threshold   int
	maxAttempts int
	logger      *zap.Logger
}

// NewCertificateService constructs CertificateService. threshold is the
// eligibility percentage, maxAttempts caps the identifier generation loop.
func NewCertificateService(repo certificateRepository, enrollments certificateEnrollmentReader, courses certificateCourseReader, completions completionPercentageReader, events certificateEvents, metrics *MetricsService, threshold, maxAttempts int, logger *zap.Logger) *CertificateService {
	if threshold <= 0 || threshold > 100 {
		threshold = 90
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		repo:        repo,
		enrollments: enrollments,
		courses:     courses,
		completions: completions,
		events:      events,
		metrics:     metrics,
		threshold:   threshold,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// RequestForEnrollment creates the pending certificate for an enrollment the
// actor owns (admins may request on behalf of anyone). Requesting again after
// a certificate exists returns the existing one unchanged, whatever its state.
func (s *CertificateService) RequestForEnrollment(ctx context.Context, actor models.Actor, enrollmentID string) (*models.Certificate, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin may request a certificate")
	}
	return s.request(ctx, enrollment)
}

// RequestForCompletion creates the pending certificate after a course
// completion, looking up the enrollment by (user, course).
func (s *CertificateService) RequestForCompletion(ctx context.Context, userID, courseID string) (*models.Certificate, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return s.request(ctx, enrollment)
}

func (s *CertificateService) request(ctx context.Context, enrollment *models.Enrollment) (*models.Certificate, error) {
	if existing, err := s.repo.FindByEnrollment(ctx, enrollment.ID); err == nil {
		return existing, nil
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}

	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentNotActive, "")
	}

	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Published {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not published")
	}

	pct, err := s.completions.Percentage(ctx, enrollment.UserID, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	if pct < s.threshold {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, fmt.Sprintf("completion %d%% is below the required %d%%", pct, s.threshold))
	}

	return s.generate(ctx, enrollment.ID)
}

// generate creates the certificate with fresh identifiers, retrying on
// identifier collisions. If a concurrent request won the per-enrollment
// uniqueness race, the winner's row is returned instead of an error.
func (s *CertificateService) generate(ctx context.Context, enrollmentID string) (*models.Certificate, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		number, err := newCertificateNumber()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate certificate number")
		}
		hash, err := newVerificationHash()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification hash")
		}

		taken, err := s.repo.IdentifierExists(ctx, number, hash)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check certificate identifiers")
		}
		if taken {
			continue
		}

		cert := &models.Certificate{
			EnrollmentID:      enrollmentID,
			CertificateNumber: number,
			VerificationHash:  hash,
			Status:            models.CertificateStatusPending,
			CreatedAt:         time.Now().UTC(),
		}
		if err := s.repo.Create(ctx, cert); err != nil {
			if repository.IsUniqueViolation(err) {
				if existing, findErr := s.repo.FindByEnrollment(ctx, enrollmentID); findErr == nil {
					return existing, nil
				}
				// Identifier collided with a row created after the pre-check.
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create certificate")
		}
		s.metrics.RecordCertificateTransition("requested")
		return cert, nil
	}
	return nil, appErrors.Clone(appErrors.ErrInternal, "could not generate unique certificate identifiers")
}

// Approve transitions a pending certificate to approved, recording the admin
// as issuer. Approving a non-pending certificate is a conflict.
func (s *CertificateService) Approve(ctx context.Context, actor models.Actor, id string) (*models.Certificate, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may approve certificates")
	}
	cert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.Status != models.CertificateStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("certificate is %s, only pending certificates can be approved", strings.ToLower(string(cert.Status))))
	}
	issuedAt := time.Now().UTC()
	if err := s.repo.MarkApproved(ctx, id, actor.UserID, issuedAt); err != nil {
		// A concurrent approve won between the read above and the guarded
		// write; exactly one caller transitions and emits the issued event.
		if errors.Is(err, repository.ErrNoRowUpdated) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "certificate is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve certificate")
	}
	cert.Status = models.CertificateStatusApproved
	cert.IssuedAt = &issuedAt
	cert.IssuedBy = &actor.UserID
	s.metrics.RecordCertificateTransition("approved")
	if s.events != nil {
		s.events.CertificateIssued(cert)
	}
	return cert, nil
}

// Revoke transitions an approved certificate to revoked. The reason is
// mandatory; pending certificates cannot be revoked and revocation is final.
func (s *CertificateService) Revoke(ctx context.Context, actor models.Actor, id, reason string) (*models.Certificate, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may revoke certificates")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "revocation reason is required")
	}
	cert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.Status != models.CertificateStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("certificate is %s, only approved certificates can be revoked", strings.ToLower(string(cert.Status))))
	}
	revokedAt := time.Now().UTC()
	if err := s.repo.MarkRevoked(ctx, id, actor.UserID, reason, revokedAt); err != nil {
		if errors.Is(err, repository.ErrNoRowUpdated) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "certificate is no longer approved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke certificate")
	}
	cert.Status = models.CertificateStatusRevoked
	cert.RevokedAt = &revokedAt
	cert.RevokedBy = &actor.UserID
	cert.RevocationReason = &reason
	s.metrics.RecordCertificateTransition("revoked")
	return cert, nil
}

// Verify resolves a verification hash to certificate details. Unknown hashes
// and blank input produce the same not-found shape as a real miss, and
// revoked certificates are returned with their revoked status visible.
func (s *CertificateService) Verify(ctx context.Context, hash string) (*models.CertificateVerification, error) {
	if strings.TrimSpace(hash) == "" {
		return &models.CertificateVerification{Found: false}, nil
	}
	detail, err := s.repo.FindDetailByHash(ctx, hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.CertificateVerification{Found: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify certificate")
	}
	return &models.CertificateVerification{Found: true, Certificate: detail}, nil
}

// GetForEnrollment returns the certificate attached to an enrollment the
// actor owns.
func (s *CertificateService) GetForEnrollment(ctx context.Context, actor models.Actor, enrollmentID string) (*models.Certificate, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin may view the certificate")
	}
	cert, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

func (s *CertificateService) load(ctx context.Context, id string) (*models.Certificate, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

const certificateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newCertificateNumber() (string, error) {
	var b strings.Builder
	b.WriteString("CERT-")
	for i := 0; i < 4; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(certificateAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(certificateAlphabet[n.Int64()])
	}
	suffix, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "-%d-%04d", time.Now().UTC().Year(), suffix.Int64())
	return b.String(), nil
}

func newVerificationHash() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
