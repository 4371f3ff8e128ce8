package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencourse/lms-api/internal/models"
)

// CertificateRepository handles persistence of certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// FindByID returns a certificate by its ID.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	const query = `SELECT id, enrollment_id, certificate_number, verification_hash, status, issued_at, issued_by, revoked_at, revoked_by, revocation_reason, created_at FROM certificates WHERE id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindByEnrollment returns the certificate attached to an enrollment, if any.
func (r *CertificateRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Certificate, error) {
	const query = `SELECT id, enrollment_id, certificate_number, verification_hash, status, issued_at, issued_by, revoked_at, revoked_by, revocation_reason, created_at FROM certificates WHERE enrollment_id = $1 LIMIT 1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, enrollmentID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindDetailByHash looks up a certificate by verification hash joined with
// the course, holder, and issuer names. Used by the public verify endpoint.
func (r *CertificateRepository) FindDetailByHash(ctx context.Context, hash string) (*models.CertificateDetail, error) {
	const query = `SELECT ct.id, ct.enrollment_id, ct.certificate_number, ct.verification_hash, ct.status,
        ct.issued_at, ct.issued_by, ct.revoked_at, ct.revoked_by, ct.revocation_reason, ct.created_at,
        c.title AS course_title, u.full_name AS holder_name, iss.full_name AS issuer_name
        FROM certificates ct
        JOIN enrollments e ON e.id = ct.enrollment_id
        JOIN courses c ON c.id = e.course_id
        JOIN users u ON u.id = e.user_id
        LEFT JOIN users iss ON iss.id = ct.issued_by
        WHERE ct.verification_hash = $1 LIMIT 1`
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, query, hash); err != nil {
		return nil, err
	}
	return &detail, nil
}

// IdentifierExists reports whether either generated identifier is already
// taken. The certificate service uses this inside its generate loop; the
// unique indexes remain the final arbiter at commit time.
func (r *CertificateRepository) IdentifierExists(ctx context.Context, number, hash string) (bool, error) {
	const query = `SELECT 1 FROM certificates WHERE certificate_number = $1 OR verification_hash = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, number, hash); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check certificate identifiers: %w", err)
	}
	return true, nil
}

// Create persists a new certificate. Unique violations (enrollment pair or
// identifier collision) are surfaced raw for the service retry loop.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = time.Now().UTC()
	}
	if cert.Status == "" {
		cert.Status = models.CertificateStatusPending
	}
	const query = `INSERT INTO certificates (id, enrollment_id, certificate_number, verification_hash, status, issued_at, issued_by, revoked_at, revoked_by, revocation_reason, created_at)
        VALUES (:id, :enrollment_id, :certificate_number, :verification_hash, :status, :issued_at, :issued_by, :revoked_at, :revoked_by, :revocation_reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// MarkApproved transitions the certificate to approved with issuance info.
// The status predicate makes the transition atomic: a concurrent approve that
// already moved the row off pending leaves nothing to update, and the caller
// gets ErrNoRowUpdated instead of a double transition.
func (r *CertificateRepository) MarkApproved(ctx context.Context, id, issuedBy string, issuedAt time.Time) error {
	const query = `UPDATE certificates SET status = $2, issued_at = $3, issued_by = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.CertificateStatusApproved, issuedAt, issuedBy, models.CertificateStatusPending)
	if err != nil {
		return fmt.Errorf("approve certificate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve certificate result: %w", err)
	}
	if affected == 0 {
		return ErrNoRowUpdated
	}
	return nil
}

// MarkRevoked transitions the certificate to revoked with revocation info.
// Guarded on the approved status like MarkApproved.
func (r *CertificateRepository) MarkRevoked(ctx context.Context, id, revokedBy, reason string, revokedAt time.Time) error {
	const query = `UPDATE certificates SET status = $2, revoked_at = $3, revoked_by = $4, revocation_reason = $5 WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, models.CertificateStatusRevoked, revokedAt, revokedBy, reason, models.CertificateStatusApproved)
	if err != nil {
		return fmt.Errorf("revoke certificate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke certificate result: %w", err)
	}
	if affected == 0 {
		return ErrNoRowUpdated
	}
	return nil
}
