package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/opencourse/lms-api/internal/models"
)

func newCertificateRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCertificateRepositoryIdentifierExists(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM certificates WHERE certificate_number = $1 OR verification_hash = $2")).
		WithArgs("CERT-AB12-2025-0001", "deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	taken, err := repo.IdentifierExists(context.Background(), "CERT-AB12-2025-0001", "deadbeef")
	require.NoError(t, err)
	require.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryIdentifierExistsNoRows(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM certificates WHERE certificate_number = $1 OR verification_hash = $2")).
		WithArgs("CERT-AB12-2025-0001", "deadbeef").
		WillReturnError(sql.ErrNoRows)

	taken, err := repo.IdentifierExists(context.Background(), "CERT-AB12-2025-0001", "deadbeef")
	require.NoError(t, err)
	require.False(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cert := &models.Certificate{
		EnrollmentID:      "enr-1",
		CertificateNumber: "CERT-AB12-2025-0001",
		VerificationHash:  "deadbeef",
	}
	require.NoError(t, repo.Create(context.Background(), cert))
	require.NotEmpty(t, cert.ID)
	require.Equal(t, models.CertificateStatusPending, cert.Status)
	require.False(t, cert.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreateSurfacesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	// The raw violation drives the service retry loop, so it must not be
	// wrapped into an opaque error.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Certificate{EnrollmentID: "enr-1"})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryMarkApproved(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	issuedAt := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status = $2, issued_at = $3, issued_by = $4 WHERE id = $1 AND status = $5")).
		WithArgs("cert-1", models.CertificateStatusApproved, issuedAt, "admin-1", models.CertificateStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkApproved(context.Background(), "cert-1", "admin-1", issuedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryMarkApprovedLosesRaceOnChangedStatus(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	// The row already left pending, so the guarded update touches nothing.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status = $2, issued_at = $3, issued_by = $4 WHERE id = $1 AND status = $5")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkApproved(context.Background(), "cert-1", "admin-1", time.Now())
	require.ErrorIs(t, err, ErrNoRowUpdated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryMarkRevoked(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	revokedAt := time.Date(2025, 7, 2, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status = $2, revoked_at = $3, revoked_by = $4, revocation_reason = $5 WHERE id = $1 AND status = $6")).
		WithArgs("cert-1", models.CertificateStatusRevoked, revokedAt, "admin-1", "issued in error", models.CertificateStatusApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRevoked(context.Background(), "cert-1", "admin-1", "issued in error", revokedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryMarkRevokedLosesRaceOnChangedStatus(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status = $2, revoked_at = $3, revoked_by = $4, revocation_reason = $5 WHERE id = $1 AND status = $6")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRevoked(context.Background(), "cert-1", "admin-1", "issued in error", time.Now())
	require.ErrorIs(t, err, ErrNoRowUpdated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryFindDetailByHash(t *testing.T) {
	db, mock, cleanup := newCertificateRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	createdAt := time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "enrollment_id", "certificate_number", "verification_hash", "status",
		"issued_at", "issued_by", "revoked_at", "revoked_by", "revocation_reason", "created_at",
		"course_title", "holder_name", "issuer_name",
	}).AddRow("cert-1", "enr-1", "CERT-AB12-2025-0001", "deadbeef", models.CertificateStatusApproved,
		createdAt, "admin-1", nil, nil, nil, createdAt,
		"Intro to Go", "Ada Lovelace", "Grace Hopper")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ct.verification_hash = $1")).
		WithArgs("deadbeef").
		WillReturnRows(rows)

	detail, err := repo.FindDetailByHash(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.Equal(t, "Intro to Go", detail.CourseTitle)
	require.Equal(t, "Ada Lovelace", detail.HolderName)
	require.NoError(t, mock.ExpectationsWereMet())
}
