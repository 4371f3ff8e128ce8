package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/opencourse/lms-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentColumns() []string {
	return []string{"id", "user_id", "course_id", "status", "paid_amount", "currency", "payment_reference", "enrolled_at", "canceled_at"}
}

func TestEnrollmentRepositoryFindByUserAndCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows(enrollmentColumns()).
		AddRow("enr-1", "user-1", "course-1", models.EnrollmentStatusCanceled, nil, "USD", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE user_id = $1 AND course_id = $2")).
		WithArgs("user-1", "course-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByUserAndCourse(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, "enr-1", enrollment.ID)
	require.Equal(t, models.EnrollmentStatusCanceled, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 AND status = $3")).
		WithArgs("user-1", "course-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActiveNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 AND status = $3")).
		WithArgs("user-1", "course-1", models.EnrollmentStatusActive).
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsActive(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{UserID: "user-1", CourseID: "course-1", Currency: "USD"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.False(t, enrollment.EnrolledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateSurfacesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Enrollment{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateWrapsOtherErrors(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), &models.Enrollment{UserID: "user-1", CourseID: "course-1"})
	require.Error(t, err)
	require.False(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	canceledAt := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, canceled_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("enr-1", models.EnrollmentStatusCanceled, &canceledAt, models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusCanceled, &canceledAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusLosesRaceOffActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// The enrollment already left active, so the guarded update matches
	// nothing and the caller sees the conflict.
	canceledAt := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, canceled_at = $3 WHERE id = $1 AND status = $4")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusCanceled, &canceledAt)
	require.ErrorIs(t, err, ErrNoRowUpdated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFiltersByUser(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	columns := append(enrollmentColumns(), "user_name", "course_title")
	rows := sqlmock.NewRows(columns).
		AddRow("enr-1", "user-1", "course-1", models.EnrollmentStatusActive, nil, "USD", nil, time.Now(), nil, "Ada Lovelace", "Intro to Go")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.id, e.user_id, e.course_id")).
		WithArgs("user-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, enrollments, 1)
	require.Equal(t, "Intro to Go", enrollments[0].CourseTitle)
	require.NoError(t, mock.ExpectationsWereMet())
}
