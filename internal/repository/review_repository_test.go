package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/opencourse/lms-api/internal/models"
)

func newReviewRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestReviewRepositoryUpsertKeepsExistingRowID(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()
	repo := NewReviewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO moderation_reviews (id, subject_type, subject_id, state, submitted_by, reviewer_id, note, submitted_at, reviewed_at)")).
		WithArgs(sqlmock.AnyArg(), models.ReviewSubjectCourse, "course-1", models.ReviewStatePending, "inst-1", nil, nil, sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rev-1"))

	review := &models.ModerationReview{
		SubjectType: models.ReviewSubjectCourse,
		SubjectID:   "course-1",
		State:       models.ReviewStatePending,
		SubmittedBy: "inst-1",
	}
	require.NoError(t, repo.Upsert(context.Background(), review))
	require.Equal(t, "rev-1", review.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepositoryFindBySubject(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()
	repo := NewReviewRepository(db)

	submittedAt := time.Date(2025, 3, 15, 11, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "subject_type", "subject_id", "state", "submitted_by", "reviewer_id", "note", "submitted_at", "reviewed_at"}).
		AddRow("rev-1", models.ReviewSubjectLesson, "lesson-1", models.ReviewStateRejected, "inst-1", "admin-1", "thin content", submittedAt, submittedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM moderation_reviews WHERE subject_type = $1 AND subject_id = $2")).
		WithArgs(models.ReviewSubjectLesson, "lesson-1").
		WillReturnRows(rows)

	review, err := repo.FindBySubject(context.Background(), models.ReviewSubjectLesson, "lesson-1")
	require.NoError(t, err)
	require.Equal(t, models.ReviewStateRejected, review.State)
	require.NotNil(t, review.Note)
	require.Equal(t, "thin content", *review.Note)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepositoryUpdateState(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()
	repo := NewReviewRepository(db)

	reviewedAt := time.Date(2025, 3, 16, 11, 0, 0, 0, time.UTC)
	note := "approved after revision"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE moderation_reviews SET state = $2, reviewer_id = $3, note = $4, reviewed_at = $5 WHERE id = $1")).
		WithArgs("rev-1", models.ReviewStateApproved, "admin-1", &note, reviewedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateState(context.Background(), "rev-1", models.ReviewStateApproved, "admin-1", &note, reviewedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}
