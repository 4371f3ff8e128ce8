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

func newCompletionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCompletionRepositoryInsertIfAbsentInserted(t *testing.T) {
	db, mock, cleanup := newCompletionRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_completions (id, user_id, course_id, completed_at)")).
		WithArgs(sqlmock.AnyArg(), "user-1", "course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	completion := &models.CourseCompletion{UserID: "user-1", CourseID: "course-1"}
	inserted, err := repo.InsertIfAbsent(context.Background(), completion)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NotEmpty(t, completion.ID)
	require.False(t, completion.CompletedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositoryInsertIfAbsentConflict(t *testing.T) {
	db, mock, cleanup := newCompletionRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	// ON CONFLICT DO NOTHING reports zero affected rows for the loser.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_completions (id, user_id, course_id, completed_at)")).
		WithArgs(sqlmock.AnyArg(), "user-1", "course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertIfAbsent(context.Background(), &models.CourseCompletion{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositoryFindByUserAndCourse(t *testing.T) {
	db, mock, cleanup := newCompletionRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	completedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "completed_at"}).
		AddRow("comp-1", "user-1", "course-1", completedAt)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, course_id, completed_at FROM course_completions WHERE user_id = $1 AND course_id = $2")).
		WithArgs("user-1", "course-1").
		WillReturnRows(rows)

	completion, err := repo.FindByUserAndCourse(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, "comp-1", completion.ID)
	require.Equal(t, completedAt, completion.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
