package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-core-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCreateInserts(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	enrollment := &models.Enrollment{
		ID:         "enr-1",
		LearnerID:  "learner-1",
		UnitID:     "unit-1",
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(enrollment.ID, enrollment.LearnerID, enrollment.UnitID, enrollment.Status, enrollment.EnrolledAt, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateConflictReportsNoInsert(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	enrollment := &models.Enrollment{
		ID:         "enr-2",
		LearnerID:  "learner-1",
		UnitID:     "unit-1",
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	// The race loser hits ON CONFLICT DO NOTHING and affects zero rows.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(enrollment.ID, enrollment.LearnerID, enrollment.UnitID, enrollment.Status, enrollment.EnrolledAt, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySetStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusCancelled))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountCompletedCore(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e")).
		WithArgs("learner-1", "cur-1", models.KindCore).
		WillReturnRows(rows)

	count, err := repo.CountCompletedCore(context.Background(), "learner-1", "cur-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFiltersByLearnerAndStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "learner_id", "unit_id", "status", "enrolled_at", "completed_at", "unit_slug", "unit_title"}).
		AddRow("enr-1", "learner-1", "unit-1", models.EnrollmentStatusActive, time.Now(), nil, "go-basics", "Go Basics")
	mock.ExpectQuery(regexp.QuoteMeta("e.learner_id = $1 AND e.status = $2")).
		WithArgs("learner-1", models.EnrollmentStatusActive).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e")).
		WithArgs("learner-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{
		LearnerID: "learner-1",
		Status:    models.EnrollmentStatusActive,
	})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "Go Basics", enrollments[0].UnitTitle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByLearnerAndUnit(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "learner_id", "unit_id", "status", "enrolled_at", "completed_at"}).
		AddRow("enr-1", "learner-1", "unit-1", models.EnrollmentStatusActive, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE learner_id = $1 AND unit_id = $2")).
		WithArgs("learner-1", "unit-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByLearnerAndUnit(context.Background(), "learner-1", "unit-1")
	require.NoError(t, err)
	require.Equal(t, "enr-1", enrollment.ID)
	require.Nil(t, enrollment.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
