package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newLessonRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLessonRepositoryFindDetail(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	rows := sqlmock.NewRows([]string{"id", "chapter_id", "title", "position", "unit_id", "chapter_position"}).
		AddRow("lesson-1", "chapter-1", "Interfaces", 2, "unit-1", 1)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE l.id = $1")).
		WithArgs("lesson-1").
		WillReturnRows(rows)

	detail, err := repo.FindDetail(context.Background(), "lesson-1")
	require.NoError(t, err)
	require.Equal(t, "unit-1", detail.UnitID)
	require.Equal(t, 1, detail.ChapterPosition)
	require.Equal(t, 2, detail.Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryNextLessonWithinChapter(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	rows := sqlmock.NewRows([]string{"id"}).AddRow("lesson-2")
	mock.ExpectQuery(regexp.QuoteMeta("(c.position > $2 OR (c.position = $2 AND l.position > $3))")).
		WithArgs("unit-1", 1, 2).
		WillReturnRows(rows)

	next, err := repo.NextLesson(context.Background(), "unit-1", 1, 2)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, "lesson-2", *next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryNextLessonAtEndOfUnit(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("(c.position > $2 OR (c.position = $2 AND l.position > $3))")).
		WithArgs("unit-1", 3, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	next, err := repo.NextLesson(context.Background(), "unit-1", 3, 5)
	require.NoError(t, err)
	require.Nil(t, next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryListByUnit(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	rows := sqlmock.NewRows([]string{"id", "chapter_id", "title", "position", "unit_id", "chapter_position"}).
		AddRow("lesson-1", "chapter-1", "Packages", 1, "unit-1", 1).
		AddRow("lesson-2", "chapter-1", "Interfaces", 2, "unit-1", 1).
		AddRow("lesson-3", "chapter-2", "Goroutines", 1, "unit-1", 2)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY c.position, l.position")).
		WithArgs("unit-1").
		WillReturnRows(rows)

	lessons, err := repo.ListByUnit(context.Background(), "unit-1")
	require.NoError(t, err)
	require.Len(t, lessons, 3)
	require.Equal(t, "Goroutines", lessons[2].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryCountByUnit(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons l")).
		WithArgs("unit-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountByUnit(context.Background(), "unit-1")
	require.NoError(t, err)
	require.Equal(t, 12, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
