package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// LessonRepository resolves chapters, lessons and their ordering.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindDetail returns a lesson with its chapter position and owning unit.
func (r *LessonRepository) FindDetail(ctx context.Context, lessonID string) (*models.LessonDetail, error) {
	const query = `SELECT l.id, l.chapter_id, l.title, l.position,
        c.unit_id, c.position AS chapter_position
        FROM lessons l
        JOIN chapters c ON c.id = l.chapter_id
        WHERE l.id = $1`
	var detail models.LessonDetail
	if err := r.db.GetContext(ctx, &detail, query, lessonID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByUnit returns all lessons of a unit in chapter then lesson order.
func (r *LessonRepository) ListByUnit(ctx context.Context, unitID string) ([]models.LessonDetail, error) {
	const query = `SELECT l.id, l.chapter_id, l.title, l.position,
        c.unit_id, c.position AS chapter_position
        FROM lessons l
        JOIN chapters c ON c.id = l.chapter_id
        WHERE c.unit_id = $1
        ORDER BY c.position, l.position`
	var lessons []models.LessonDetail
	if err := r.db.SelectContext(ctx, &lessons, query, unitID); err != nil {
		return nil, fmt.Errorf("list unit lessons: %w", err)
	}
	return lessons, nil
}

// NextLesson resolves the lesson after the given one within its unit: next
// by position in the same chapter, else the first lesson of the next
// chapter, else nil when the unit's last lesson was reached.
func (r *LessonRepository) NextLesson(ctx context.Context, unitID string, chapterPosition, lessonPosition int) (*string, error) {
	const query = `SELECT l.id
        FROM lessons l
        JOIN chapters c ON c.id = l.chapter_id
        WHERE c.unit_id = $1
          AND (c.position > $2 OR (c.position = $2 AND l.position > $3))
        ORDER BY c.position, l.position
        LIMIT 1`
	var id string
	if err := r.db.GetContext(ctx, &id, query, unitID, chapterPosition, lessonPosition); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve next lesson: %w", err)
	}
	return &id, nil
}

// CountByUnit returns the total number of lessons owned by a unit.
func (r *LessonRepository) CountByUnit(ctx context.Context, unitID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lessons l
        JOIN chapters c ON c.id = l.chapter_id
        WHERE c.unit_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, unitID); err != nil {
		return 0, fmt.Errorf("count unit lessons: %w", err)
	}
	return count, nil
}
