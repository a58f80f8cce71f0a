package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// ProgressRepository handles lesson-level progress rows and the per-unit
// completion counts derived from them.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const unitProgressQuery = `SELECT c.unit_id,
        COUNT(l.id) AS total_lessons,
        COUNT(p.id) FILTER (WHERE p.completed) AS completed_count
        FROM chapters c
        JOIN lessons l ON l.chapter_id = c.id
        LEFT JOIN lesson_progress p ON p.lesson_id = l.id AND p.learner_id = $1
        WHERE c.unit_id = $2
        GROUP BY c.unit_id`

// CompleteLesson idempotently marks a lesson complete and, when that makes
// the unit complete, stamps the enrollment's completed_at, all in one
// transaction. Re-marking an already completed lesson leaves the original
// timestamp, and the IS NULL guard keeps completed_at monotonic. The
// returned flag reports whether this call performed the unit transition.
func (r *ProgressRepository) CompleteLesson(ctx context.Context, learnerID, lessonID, unitID, enrollmentID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin lesson completion: %w", err)
	}

	progress := models.LessonProgress{
		ID:        uuid.NewString(),
		LearnerID: learnerID,
		LessonID:  lessonID,
		Completed: true,
	}
	now := time.Now().UTC()
	progress.CompletedAt = &now
	const upsert = `INSERT INTO lesson_progress (id, learner_id, lesson_id, completed, completed_at)
        VALUES (:id, :learner_id, :lesson_id, :completed, :completed_at)
        ON CONFLICT (learner_id, lesson_id) DO UPDATE SET completed = TRUE
        WHERE lesson_progress.completed = FALSE`
	if _, err := tx.NamedExecContext(ctx, upsert, progress); err != nil {
		tx.Rollback() //nolint:errcheck
		return false, fmt.Errorf("upsert lesson progress: %w", err)
	}

	var unitProgress models.UnitProgress
	if err := tx.GetContext(ctx, &unitProgress, unitProgressQuery, learnerID, unitID); err != nil {
		tx.Rollback() //nolint:errcheck
		return false, fmt.Errorf("aggregate unit progress: %w", err)
	}

	completedNow := false
	if unitProgress.Complete() {
		const stamp = `UPDATE enrollments SET completed_at = $2 WHERE id = $1 AND completed_at IS NULL`
		result, err := tx.ExecContext(ctx, stamp, enrollmentID, now)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return false, fmt.Errorf("stamp unit completion: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return false, fmt.Errorf("stamp unit completion: %w", err)
		}
		completedNow = affected > 0
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit lesson completion: %w", err)
	}
	return completedNow, nil
}

// UnitProgress returns the learner's completed/total lesson counts for a unit.
func (r *ProgressRepository) UnitProgress(ctx context.Context, learnerID, unitID string) (*models.UnitProgress, error) {
	var progress models.UnitProgress
	if err := r.db.GetContext(ctx, &progress, unitProgressQuery, learnerID, unitID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// UnitProgressByLearner returns counts for every unit the learner has
// touched or is enrolled in, for the profile overview.
func (r *ProgressRepository) UnitProgressByLearner(ctx context.Context, learnerID string) ([]models.UnitProgress, error) {
	const query = `SELECT c.unit_id,
        COUNT(l.id) AS total_lessons,
        COUNT(p.id) FILTER (WHERE p.completed) AS completed_count
        FROM chapters c
        JOIN lessons l ON l.chapter_id = c.id
        JOIN enrollments e ON e.unit_id = c.unit_id AND e.learner_id = $1
        LEFT JOIN lesson_progress p ON p.lesson_id = l.id AND p.learner_id = $1
        GROUP BY c.unit_id`
	var out []models.UnitProgress
	if err := r.db.SelectContext(ctx, &out, query, learnerID); err != nil {
		return nil, fmt.Errorf("list learner progress: %w", err)
	}
	return out, nil
}
