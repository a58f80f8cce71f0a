package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// EnrollmentRepository handles persistence of the enrollment ledger.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN units u ON u.id = e.unit_id`
	var conditions []string
	var args []interface{}

	if filter.LearnerID != "" {
		conditions = append(conditions, fmt.Sprintf("e.learner_id = $%d", len(args)+1))
		args = append(args, filter.LearnerID)
	}
	if filter.UnitID != "" {
		conditions = append(conditions, fmt.Sprintf("e.unit_id = $%d", len(args)+1))
		args = append(args, filter.UnitID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"completed_at": "e.completed_at",
		"unit_title":   "u.title",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.learner_id, e.unit_id, e.status, e.enrolled_at, e.completed_at,
        u.slug AS unit_slug, u.title AS unit_title
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByLearnerAndUnit returns the ledger row for the pair.
func (r *EnrollmentRepository) FindByLearnerAndUnit(ctx context.Context, learnerID, unitID string) (*models.Enrollment, error) {
	const query = `SELECT id, learner_id, unit_id, status, enrolled_at, completed_at
        FROM enrollments WHERE learner_id = $1 AND unit_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, learnerID, unitID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create inserts a new ledger row. The (learner, unit) unique constraint
// absorbs concurrent enroll races: the loser inserts zero rows and the
// caller treats that as the idempotent already-enrolled success path.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, learner_id, unit_id, status, enrolled_at, completed_at)
        VALUES (:id, :learner_id, :unit_id, :status, :enrolled_at, :completed_at)
        ON CONFLICT (learner_id, unit_id) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, enrollment)
	if err != nil {
		return false, fmt.Errorf("create enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create enrollment result: %w", err)
	}
	return affected > 0, nil
}

// SetStatus toggles the ACTIVE/CANCELLED state; completed_at is untouched.
func (r *EnrollmentRepository) SetStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// CountCompletedCore returns how many Core members of the curriculum the
// learner has completed.
func (r *EnrollmentRepository) CountCompletedCore(ctx context.Context, learnerID, curriculumID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments e
        JOIN curriculum_memberships m ON m.unit_id = e.unit_id
        WHERE e.learner_id = $1 AND m.curriculum_id = $2 AND m.kind = $3 AND e.completed_at IS NOT NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, learnerID, curriculumID, models.KindCore); err != nil {
		return 0, fmt.Errorf("count completed core: %w", err)
	}
	return count, nil
}
