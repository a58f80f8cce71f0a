package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// ErrMembershipNotFound is returned when a unit is not a member of the
// curriculum being mutated.
var ErrMembershipNotFound = errors.New("curriculum membership not found")

// CurriculumRepository handles persistence of curricula and their ordered
// membership rows. All structural mutations run inside a single transaction
// so the dense 1..N Core ordering is never observably violated.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository constructs the repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

const curriculumColumns = `id, division, title, description, lifecycle_state, created_at, updated_at`

// FindByID returns a curriculum by its ID.
func (r *CurriculumRepository) FindByID(ctx context.Context, id string) (*models.Curriculum, error) {
	query := fmt.Sprintf(`SELECT %s FROM curricula WHERE id = $1`, curriculumColumns)
	var curriculum models.Curriculum
	if err := r.db.GetContext(ctx, &curriculum, query, id); err != nil {
		return nil, err
	}
	return &curriculum, nil
}

// ListByDivision returns curricula for a division ordered by title.
func (r *CurriculumRepository) ListByDivision(ctx context.Context, division models.Division, state models.LifecycleState) ([]models.Curriculum, error) {
	query := fmt.Sprintf(`SELECT %s FROM curricula WHERE division = $1`, curriculumColumns)
	args := []interface{}{division}
	if state != "" {
		query += " AND lifecycle_state = $2"
		args = append(args, state)
	}
	query += " ORDER BY title"
	var curricula []models.Curriculum
	if err := r.db.SelectContext(ctx, &curricula, query, args...); err != nil {
		return nil, fmt.Errorf("list curricula: %w", err)
	}
	return curricula, nil
}

// Create persists a new curriculum.
func (r *CurriculumRepository) Create(ctx context.Context, curriculum *models.Curriculum) error {
	if curriculum.ID == "" {
		curriculum.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if curriculum.CreatedAt.IsZero() {
		curriculum.CreatedAt = now
	}
	curriculum.UpdatedAt = now
	if curriculum.State == "" {
		curriculum.State = models.CurriculumActive
	}
	const query = `INSERT INTO curricula (id, division, title, description, lifecycle_state, created_at, updated_at)
        VALUES (:id, :division, :title, :description, :lifecycle_state, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, curriculum); err != nil {
		return fmt.Errorf("create curriculum: %w", err)
	}
	return nil
}

// Update rewrites mutable curriculum fields.
func (r *CurriculumRepository) Update(ctx context.Context, curriculum *models.Curriculum) error {
	curriculum.UpdatedAt = time.Now().UTC()
	const query = `UPDATE curricula SET title = :title, description = :description,
        lifecycle_state = :lifecycle_state, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, curriculum); err != nil {
		return fmt.Errorf("update curriculum: %w", err)
	}
	return nil
}

const membershipDetailColumns = `m.id, m.curriculum_id, m.unit_id, m.kind, m.position,
        u.slug AS unit_slug, u.title AS unit_title, u.publication_state AS unit_state`

// FindMembership returns the membership of a unit within a curriculum.
func (r *CurriculumRepository) FindMembership(ctx context.Context, curriculumID, unitID string) (*models.MembershipDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM curriculum_memberships m
        JOIN units u ON u.id = m.unit_id
        WHERE m.curriculum_id = $1 AND m.unit_id = $2`, membershipDetailColumns)
	var detail models.MembershipDetail
	if err := r.db.GetContext(ctx, &detail, query, curriculumID, unitID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsAnyMembership reports whether the unit belongs to any curriculum.
func (r *CurriculumRepository) ExistsAnyMembership(ctx context.Context, unitID string) (bool, error) {
	const query = `SELECT 1 FROM curriculum_memberships WHERE unit_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, unitID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check unit membership: %w", err)
	}
	return true, nil
}

// FindCoreByPosition returns the Core member at the given position.
func (r *CurriculumRepository) FindCoreByPosition(ctx context.Context, curriculumID string, position int) (*models.MembershipDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM curriculum_memberships m
        JOIN units u ON u.id = m.unit_id
        WHERE m.curriculum_id = $1 AND m.kind = $2 AND m.position = $3`, membershipDetailColumns)
	var detail models.MembershipDetail
	if err := r.db.GetContext(ctx, &detail, query, curriculumID, models.KindCore, position); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListMemberships returns every membership of the curriculum, Core first in
// chain order, then Electives by unit title.
func (r *CurriculumRepository) ListMemberships(ctx context.Context, curriculumID string) ([]models.MembershipDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM curriculum_memberships m
        JOIN units u ON u.id = m.unit_id
        WHERE m.curriculum_id = $1
        ORDER BY CASE m.kind WHEN 'CORE' THEN 0 ELSE 1 END, m.position, u.title`, membershipDetailColumns)
	var details []models.MembershipDetail
	if err := r.db.SelectContext(ctx, &details, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list curriculum memberships: %w", err)
	}
	return details, nil
}

// CountCore returns the number of Core members.
func (r *CurriculumRepository) CountCore(ctx context.Context, curriculumID string) (int, error) {
	const query = `SELECT COUNT(*) FROM curriculum_memberships WHERE curriculum_id = $1 AND kind = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, curriculumID, models.KindCore); err != nil {
		return 0, fmt.Errorf("count core members: %w", err)
	}
	return count, nil
}

// AddMembership appends a unit to the curriculum. Core units are appended at
// the end of the chain; Electives carry position 0.
func (r *CurriculumRepository) AddMembership(ctx context.Context, curriculumID, unitID string, kind models.MembershipKind) (*models.CurriculumMembership, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add membership: %w", err)
	}

	position := 0
	if kind == models.KindCore {
		// The curriculum row lock serializes concurrent Core appends;
		// the next position is only read under it.
		const lockCurriculum = `SELECT id FROM curricula WHERE id = $1 FOR UPDATE`
		var lockedID string
		if err := tx.GetContext(ctx, &lockedID, lockCurriculum, curriculumID); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("lock curriculum: %w", err)
		}
		const next = `SELECT COALESCE(MAX(position), 0) + 1 FROM curriculum_memberships WHERE curriculum_id = $1 AND kind = $2`
		if err := tx.GetContext(ctx, &position, next, curriculumID, models.KindCore); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("next core position: %w", err)
		}
	}

	membership := &models.CurriculumMembership{
		ID:           uuid.NewString(),
		CurriculumID: curriculumID,
		UnitID:       unitID,
		Kind:         kind,
		Position:     position,
	}
	const insert = `INSERT INTO curriculum_memberships (id, curriculum_id, unit_id, kind, position)
        VALUES (:id, :curriculum_id, :unit_id, :kind, :position)`
	if _, err := tx.NamedExecContext(ctx, insert, membership); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add membership: %w", err)
	}
	return membership, nil
}

// ReorderCore moves a unit within the Core chain using the shift strategy:
// close the gap the unit leaves behind, open a slot at the target, then set
// the unit's own position. newPosition == nil demotes the unit to Elective.
// All three steps run in one transaction.
func (r *CurriculumRepository) ReorderCore(ctx context.Context, curriculumID, unitID string, newPosition *int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}

	var current models.CurriculumMembership
	const lock = `SELECT id, curriculum_id, unit_id, kind, position FROM curriculum_memberships
        WHERE curriculum_id = $1 AND unit_id = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &current, lock, curriculumID, unitID); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("load membership: %w", err)
	}

	if current.Kind == models.KindCore {
		if newPosition != nil && *newPosition == current.Position {
			// Idempotent no-op; nothing to shift.
			tx.Rollback() //nolint:errcheck
			return nil
		}
		const closeGap = `UPDATE curriculum_memberships SET position = position - 1
            WHERE curriculum_id = $1 AND kind = $2 AND position > $3 AND unit_id <> $4`
		if _, err := tx.ExecContext(ctx, closeGap, curriculumID, models.KindCore, current.Position, unitID); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("close core gap: %w", err)
		}
	}

	kind := models.KindElective
	position := 0
	if newPosition != nil {
		const openSlot = `UPDATE curriculum_memberships SET position = position + 1
            WHERE curriculum_id = $1 AND kind = $2 AND position >= $3 AND unit_id <> $4`
		if _, err := tx.ExecContext(ctx, openSlot, curriculumID, models.KindCore, *newPosition, unitID); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("open core slot: %w", err)
		}
		kind = models.KindCore
		position = *newPosition
	}

	const setOwn = `UPDATE curriculum_memberships SET kind = $3, position = $4
        WHERE curriculum_id = $1 AND unit_id = $2`
	if _, err := tx.ExecContext(ctx, setOwn, curriculumID, unitID, kind, position); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("set membership position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

// RemoveMembership deletes a membership and closes the gap it leaves in the
// Core chain, atomically.
func (r *CurriculumRepository) RemoveMembership(ctx context.Context, curriculumID, unitID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove membership: %w", err)
	}

	var current models.CurriculumMembership
	const lock = `SELECT id, curriculum_id, unit_id, kind, position FROM curriculum_memberships
        WHERE curriculum_id = $1 AND unit_id = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &current, lock, curriculumID, unitID); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("load membership: %w", err)
	}

	const remove = `DELETE FROM curriculum_memberships WHERE curriculum_id = $1 AND unit_id = $2`
	if _, err := tx.ExecContext(ctx, remove, curriculumID, unitID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete membership: %w", err)
	}

	if current.Kind == models.KindCore {
		const closeGap = `UPDATE curriculum_memberships SET position = position - 1
            WHERE curriculum_id = $1 AND kind = $2 AND position > $3`
		if _, err := tx.ExecContext(ctx, closeGap, curriculumID, models.KindCore, current.Position); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("close core gap: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove membership: %w", err)
	}
	return nil
}

// ReplaceStructure swaps the entire membership set of a curriculum in one
// transaction: delete all rows, reinsert the supplied entries. Callers
// validate density before reaching this point; no intermediate state is
// ever queryable.
func (r *CurriculumRepository) ReplaceStructure(ctx context.Context, curriculumID string, entries []models.StructureEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace structure: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM curriculum_memberships WHERE curriculum_id = $1`, curriculumID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear curriculum memberships: %w", err)
	}
	const insert = `INSERT INTO curriculum_memberships (id, curriculum_id, unit_id, kind, position)
        VALUES (:id, :curriculum_id, :unit_id, :kind, :position)`
	for _, entry := range entries {
		membership := models.CurriculumMembership{
			ID:           uuid.NewString(),
			CurriculumID: curriculumID,
			UnitID:       entry.UnitID,
			Kind:         entry.Kind,
			Position:     entry.Position,
		}
		if _, err := tx.NamedExecContext(ctx, insert, membership); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert membership row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace structure: %w", err)
	}
	return nil
}
