package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// UnitRepository handles persistence of learning units.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository constructs the repository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

const unitColumns = `id, slug, title, description, division, publication_state, standalone_position, created_at, updated_at`

// List returns units filtered by the provided criteria.
func (r *UnitRepository) List(ctx context.Context, filter models.UnitFilter) ([]models.Unit, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Division != "" {
		conditions = append(conditions, fmt.Sprintf("division = $%d", len(args)+1))
		args = append(args, filter.Division)
	}
	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("publication_state = $%d", len(args)+1))
		args = append(args, filter.State)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR slug ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":      "title",
		"created_at": "created_at",
		"position":   "standalone_position",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "standalone_position NULLS LAST, title"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT %s FROM units%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		unitColumns, clause, orderBy, order, size, offset)

	var units []models.Unit
	if err := r.db.SelectContext(ctx, &units, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list units: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM units" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count units: %w", err)
	}
	return units, total, nil
}

// FindByID returns a unit by its ID.
func (r *UnitRepository) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	query := fmt.Sprintf(`SELECT %s FROM units WHERE id = $1`, unitColumns)
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		return nil, err
	}
	return &unit, nil
}

// FindBySlug returns a unit by its slug.
func (r *UnitRepository) FindBySlug(ctx context.Context, slug string) (*models.Unit, error) {
	query := fmt.Sprintf(`SELECT %s FROM units WHERE slug = $1`, unitColumns)
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, slug); err != nil {
		return nil, err
	}
	return &unit, nil
}

// ExistsSlug checks slug uniqueness, optionally excluding a unit.
func (r *UnitRepository) ExistsSlug(ctx context.Context, slug, excludeID string) (bool, error) {
	query := "SELECT 1 FROM units WHERE slug = $1"
	args := []interface{}{slug}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check unit slug: %w", err)
	}
	return true, nil
}

// Create persists a new unit.
func (r *UnitRepository) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = now
	}
	unit.UpdatedAt = now
	if unit.State == "" {
		unit.State = models.UnitDraft
	}
	const query = `INSERT INTO units (id, slug, title, description, division, publication_state, standalone_position, created_at, updated_at)
        VALUES (:id, :slug, :title, :description, :division, :publication_state, :standalone_position, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

// Update rewrites mutable unit fields.
func (r *UnitRepository) Update(ctx context.Context, unit *models.Unit) error {
	unit.UpdatedAt = time.Now().UTC()
	const query = `UPDATE units SET slug = :slug, title = :title, description = :description,
        publication_state = :publication_state, standalone_position = :standalone_position, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("update unit: %w", err)
	}
	return nil
}

// SetState transitions the publication state.
func (r *UnitRepository) SetState(ctx context.Context, id string, state models.PublicationState) error {
	const query = `UPDATE units SET publication_state = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, state, time.Now().UTC()); err != nil {
		return fmt.Errorf("set unit state: %w", err)
	}
	return nil
}
