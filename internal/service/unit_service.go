package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type unitRepository interface {
	List(ctx context.Context, filter models.UnitFilter) ([]models.Unit, int, error)
	FindByID(ctx context.Context, id string) (*models.Unit, error)
	FindBySlug(ctx context.Context, slug string) (*models.Unit, error)
	ExistsSlug(ctx context.Context, slug, excludeID string) (bool, error)
	Create(ctx context.Context, unit *models.Unit) error
	Update(ctx context.Context, unit *models.Unit) error
	SetState(ctx context.Context, id string, state models.PublicationState) error
}

type unitLessonReader interface {
	ListByUnit(ctx context.Context, unitID string) ([]models.LessonDetail, error)
}

// CreateUnitRequest is the payload for creating a unit.
type CreateUnitRequest struct {
	Slug        string          `json:"slug" validate:"required,min=3,max=100,lowercase"`
	Title       string          `json:"title" validate:"required,min=3,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Division    models.Division `json:"division" validate:"required,oneof=ENGINEERING DESIGN OPERATIONS"`
}

// UpdateUnitRequest is the payload for updating a unit.
type UpdateUnitRequest struct {
	Slug        *string `json:"slug" validate:"omitempty,min=3,max=100,lowercase"`
	Title       *string `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// UnitDetail is a unit with its lesson outline and the caller's access.
type UnitDetail struct {
	models.UnitWithAccess
	Lessons []models.LessonDetail `json:"lessons,omitempty"`
}

// UnitService serves the unit catalog. Learner-facing reads are decorated
// with per-unit gating decisions; lock reasons surface verbatim.
type UnitService struct {
	repo      unitRepository
	lessons   unitLessonReader
	gating    accessEvaluator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUnitService constructs UnitService.
func NewUnitService(repo unitRepository, lessons unitLessonReader, gating accessEvaluator, validate *validator.Validate, logger *zap.Logger) *UnitService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitService{repo: repo, lessons: lessons, gating: gating, validator: validate, logger: logger}
}

// Catalog lists units visible to the learner, each carrying its gating
// decision so the client can render locks without probing enroll.
func (s *UnitService) Catalog(ctx context.Context, learnerID string, filter models.UnitFilter) ([]models.UnitWithAccess, *models.Pagination, error) {
	units, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list units")
	}
	decorated := make([]models.UnitWithAccess, 0, len(units))
	for _, unit := range units {
		decision, err := s.gating.EvaluateAccess(ctx, learnerID, unit.ID)
		if err != nil {
			return nil, nil, err
		}
		decorated = append(decorated, models.UnitWithAccess{
			Unit:       unit,
			Accessible: decision.Accessible,
			LockReason: decision.Reason,
		})
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return decorated, pagination, nil
}

// List returns units without gating decoration, for staff views.
func (s *UnitService) List(ctx context.Context, filter models.UnitFilter) ([]models.Unit, *models.Pagination, error) {
	units, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list units")
	}
	return units, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one unit with its lesson outline and the learner's access.
// The outline is withheld while the unit is locked.
func (s *UnitService) Get(ctx context.Context, learnerID, unitID string) (*UnitDetail, error) {
	unit, err := s.repo.FindByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}

	decision, err := s.gating.EvaluateAccess(ctx, learnerID, unitID)
	if err != nil {
		return nil, err
	}
	detail := &UnitDetail{UnitWithAccess: models.UnitWithAccess{
		Unit:       *unit,
		Accessible: decision.Accessible,
		LockReason: decision.Reason,
	}}
	if decision.Accessible {
		lessons, err := s.lessons.ListByUnit(ctx, unitID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
		}
		detail.Lessons = lessons
	}
	return detail, nil
}

// Create persists a new unit in DRAFT state.
func (s *UnitService) Create(ctx context.Context, req CreateUnitRequest) (*models.Unit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unit payload")
	}
	taken, err := s.repo.ExistsSlug(ctx, req.Slug, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slug")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "slug already in use")
	}
	unit := &models.Unit{
		Slug:        req.Slug,
		Title:       req.Title,
		Description: req.Description,
		Division:    req.Division,
		State:       models.UnitDraft,
	}
	if err := s.repo.Create(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create unit")
	}
	s.logger.Info("unit created", zap.String("unit_id", unit.ID), zap.String("slug", unit.Slug))
	return unit, nil
}

// Update applies partial changes to a unit. Division is immutable.
func (s *UnitService) Update(ctx context.Context, unitID string, req UpdateUnitRequest) (*models.Unit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unit payload")
	}
	unit, err := s.repo.FindByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if req.Slug != nil && *req.Slug != unit.Slug {
		taken, err := s.repo.ExistsSlug(ctx, *req.Slug, unitID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slug")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "slug already in use")
		}
		unit.Slug = *req.Slug
	}
	if req.Title != nil {
		unit.Title = *req.Title
	}
	if req.Description != nil {
		unit.Description = *req.Description
	}
	if err := s.repo.Update(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update unit")
	}
	return unit, nil
}

// SetState transitions a unit's publication state. Archiving or unpublishing
// does not touch existing enrollments; gating hides the unit from new ones.
func (s *UnitService) SetState(ctx context.Context, unitID string, state models.PublicationState) error {
	switch state {
	case models.UnitDraft, models.UnitPublished, models.UnitArchived:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown publication state")
	}
	if _, err := s.repo.FindByID(ctx, unitID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if err := s.repo.SetState(ctx, unitID, state); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update state")
	}
	s.logger.Info("unit state changed", zap.String("unit_id", unitID), zap.String("state", string(state)))
	return nil
}
