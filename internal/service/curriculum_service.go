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

type curriculumRepository interface {
	FindByID(ctx context.Context, id string) (*models.Curriculum, error)
	ListByDivision(ctx context.Context, division models.Division, state models.LifecycleState) ([]models.Curriculum, error)
	Create(ctx context.Context, curriculum *models.Curriculum) error
	Update(ctx context.Context, curriculum *models.Curriculum) error
}

// CreateCurriculumRequest is the payload for creating a curriculum.
type CreateCurriculumRequest struct {
	Division    models.Division `json:"division" validate:"required,oneof=ENGINEERING DESIGN OPERATIONS"`
	Title       string          `json:"title" validate:"required,min=3,max=200"`
	Description string          `json:"description" validate:"max=2000"`
}

// UpdateCurriculumRequest is the payload for updating a curriculum.
type UpdateCurriculumRequest struct {
	Title       *string                `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string                `json:"description" validate:"omitempty,max=2000"`
	State       *models.LifecycleState `json:"lifecycle_state" validate:"omitempty,oneof=ACTIVE ARCHIVED"`
}

// CurriculumService manages curriculum metadata. Membership and ordering
// live in StructureService.
type CurriculumService struct {
	repo      curriculumRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCurriculumService constructs CurriculumService.
func NewCurriculumService(repo curriculumRepository, validate *validator.Validate, logger *zap.Logger) *CurriculumService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurriculumService{repo: repo, validator: validate, logger: logger}
}

// Get returns one curriculum by ID.
func (s *CurriculumService) Get(ctx context.Context, id string) (*models.Curriculum, error) {
	curriculum, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}
	return curriculum, nil
}

// ListByDivision returns curricula of one division, optionally narrowed to
// a lifecycle state.
func (s *CurriculumService) ListByDivision(ctx context.Context, division models.Division, state models.LifecycleState) ([]models.Curriculum, error) {
	if !models.ValidDivision(division) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown division")
	}
	items, err := s.repo.ListByDivision(ctx, division, state)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list curricula")
	}
	return items, nil
}

// Create persists a new curriculum in ACTIVE state.
func (s *CurriculumService) Create(ctx context.Context, req CreateCurriculumRequest) (*models.Curriculum, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid curriculum payload")
	}
	curriculum := &models.Curriculum{
		Division:    req.Division,
		Title:       req.Title,
		Description: req.Description,
		State:       models.CurriculumActive,
	}
	if err := s.repo.Create(ctx, curriculum); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create curriculum")
	}
	s.logger.Info("curriculum created",
		zap.String("curriculum_id", curriculum.ID),
		zap.String("division", string(curriculum.Division)))
	return curriculum, nil
}

// Update applies partial changes to curriculum metadata. The division of a
// curriculum is immutable once created.
func (s *CurriculumService) Update(ctx context.Context, id string, req UpdateCurriculumRequest) (*models.Curriculum, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid curriculum payload")
	}
	curriculum, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		curriculum.Title = *req.Title
	}
	if req.Description != nil {
		curriculum.Description = *req.Description
	}
	if req.State != nil {
		curriculum.State = *req.State
	}
	if err := s.repo.Update(ctx, curriculum); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update curriculum")
	}
	return curriculum, nil
}
