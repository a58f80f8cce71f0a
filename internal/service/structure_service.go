package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/repository"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type structureRepository interface {
	FindByID(ctx context.Context, id string) (*models.Curriculum, error)
	FindMembership(ctx context.Context, curriculumID, unitID string) (*models.MembershipDetail, error)
	ListMemberships(ctx context.Context, curriculumID string) ([]models.MembershipDetail, error)
	CountCore(ctx context.Context, curriculumID string) (int, error)
	AddMembership(ctx context.Context, curriculumID, unitID string, kind models.MembershipKind) (*models.CurriculumMembership, error)
	ReorderCore(ctx context.Context, curriculumID, unitID string, newPosition *int) error
	RemoveMembership(ctx context.Context, curriculumID, unitID string) error
	ReplaceStructure(ctx context.Context, curriculumID string, entries []models.StructureEntry) error
}

type structureUnitReader interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
}

type structureUserRepository interface {
	ListIDsBySelectedCurriculum(ctx context.Context, curriculumID string) ([]string, error)
	UpdateCurriculumState(ctx context.Context, id string, state models.CurriculumState) error
}

type coreCompletionChecker interface {
	CoreComplete(ctx context.Context, learnerID, curriculumID string) (bool, error)
}

// ReorderRequest moves one unit within a curriculum. Position nil demotes
// the unit to the elective bloc.
type ReorderRequest struct {
	UnitID   string `json:"unit_id" validate:"required,uuid4"`
	Position *int   `json:"position" validate:"omitempty,min=1"`
}

// ReplaceStructureRequest carries the designer's full ordered membership list.
type ReplaceStructureRequest struct {
	Entries []models.StructureEntry `json:"entries" validate:"required,dive"`
}

// AddMembershipRequest appends a unit to a curriculum.
type AddMembershipRequest struct {
	UnitID string                `json:"unit_id" validate:"required,uuid4"`
	Kind   models.MembershipKind `json:"kind" validate:"required,oneof=CORE ELECTIVE"`
}

// StructureService owns the ordered, typed membership of units inside a
// curriculum and upholds the dense 1..N Core ordering across every mutation.
type StructureService struct {
	repo      structureRepository
	units     structureUnitReader
	users     structureUserRepository
	gating    coreCompletionChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStructureService constructs StructureService.
func NewStructureService(repo structureRepository, units structureUnitReader, users structureUserRepository, gating coreCompletionChecker, validate *validator.Validate, logger *zap.Logger) *StructureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StructureService{repo: repo, units: units, users: users, gating: gating, validator: validate, logger: logger}
}

// Structure returns the ordered read model of a curriculum.
func (s *StructureService) Structure(ctx context.Context, curriculumID string) (*models.CurriculumStructure, error) {
	curriculum, err := s.loadCurriculum(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	memberships, err := s.repo.ListMemberships(ctx, curriculumID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list memberships")
	}
	structure := &models.CurriculumStructure{Curriculum: *curriculum}
	for _, m := range memberships {
		if m.Kind == models.KindCore {
			structure.Core = append(structure.Core, m)
		} else {
			structure.Electives = append(structure.Electives, m)
		}
	}
	return structure, nil
}

// Add appends a unit to the curriculum, at the end of the Core chain or
// into the elective bloc.
func (s *StructureService) Add(ctx context.Context, curriculumID string, req AddMembershipRequest) (*models.CurriculumMembership, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid membership payload")
	}
	curriculum, err := s.loadCurriculum(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnit(ctx, curriculum, req.UnitID); err != nil {
		return nil, err
	}
	if existing, err := s.repo.FindMembership(ctx, curriculumID, req.UnitID); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "unit already belongs to this curriculum")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	membership, err := s.repo.AddMembership(ctx, curriculumID, req.UnitID, req.Kind)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add membership")
	}
	if req.Kind == models.KindCore {
		s.recomputeAggregates(ctx, curriculumID)
	}
	return membership, nil
}

// Reorder moves a unit to a new Core position, or demotes it to Elective
// when the position is nil. The underlying shift runs in one transaction;
// moving a unit onto its current position succeeds without touching storage.
func (s *StructureService) Reorder(ctx context.Context, curriculumID string, req ReorderRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reorder payload")
	}
	curriculum, err := s.loadCurriculum(ctx, curriculumID)
	if err != nil {
		return err
	}
	if err := s.checkUnit(ctx, curriculum, req.UnitID); err != nil {
		return err
	}
	current, err := s.repo.FindMembership(ctx, curriculumID, req.UnitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "unit is not a member of this curriculum")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	if req.Position == nil {
		if current.Kind == models.KindElective {
			// Already elective; nothing to demote.
			return nil
		}
	} else {
		coreCount, err := s.repo.CountCore(ctx, curriculumID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count core members")
		}
		// A Core member shifting within the chain can only target 1..N; the
		// append slot N+1 exists only for an elective entering the chain.
		maxPosition := coreCount
		if current.Kind != models.KindCore {
			maxPosition = coreCount + 1
		}
		if *req.Position > maxPosition {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("position %d is beyond the end of the core chain", *req.Position))
		}
		if current.Kind == models.KindCore && *req.Position == current.Position {
			// Moving a unit onto its current position touches nothing.
			return nil
		}
	}
	if err := s.repo.ReorderCore(ctx, curriculumID, req.UnitID, req.Position); err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "unit is not a member of this curriculum")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder curriculum")
	}
	s.recomputeAggregates(ctx, curriculumID)
	return nil
}

// Remove deletes a unit's membership, closing any Core gap it leaves.
func (s *StructureService) Remove(ctx context.Context, curriculumID, unitID string) error {
	if _, err := s.loadCurriculum(ctx, curriculumID); err != nil {
		return err
	}
	if err := s.repo.RemoveMembership(ctx, curriculumID, unitID); err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "unit is not a member of this curriculum")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove membership")
	}
	s.recomputeAggregates(ctx, curriculumID)
	return nil
}

// Replace swaps the full membership set with the designer's ordered list.
// Core positions must arrive dense starting at 1; the service rejects
// violations instead of silently repairing them.
func (s *StructureService) Replace(ctx context.Context, curriculumID string, req ReplaceStructureRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid structure payload")
	}
	curriculum, err := s.loadCurriculum(ctx, curriculumID)
	if err != nil {
		return err
	}
	if err := validateStructure(req.Entries); err != nil {
		return err
	}
	for _, entry := range req.Entries {
		if err := s.checkUnit(ctx, curriculum, entry.UnitID); err != nil {
			return err
		}
	}
	if err := s.repo.ReplaceStructure(ctx, curriculumID, req.Entries); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace structure")
	}
	s.recomputeAggregates(ctx, curriculumID)
	return nil
}

// validateStructure rejects duplicate units and non-dense Core positions.
func validateStructure(entries []models.StructureEntry) error {
	seen := make(map[string]struct{}, len(entries))
	positions := make(map[int]struct{})
	coreCount := 0
	for _, entry := range entries {
		if _, dup := seen[entry.UnitID]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unit %s appears more than once", entry.UnitID))
		}
		seen[entry.UnitID] = struct{}{}
		if entry.Kind != models.KindCore {
			continue
		}
		coreCount++
		if entry.Position < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "core positions must start at 1")
		}
		if _, dup := positions[entry.Position]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate core position %d", entry.Position))
		}
		positions[entry.Position] = struct{}{}
	}
	for p := 1; p <= coreCount; p++ {
		if _, ok := positions[p]; !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("core positions must be dense 1..%d, missing %d", coreCount, p))
		}
	}
	return nil
}

func (s *StructureService) loadCurriculum(ctx context.Context, id string) (*models.Curriculum, error) {
	curriculum, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}
	return curriculum, nil
}

// checkUnit verifies the unit exists and shares the curriculum's division.
// Division mismatch is always rejected, never coerced.
func (s *StructureService) checkUnit(ctx context.Context, curriculum *models.Curriculum, unitID string) error {
	unit, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if unit.Division != curriculum.Division {
		return appErrors.Clone(appErrors.ErrConflict, "unit division does not match curriculum division")
	}
	return nil
}

// recomputeAggregates refreshes the persisted curriculum_state flag for every
// learner following the curriculum. The flag is a cache; it is derived from
// scratch so a structural change adding new Core units can never leave a
// stale COMPLETED flag behind.
func (s *StructureService) recomputeAggregates(ctx context.Context, curriculumID string) {
	learnerIDs, err := s.users.ListIDsBySelectedCurriculum(ctx, curriculumID)
	if err != nil {
		s.logger.Warn("aggregate recompute skipped", zap.String("curriculum_id", curriculumID), zap.Error(err))
		return
	}
	for _, learnerID := range learnerIDs {
		complete, err := s.gating.CoreComplete(ctx, learnerID, curriculumID)
		if err != nil {
			s.logger.Warn("aggregate recompute failed", zap.String("learner_id", learnerID), zap.Error(err))
			continue
		}
		state := models.CurriculumInProgress
		if complete {
			state = models.CurriculumCompleted
		}
		if err := s.users.UpdateCurriculumState(ctx, learnerID, state); err != nil {
			s.logger.Warn("aggregate persist failed", zap.String("learner_id", learnerID), zap.Error(err))
		}
	}
}
