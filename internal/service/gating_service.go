package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

// Denial reasons surfaced verbatim to learners. Absent, unpublished and
// cross-division units all share one generic message so existence never
// leaks across divisions.
const (
	reasonUnavailable   = "this unit is not available"
	reasonNotCurriculum = "this unit is not part of your curriculum"
	reasonElectivesLock = "electives unlock after you complete all core units"
)

type gatingUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type gatingUnitReader interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
}

type gatingMembershipReader interface {
	FindMembership(ctx context.Context, curriculumID, unitID string) (*models.MembershipDetail, error)
	ExistsAnyMembership(ctx context.Context, unitID string) (bool, error)
	FindCoreByPosition(ctx context.Context, curriculumID string, position int) (*models.MembershipDetail, error)
	CountCore(ctx context.Context, curriculumID string) (int, error)
}

type gatingEnrollmentReader interface {
	FindByLearnerAndUnit(ctx context.Context, learnerID, unitID string) (*models.Enrollment, error)
	CountCompletedCore(ctx context.Context, learnerID, curriculumID string) (int, error)
}

// GatingService is the access decision function every other component feeds.
// Decisions are re-derived from storage on every call; nothing is cached, so
// staleness is bounded by transaction commit visibility only.
type GatingService struct {
	users       gatingUserReader
	units       gatingUnitReader
	memberships gatingMembershipReader
	enrollments gatingEnrollmentReader
	logger      *zap.Logger
}

// NewGatingService constructs GatingService.
func NewGatingService(users gatingUserReader, units gatingUnitReader, memberships gatingMembershipReader, enrollments gatingEnrollmentReader, logger *zap.Logger) *GatingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatingService{users: users, units: units, memberships: memberships, enrollments: enrollments, logger: logger}
}

// EvaluateAccess decides whether the learner may currently access the unit.
//
// Resolution order:
//  1. Admin-rank callers bypass learner gating entirely.
//  2. No selected curriculum, or the unit belongs to no curriculum: the
//     division-open policy applies (published and in-division).
//  3. Unit not a member of the learner's selected curriculum: denied even
//     when published and in-division; curriculum selection is a stronger
//     scope than division.
//  4. Core members form a strictly linear chain: position 1 is open, every
//     later position requires the predecessor's completion.
//  5. Electives unlock as one bloc once every Core member is completed; a
//     curriculum with zero Core members is vacuously complete.
func (s *GatingService) EvaluateAccess(ctx context.Context, learnerID, unitID string) (models.AccessDecision, error) {
	learner, err := s.users.FindByID(ctx, learnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AccessDecision{}, appErrors.Clone(appErrors.ErrNotFound, "learner not found")
		}
		return models.AccessDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learner")
	}

	unit, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Absent and hidden look identical to the caller.
			return models.Deny(reasonUnavailable), nil
		}
		return models.AccessDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}

	if models.HasRank(learner.Role, models.RoleAdmin) {
		return models.Allow(), nil
	}

	inAnyCurriculum, err := s.memberships.ExistsAnyMembership(ctx, unitID)
	if err != nil {
		return models.AccessDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve membership")
	}

	if learner.SelectedCurriculumID == nil || !inAnyCurriculum {
		return s.divisionOpen(learner, unit), nil
	}

	membership, err := s.memberships.FindMembership(ctx, *learner.SelectedCurriculumID, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Deny(reasonNotCurriculum), nil
		}
		return models.AccessDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve membership")
	}

	if unit.State != models.UnitPublished {
		return models.Deny(reasonUnavailable), nil
	}

	switch membership.Kind {
	case models.KindCore:
		return s.evaluateCore(ctx, learner, membership)
	default:
		return s.evaluateElective(ctx, learner)
	}
}

func (s *GatingService) divisionOpen(learner *models.User, unit *models.Unit) models.AccessDecision {
	if unit.State != models.UnitPublished || unit.Division != learner.Division {
		return models.Deny(reasonUnavailable)
	}
	return models.Allow()
}

func (s *GatingService) evaluateCore(ctx context.Context, learner *models.User, membership *models.MembershipDetail) (models.AccessDecision, error) {
	if membership.Position <= 1 {
		return models.Allow(), nil
	}

	predecessor, err := s.memberships.FindCoreByPosition(ctx, membership.CurriculumID, membership.Position-1)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Dense ordering guarantees a predecessor; a missing row means the
			// structure is mid-repair, so fail closed.
			s.logger.Warn("core chain gap observed",
				zap.String("curriculum_id", membership.CurriculumID),
				zap.Int("position", membership.Position-1))
			return models.Deny(reasonUnavailable), nil
		}
		return models.AccessDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve predecessor")
	}

	enrollment, err := s.enrollments.FindByLearnerAndUnit(ctx, learner.ID, predecessor.UnitID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.AccessDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment != nil && enrollment.Completed() {
		return models.Allow(), nil
	}
	return models.Deny(fmt.Sprintf("complete %q first", predecessor.UnitTitle)), nil
}

func (s *GatingService) evaluateElective(ctx context.Context, learner *models.User) (models.AccessDecision, error) {
	complete, err := s.CoreComplete(ctx, learner.ID, *learner.SelectedCurriculumID)
	if err != nil {
		return models.AccessDecision{}, err
	}
	if complete {
		return models.Allow(), nil
	}
	return models.Deny(reasonElectivesLock), nil
}

// CoreComplete reports whether the learner has completed every Core member
// of the curriculum. The persisted aggregate flag on the learner row is a
// cache; this derivation never consults it.
func (s *GatingService) CoreComplete(ctx context.Context, learnerID, curriculumID string) (bool, error) {
	coreCount, err := s.memberships.CountCore(ctx, curriculumID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count core members")
	}
	if coreCount == 0 {
		return true, nil
	}
	completed, err := s.enrollments.CountCompletedCore(ctx, learnerID, curriculumID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count completions")
	}
	return completed >= coreCount, nil
}
