package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByLearnerAndUnit(ctx context.Context, learnerID, unitID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) (bool, error)
	SetStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type accessEvaluator interface {
	EvaluateAccess(ctx context.Context, learnerID, unitID string) (models.AccessDecision, error)
}

// EnrollRequest asks to enroll the calling learner into a unit.
type EnrollRequest struct {
	UnitID string `json:"unit_id" validate:"required,uuid4"`
}

// EnrollmentService owns the (learner, unit) ledger. Gating is enforced here
// at the write boundary, not only at display time, so a direct API call
// cannot bypass a lock the UI would have shown.
type EnrollmentService struct {
	repo      enrollmentRepository
	gating    accessEvaluator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, gating accessEvaluator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, gating: gating, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Enroll registers the learner on a unit. The gating evaluator runs first
// and its denial short-circuits before any write. Enrolling is idempotent:
// an existing ACTIVE row is returned unchanged, a CANCELLED row is
// reactivated, and the loser of a concurrent unique-constraint race lands
// on the already-enrolled success path.
func (s *EnrollmentService) Enroll(ctx context.Context, learnerID string, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	decision, err := s.gating.EvaluateAccess(ctx, learnerID, req.UnitID)
	if err != nil {
		return nil, err
	}
	if !decision.Accessible {
		reason := "access denied"
		if decision.Reason != nil {
			reason = *decision.Reason
		}
		return nil, appErrors.AccessDenied(reason)
	}

	existing, err := s.repo.FindByLearnerAndUnit(ctx, learnerID, req.UnitID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if existing != nil {
		if existing.Status == models.EnrollmentStatusActive {
			return existing, nil
		}
		if err := s.repo.SetStatus(ctx, existing.ID, models.EnrollmentStatusActive); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate enrollment")
		}
		existing.Status = models.EnrollmentStatusActive
		return existing, nil
	}

	enrollment := &models.Enrollment{
		LearnerID:  learnerID,
		UnitID:     req.UnitID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	inserted, err := s.repo.Create(ctx, enrollment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if !inserted {
		// Lost the unique-constraint race; the winner's row is ours.
		winner, err := s.repo.FindByLearnerAndUnit(ctx, learnerID, req.UnitID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		return winner, nil
	}
	return enrollment, nil
}

// Cancel flips an ACTIVE enrollment to CANCELLED. Completion, once
// recorded, survives cancellation.
func (s *EnrollmentService) Cancel(ctx context.Context, learnerID, unitID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByLearnerAndUnit(ctx, learnerID, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusCancelled {
		return enrollment, nil
	}
	if err := s.repo.SetStatus(ctx, enrollment.ID, models.EnrollmentStatusCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}
	enrollment.Status = models.EnrollmentStatusCancelled
	return enrollment, nil
}
