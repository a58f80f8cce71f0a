package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/jobs"
)

// PointsPerUnit is awarded on each unit completion.
const PointsPerUnit = 100

type progressRepository interface {
	CompleteLesson(ctx context.Context, learnerID, lessonID, unitID, enrollmentID string) (bool, error)
	UnitProgress(ctx context.Context, learnerID, unitID string) (*models.UnitProgress, error)
}

type progressLessonReader interface {
	FindDetail(ctx context.Context, lessonID string) (*models.LessonDetail, error)
	NextLesson(ctx context.Context, unitID string, chapterPosition, lessonPosition int) (*string, error)
}

type progressEnrollmentRepository interface {
	FindByLearnerAndUnit(ctx context.Context, learnerID, unitID string) (*models.Enrollment, error)
}

type progressUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateCurriculumState(ctx context.Context, id string, state models.CurriculumState) error
}

type pointAwarder interface {
	CreateAward(ctx context.Context, award *models.PointAward) error
}

type certificateIssuer interface {
	Issue(ctx context.Context, learnerID, unitID string) error
}

type refreshEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ProgressService derives per-unit completion from lesson-level progress and
// drives the downstream completion transitions.
type ProgressService struct {
	repo         progressRepository
	lessons      progressLessonReader
	enrollments  progressEnrollmentRepository
	users        progressUserRepository
	gating       coreCompletionChecker
	awards       pointAwarder
	certificates certificateIssuer
	refreshQueue refreshEnqueuer
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewProgressService constructs ProgressService. The award, certificate and
// refresh-queue collaborators are optional; nil disables that side effect.
func NewProgressService(repo progressRepository, lessons progressLessonReader, enrollments progressEnrollmentRepository, users progressUserRepository, gating coreCompletionChecker, awards pointAwarder, certificates certificateIssuer, refreshQueue refreshEnqueuer, validate *validator.Validate, logger *zap.Logger) *ProgressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		repo:         repo,
		lessons:      lessons,
		enrollments:  enrollments,
		users:        users,
		gating:       gating,
		awards:       awards,
		certificates: certificates,
		refreshQueue: refreshQueue,
		validator:    validate,
		logger:       logger,
	}
}

// MarkLessonComplete records lesson completion for the learner and returns
// whether this call completed the owning unit, plus the next lesson to
// surface. The learner must hold an ACTIVE enrollment on the owning unit;
// completion cannot silently accrue on units never validly enrolled in.
//
// The progress write and the unit-completion transition commit in one
// repository transaction. Enrollment.CompletedAt is monotonic: the guarded
// update sets it at most once, so replays and concurrent completions cannot
// clear or overwrite it.
func (s *ProgressService) MarkLessonComplete(ctx context.Context, learnerID, lessonID string) (*models.MarkLessonResult, error) {
	lesson, err := s.lessons.FindDetail(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	enrollment, err := s.enrollments.FindByLearnerAndUnit(ctx, learnerID, lesson.UnitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.AccessDenied("you are not enrolled in this unit")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.AccessDenied("your enrollment in this unit is not active")
	}

	completedNow, err := s.repo.CompleteLesson(ctx, learnerID, lessonID, lesson.UnitID, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record lesson progress")
	}

	result := &models.MarkLessonResult{UnitID: lesson.UnitID, UnitCompletedNow: completedNow}
	if completedNow {
		s.onUnitCompleted(ctx, learnerID, lesson.UnitID)
	}

	next, err := s.lessons.NextLesson(ctx, lesson.UnitID, lesson.ChapterPosition, lesson.Position)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve next lesson")
	}
	result.NextLessonID = next

	return result, nil
}

// Progress returns the learner's lesson counts for a unit.
func (s *ProgressService) Progress(ctx context.Context, learnerID, unitID string) (*models.UnitProgress, error) {
	progress, err := s.repo.UnitProgress(ctx, learnerID, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UnitProgress{UnitID: unitID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit progress")
	}
	return progress, nil
}

// onUnitCompleted runs the first-completion side effects: point award,
// certificate issue, curriculum aggregate recompute and a leaderboard
// refresh. None of them can undo the completion itself; failures are logged
// and left for reconciliation.
func (s *ProgressService) onUnitCompleted(ctx context.Context, learnerID, unitID string) {
	if s.awards != nil {
		award := &models.PointAward{LearnerID: learnerID, UnitID: unitID, Points: PointsPerUnit}
		if err := s.awards.CreateAward(ctx, award); err != nil {
			s.logger.Warn("point award failed", zap.String("learner_id", learnerID), zap.String("unit_id", unitID), zap.Error(err))
		}
	}

	if s.certificates != nil {
		if err := s.certificates.Issue(ctx, learnerID, unitID); err != nil {
			s.logger.Warn("certificate issue failed", zap.String("learner_id", learnerID), zap.String("unit_id", unitID), zap.Error(err))
		}
	}

	s.recomputeAggregate(ctx, learnerID)

	if s.refreshQueue != nil {
		job := jobs.Job{ID: uuid.NewString(), Type: "leaderboard_refresh", Payload: learnerID}
		if err := s.refreshQueue.Enqueue(job); err != nil {
			s.logger.Warn("leaderboard refresh enqueue failed", zap.Error(err))
		}
	}
}

// recomputeAggregate refreshes the learner's persisted curriculum_state from
// scratch; the flag is never trusted as an input to its own recomputation.
func (s *ProgressService) recomputeAggregate(ctx context.Context, learnerID string) {
	learner, err := s.users.FindByID(ctx, learnerID)
	if err != nil {
		s.logger.Warn("aggregate recompute skipped", zap.String("learner_id", learnerID), zap.Error(err))
		return
	}
	if learner.SelectedCurriculumID == nil {
		return
	}
	complete, err := s.gating.CoreComplete(ctx, learnerID, *learner.SelectedCurriculumID)
	if err != nil {
		s.logger.Warn("aggregate recompute failed", zap.String("learner_id", learnerID), zap.Error(err))
		return
	}
	state := models.CurriculumInProgress
	if complete {
		state = models.CurriculumCompleted
	}
	if err := s.users.UpdateCurriculumState(ctx, learnerID, state); err != nil {
		s.logger.Warn("aggregate persist failed", zap.String("learner_id", learnerID), zap.Error(err))
	}
}
