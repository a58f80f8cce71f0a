package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/export"
)

type profileUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetSelectedCurriculum(ctx context.Context, id, curriculumID string, switched bool) error
}

type profileCurriculumReader interface {
	FindByID(ctx context.Context, id string) (*models.Curriculum, error)
	ListByDivision(ctx context.Context, division models.Division, state models.LifecycleState) ([]models.Curriculum, error)
}

type profileEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type profileProgressReader interface {
	UnitProgressByLearner(ctx context.Context, learnerID string) ([]models.UnitProgress, error)
}

// SelectCurriculumRequest is the payload for choosing a curriculum.
type SelectCurriculumRequest struct {
	CurriculumID string `json:"curriculum_id" validate:"required,uuid4"`
}

// ProfileOverview combines the user row with per-unit progress.
type ProfileOverview struct {
	User        *models.User              `json:"user"`
	Curriculum  *models.Curriculum        `json:"curriculum,omitempty"`
	Enrollments []models.EnrollmentDetail `json:"enrollments"`
	Progress    []models.UnitProgress     `json:"progress"`
}

// UserService serves profile and curriculum selection use cases.
type UserService struct {
	users       profileUserRepository
	curricula   profileCurriculumReader
	enrollments profileEnrollmentReader
	progress    profileProgressReader
	csv         *export.CSVExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(
	users profileUserRepository,
	curricula profileCurriculumReader,
	enrollments profileEnrollmentReader,
	progress profileProgressReader,
	validate *validator.Validate,
	logger *zap.Logger,
) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:       users,
		curricula:   curricula,
		enrollments: enrollments,
		progress:    progress,
		csv:         export.NewCSVExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// Profile returns the user row together with the selected curriculum.
func (s *UserService) Profile(ctx context.Context, userID string) (*ProfileOverview, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	overview := &ProfileOverview{User: user}
	if user.SelectedCurriculumID != nil {
		curriculum, err := s.curricula.FindByID(ctx, *user.SelectedCurriculumID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selected curriculum")
		}
		overview.Curriculum = curriculum
	}

	items, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{LearnerID: userID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	overview.Enrollments = items

	progress, err := s.progress.UnitProgressByLearner(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	overview.Progress = progress
	return overview, nil
}

// AvailableCurricula lists the active curricula of the learner's division.
func (s *UserService) AvailableCurricula(ctx context.Context, userID string) ([]models.Curriculum, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.curricula.ListByDivision(ctx, user.Division, models.CurriculumActive)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list curricula")
	}
	return items, nil
}

// SelectCurriculum records the learner's curriculum choice. The first change
// away from an existing selection is allowed once; further changes conflict.
func (s *UserService) SelectCurriculum(ctx context.Context, userID string, req SelectCurriculumRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid curriculum payload")
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	curriculum, err := s.curricula.FindByID(ctx, req.CurriculumID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}
	if curriculum.Division != user.Division || curriculum.State != models.CurriculumActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
	}

	if user.SelectedCurriculumID != nil {
		if *user.SelectedCurriculumID == curriculum.ID {
			return user, nil
		}
		if user.CurriculumSwitched {
			return nil, appErrors.Clone(appErrors.ErrConflict, "curriculum can only be changed once")
		}
		if err := s.users.SetSelectedCurriculum(ctx, userID, curriculum.ID, true); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to switch curriculum")
		}
		s.logger.Info("curriculum switched",
			zap.String("user_id", userID),
			zap.String("from", *user.SelectedCurriculumID),
			zap.String("to", curriculum.ID))
	} else {
		if err := s.users.SetSelectedCurriculum(ctx, userID, curriculum.ID, false); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select curriculum")
		}
		s.logger.Info("curriculum selected",
			zap.String("user_id", userID),
			zap.String("curriculum_id", curriculum.ID))
	}

	return s.loadUser(ctx, userID)
}

// Transcript renders the learner's enrollments and completion dates as CSV.
func (s *UserService) Transcript(ctx context.Context, userID string) ([]byte, string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	items, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{LearnerID: userID})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	dataset := export.Dataset{
		Headers: []string{"unit", "title", "status", "enrolled_at", "completed_at"},
	}
	for _, item := range items {
		completed := ""
		if item.CompletedAt != nil {
			completed = item.CompletedAt.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"unit":         item.UnitSlug,
			"title":        item.UnitTitle,
			"status":       string(item.Status),
			"enrolled_at":  item.EnrolledAt.Format(time.RFC3339),
			"completed_at": completed,
		})
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}
	filename := fmt.Sprintf("transcript-%s-%s.csv", user.ID, time.Now().UTC().Format("20060102"))
	return payload, filename, nil
}

func (s *UserService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
