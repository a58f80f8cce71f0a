package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type fakeEnrollmentRepo struct {
	enrollments map[string]*models.Enrollment
	createWins  bool
	raceWinner  *models.Enrollment
	created     []*models.Enrollment
	statusCalls int
}

func (f *fakeEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		if filter.LearnerID != "" && e.LearnerID != filter.LearnerID {
			continue
		}
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, len(out), nil
}

func (f *fakeEnrollmentRepo) FindByLearnerAndUnit(ctx context.Context, learnerID, unitID string) (*models.Enrollment, error) {
	if e, ok := f.enrollments[enrollmentKey(learnerID, unitID)]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	f.created = append(f.created, enrollment)
	if f.enrollments == nil {
		f.enrollments = make(map[string]*models.Enrollment)
	}
	if !f.createWins {
		// A concurrent insert won; its row becomes visible to the re-read.
		f.enrollments[enrollmentKey(enrollment.LearnerID, enrollment.UnitID)] = f.raceWinner
		return false, nil
	}
	f.enrollments[enrollmentKey(enrollment.LearnerID, enrollment.UnitID)] = enrollment
	return true, nil
}

func (f *fakeEnrollmentRepo) SetStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	f.statusCalls++
	for _, e := range f.enrollments {
		if e.ID == id {
			e.Status = status
		}
	}
	return nil
}

type fakeAccessEvaluator struct {
	decisions map[string]models.AccessDecision
	calls     int
}

func (f *fakeAccessEvaluator) EvaluateAccess(ctx context.Context, learnerID, unitID string) (models.AccessDecision, error) {
	f.calls++
	if d, ok := f.decisions[unitID]; ok {
		return d, nil
	}
	return models.Allow(), nil
}

const (
	enrollUnitOpen   = "5a2b3c4d-1111-4222-8333-000000000001"
	enrollUnitLocked = "5a2b3c4d-1111-4222-8333-000000000002"
)

func enrollmentFixture() (*EnrollmentService, *fakeEnrollmentRepo, *fakeAccessEvaluator) {
	repo := &fakeEnrollmentRepo{enrollments: map[string]*models.Enrollment{}, createWins: true}
	gating := &fakeAccessEvaluator{decisions: map[string]models.AccessDecision{
		enrollUnitLocked: models.Deny(`complete "Unit A" first`),
	}}
	svc := NewEnrollmentService(repo, gating, validator.New(), zap.NewNop())
	return svc, repo, gating
}

func TestEnrollCreatesActiveRow(t *testing.T) {
	svc, repo, _ := enrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), "learner-1", EnrollRequest{UnitID: enrollUnitOpen})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, "learner-1", enrollment.LearnerID)
	assert.Nil(t, enrollment.CompletedAt)
	assert.Len(t, repo.created, 1)
}

func TestEnrollDenialShortCircuitsBeforeWrites(t *testing.T) {
	svc, repo, gating := enrollmentFixture()

	_, err := svc.Enroll(context.Background(), "learner-1", EnrollRequest{UnitID: enrollUnitLocked})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAccessDenied.Code, appErr.Code)
	assert.Equal(t, `complete "Unit A" first`, appErr.Message)
	assert.Equal(t, 1, gating.calls)
	assert.Empty(t, repo.created)
	assert.Zero(t, repo.statusCalls)
}

func TestEnrollActiveRowIsIdempotent(t *testing.T) {
	svc, repo, _ := enrollmentFixture()
	existing := &models.Enrollment{
		ID: "enr-1", LearnerID: "learner-1", UnitID: enrollUnitOpen,
		Status: models.EnrollmentStatusActive, EnrolledAt: time.Now().UTC(),
	}
	repo.enrollments[enrollmentKey("learner-1", enrollUnitOpen)] = existing

	enrollment, err := svc.Enroll(context.Background(), "learner-1", EnrollRequest{UnitID: enrollUnitOpen})
	require.NoError(t, err)
	assert.Equal(t, "enr-1", enrollment.ID)
	assert.Empty(t, repo.created)
	assert.Zero(t, repo.statusCalls)
}

func TestEnrollReactivatesCancelledRow(t *testing.T) {
	svc, repo, _ := enrollmentFixture()
	now := time.Now().UTC()
	repo.enrollments[enrollmentKey("learner-1", enrollUnitOpen)] = &models.Enrollment{
		ID: "enr-1", LearnerID: "learner-1", UnitID: enrollUnitOpen,
		Status: models.EnrollmentStatusCancelled, EnrolledAt: now, CompletedAt: &now,
	}

	enrollment, err := svc.Enroll(context.Background(), "learner-1", EnrollRequest{UnitID: enrollUnitOpen})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	// Completion recorded before cancellation survives the round trip.
	assert.NotNil(t, enrollment.CompletedAt)
	assert.Equal(t, 1, repo.statusCalls)
	assert.Empty(t, repo.created)
}

func TestEnrollRaceLoserLandsOnWinnersRow(t *testing.T) {
	svc, repo, _ := enrollmentFixture()
	repo.createWins = false
	repo.raceWinner = &models.Enrollment{
		ID: "enr-winner", LearnerID: "learner-1", UnitID: enrollUnitOpen,
		Status: models.EnrollmentStatusActive, EnrolledAt: time.Now().UTC(),
	}

	enrollment, err := svc.Enroll(context.Background(), "learner-1", EnrollRequest{UnitID: enrollUnitOpen})
	require.NoError(t, err)
	assert.Equal(t, "enr-winner", enrollment.ID)
	assert.Len(t, repo.created, 1)
}

func TestEnrollRejectsMalformedUnitID(t *testing.T) {
	svc, _, _ := enrollmentFixture()

	_, err := svc.Enroll(context.Background(), "learner-1", EnrollRequest{UnitID: "not-a-uuid"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCancelFlipsStatus(t *testing.T) {
	svc, repo, _ := enrollmentFixture()
	repo.enrollments[enrollmentKey("learner-1", enrollUnitOpen)] = &models.Enrollment{
		ID: "enr-1", LearnerID: "learner-1", UnitID: enrollUnitOpen,
		Status: models.EnrollmentStatusActive, EnrolledAt: time.Now().UTC(),
	}

	enrollment, err := svc.Cancel(context.Background(), "learner-1", enrollUnitOpen)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, enrollment.Status)
	assert.Equal(t, 1, repo.statusCalls)
}

func TestCancelAlreadyCancelledIsIdempotent(t *testing.T) {
	svc, repo, _ := enrollmentFixture()
	repo.enrollments[enrollmentKey("learner-1", enrollUnitOpen)] = &models.Enrollment{
		ID: "enr-1", LearnerID: "learner-1", UnitID: enrollUnitOpen,
		Status: models.EnrollmentStatusCancelled, EnrolledAt: time.Now().UTC(),
	}

	enrollment, err := svc.Cancel(context.Background(), "learner-1", enrollUnitOpen)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, enrollment.Status)
	assert.Zero(t, repo.statusCalls)
}

func TestCancelUnknownEnrollment(t *testing.T) {
	svc, _, _ := enrollmentFixture()

	_, err := svc.Cancel(context.Background(), "learner-1", enrollUnitOpen)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
