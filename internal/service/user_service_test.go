package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type fakeProfileUsers struct {
	users      map[string]*models.User
	selections []string
}

func (f *fakeProfileUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeProfileUsers) SetSelectedCurriculum(ctx context.Context, id, curriculumID string, switched bool) error {
	f.selections = append(f.selections, curriculumID)
	if u, ok := f.users[id]; ok {
		u.SelectedCurriculumID = &curriculumID
		u.CurriculumSwitched = switched
	}
	return nil
}

type fakeCurriculumReader struct {
	curricula map[string]*models.Curriculum
}

func (f *fakeCurriculumReader) FindByID(ctx context.Context, id string) (*models.Curriculum, error) {
	if c, ok := f.curricula[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCurriculumReader) ListByDivision(ctx context.Context, division models.Division, state models.LifecycleState) ([]models.Curriculum, error) {
	var out []models.Curriculum
	for _, c := range f.curricula {
		if c.Division == division && (state == "" || c.State == state) {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeProfileEnrollments struct {
	items []models.EnrollmentDetail
}

func (f *fakeProfileEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return f.items, len(f.items), nil
}

type fakeProfileProgress struct {
	items []models.UnitProgress
}

func (f *fakeProfileProgress) UnitProgressByLearner(ctx context.Context, learnerID string) ([]models.UnitProgress, error) {
	return f.items, nil
}

const (
	profileCurEng   = "6b7c8d9e-2222-4333-8444-000000000001"
	profileCurEng2  = "6b7c8d9e-2222-4333-8444-000000000002"
	profileCurOps   = "6b7c8d9e-2222-4333-8444-000000000003"
	profileCurGhost = "6b7c8d9e-2222-4333-8444-000000000009"
)

func userFixture() (*UserService, *fakeProfileUsers) {
	users := &fakeProfileUsers{users: map[string]*models.User{
		"learner-1": {
			ID: "learner-1", Email: "dev@example.com", FullName: "Dev One",
			Role: models.RoleStudent, Division: models.DivisionEngineering, Active: true,
		},
	}}
	curricula := &fakeCurriculumReader{curricula: map[string]*models.Curriculum{
		profileCurEng:  {ID: profileCurEng, Division: models.DivisionEngineering, Title: "Backend Path", State: models.CurriculumActive},
		profileCurEng2: {ID: profileCurEng2, Division: models.DivisionEngineering, Title: "Frontend Path", State: models.CurriculumActive},
		profileCurOps:  {ID: profileCurOps, Division: models.DivisionOperations, Title: "Ops Path", State: models.CurriculumActive},
	}}
	now := time.Now().UTC()
	enrollments := &fakeProfileEnrollments{items: []models.EnrollmentDetail{{
		Enrollment: models.Enrollment{
			ID: "enr-1", LearnerID: "learner-1", UnitID: "unit-1",
			Status: models.EnrollmentStatusActive, EnrolledAt: now, CompletedAt: &now,
		},
		UnitSlug: "go-basics", UnitTitle: "Go Basics",
	}}}
	progress := &fakeProfileProgress{items: []models.UnitProgress{{UnitID: "unit-1", TotalLessons: 4, CompletedCount: 4}}}
	svc := NewUserService(users, curricula, enrollments, progress, validator.New(), zap.NewNop())
	return svc, users
}

func TestSelectCurriculumFirstChoice(t *testing.T) {
	svc, users := userFixture()

	user, err := svc.SelectCurriculum(context.Background(), "learner-1", SelectCurriculumRequest{CurriculumID: profileCurEng})
	require.NoError(t, err)
	require.NotNil(t, user.SelectedCurriculumID)
	assert.Equal(t, profileCurEng, *user.SelectedCurriculumID)
	assert.False(t, user.CurriculumSwitched)
	assert.Equal(t, []string{profileCurEng}, users.selections)
}

func TestSelectCurriculumSameChoiceIsIdempotent(t *testing.T) {
	svc, users := userFixture()
	selected := profileCurEng
	users.users["learner-1"].SelectedCurriculumID = &selected

	user, err := svc.SelectCurriculum(context.Background(), "learner-1", SelectCurriculumRequest{CurriculumID: profileCurEng})
	require.NoError(t, err)
	assert.Equal(t, profileCurEng, *user.SelectedCurriculumID)
	assert.Empty(t, users.selections)
}

func TestSelectCurriculumAllowsOneSwitch(t *testing.T) {
	svc, users := userFixture()
	selected := profileCurEng
	users.users["learner-1"].SelectedCurriculumID = &selected

	user, err := svc.SelectCurriculum(context.Background(), "learner-1", SelectCurriculumRequest{CurriculumID: profileCurEng2})
	require.NoError(t, err)
	assert.Equal(t, profileCurEng2, *user.SelectedCurriculumID)
	assert.True(t, user.CurriculumSwitched)

	// The one allowed switch is used up; a second change conflicts.
	_, err = svc.SelectCurriculum(context.Background(), "learner-1", SelectCurriculumRequest{CurriculumID: profileCurEng})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "curriculum can only be changed once", appErr.Message)
}

func TestSelectCurriculumCrossDivisionLooksAbsent(t *testing.T) {
	svc, _ := userFixture()

	_, err := svc.SelectCurriculum(context.Background(), "learner-1", SelectCurriculumRequest{CurriculumID: profileCurOps})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	_, err = svc.SelectCurriculum(context.Background(), "learner-1", SelectCurriculumRequest{CurriculumID: profileCurGhost})
	require.Error(t, err)
	// Foreign-division and absent curricula are indistinguishable.
	assert.Equal(t, appErr.Message, appErrors.FromError(err).Message)
}

func TestSelectCurriculumRejectsArchived(t *testing.T) {
	svc, users := userFixture()
	svc.curricula.(*fakeCurriculumReader).curricula[profileCurEng].State = models.CurriculumArchived

	_, err := svc.SelectCurriculum(context.Background(), "learner-1", SelectCurriculumRequest{CurriculumID: profileCurEng})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, users.selections)
}

func TestAvailableCurriculaScopedToDivision(t *testing.T) {
	svc, _ := userFixture()

	items, err := svc.AvailableCurricula(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, c := range items {
		assert.Equal(t, models.DivisionEngineering, c.Division)
	}
}

func TestProfileIncludesSelectedCurriculum(t *testing.T) {
	svc, users := userFixture()
	selected := profileCurEng
	users.users["learner-1"].SelectedCurriculumID = &selected

	overview, err := svc.Profile(context.Background(), "learner-1")
	require.NoError(t, err)
	require.NotNil(t, overview.Curriculum)
	assert.Equal(t, "Backend Path", overview.Curriculum.Title)
	assert.Len(t, overview.Enrollments, 1)
	assert.Len(t, overview.Progress, 1)
}

func TestProfileUnknownUser(t *testing.T) {
	svc, _ := userFixture()

	_, err := svc.Profile(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTranscriptRendersEnrollmentRows(t *testing.T) {
	svc, _ := userFixture()

	payload, filename, err := svc.Transcript(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "transcript-learner-1-"))
	assert.True(t, strings.HasSuffix(filename, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "unit,title,status,enrolled_at,completed_at", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "go-basics")
	assert.Contains(t, lines[1], "ACTIVE")
}
