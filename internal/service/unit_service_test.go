package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type fakeUnitRepo struct {
	units       map[string]*models.Unit
	stateCalls  []models.PublicationState
	updateCalls int
}

func (f *fakeUnitRepo) List(ctx context.Context, filter models.UnitFilter) ([]models.Unit, int, error) {
	var out []models.Unit
	for _, u := range f.units {
		if filter.Division != "" && u.Division != filter.Division {
			continue
		}
		if filter.State != "" && u.State != filter.State {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUnitRepo) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	if u, ok := f.units[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUnitRepo) FindBySlug(ctx context.Context, slug string) (*models.Unit, error) {
	for _, u := range f.units {
		if u.Slug == slug {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUnitRepo) ExistsSlug(ctx context.Context, slug, excludeID string) (bool, error) {
	for _, u := range f.units {
		if u.Slug == slug && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUnitRepo) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = "unit-new"
	}
	f.units[unit.ID] = unit
	return nil
}

func (f *fakeUnitRepo) Update(ctx context.Context, unit *models.Unit) error {
	f.updateCalls++
	f.units[unit.ID] = unit
	return nil
}

func (f *fakeUnitRepo) SetState(ctx context.Context, id string, state models.PublicationState) error {
	f.stateCalls = append(f.stateCalls, state)
	if u, ok := f.units[id]; ok {
		u.State = state
	}
	return nil
}

type fakeUnitLessons struct {
	lessons map[string][]models.LessonDetail
}

func (f *fakeUnitLessons) ListByUnit(ctx context.Context, unitID string) ([]models.LessonDetail, error) {
	return f.lessons[unitID], nil
}

func unitFixture() (*UnitService, *fakeUnitRepo, *fakeAccessEvaluator) {
	repo := &fakeUnitRepo{units: map[string]*models.Unit{
		"unit-1": {ID: "unit-1", Slug: "go-basics", Title: "Go Basics", Division: models.DivisionEngineering, State: models.UnitPublished},
		"unit-2": {ID: "unit-2", Slug: "go-advanced", Title: "Go Advanced", Division: models.DivisionEngineering, State: models.UnitPublished},
	}}
	lessons := &fakeUnitLessons{lessons: map[string][]models.LessonDetail{
		"unit-1": {{Lesson: models.Lesson{ID: "lesson-1", Title: "Packages", Position: 1}, UnitID: "unit-1", ChapterPosition: 1}},
		"unit-2": {{Lesson: models.Lesson{ID: "lesson-2", Title: "Generics", Position: 1}, UnitID: "unit-2", ChapterPosition: 1}},
	}}
	gating := &fakeAccessEvaluator{decisions: map[string]models.AccessDecision{
		"unit-2": models.Deny(`complete "Go Basics" first`),
	}}
	svc := NewUnitService(repo, lessons, gating, validator.New(), zap.NewNop())
	return svc, repo, gating
}

func TestUnitCatalogCarriesLockReasons(t *testing.T) {
	svc, _, _ := unitFixture()

	units, pagination, err := svc.Catalog(context.Background(), "learner-1", models.UnitFilter{Division: models.DivisionEngineering})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, 2, pagination.TotalCount)

	byID := map[string]models.UnitWithAccess{}
	for _, u := range units {
		byID[u.ID] = u
	}
	assert.True(t, byID["unit-1"].Accessible)
	assert.Nil(t, byID["unit-1"].LockReason)
	assert.False(t, byID["unit-2"].Accessible)
	require.NotNil(t, byID["unit-2"].LockReason)
	assert.Equal(t, `complete "Go Basics" first`, *byID["unit-2"].LockReason)
}

func TestUnitGetWithholdsOutlineWhileLocked(t *testing.T) {
	svc, _, _ := unitFixture()

	open, err := svc.Get(context.Background(), "learner-1", "unit-1")
	require.NoError(t, err)
	assert.True(t, open.Accessible)
	assert.Len(t, open.Lessons, 1)

	locked, err := svc.Get(context.Background(), "learner-1", "unit-2")
	require.NoError(t, err)
	assert.False(t, locked.Accessible)
	assert.Empty(t, locked.Lessons)
}

func TestUnitGetUnknownID(t *testing.T) {
	svc, _, _ := unitFixture()

	_, err := svc.Get(context.Background(), "learner-1", "unit-x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUnitCreateStartsAsDraft(t *testing.T) {
	svc, _, _ := unitFixture()

	unit, err := svc.Create(context.Background(), CreateUnitRequest{
		Slug: "go-concurrency", Title: "Go Concurrency", Division: models.DivisionEngineering,
	})
	require.NoError(t, err)
	assert.Equal(t, models.UnitDraft, unit.State)
}

func TestUnitCreateRejectsTakenSlug(t *testing.T) {
	svc, _, _ := unitFixture()

	_, err := svc.Create(context.Background(), CreateUnitRequest{
		Slug: "go-basics", Title: "Another Basics", Division: models.DivisionEngineering,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "slug already in use", appErr.Message)
}

func TestUnitCreateRejectsUppercaseSlug(t *testing.T) {
	svc, _, _ := unitFixture()

	_, err := svc.Create(context.Background(), CreateUnitRequest{
		Slug: "Go-Basics", Title: "Go Basics", Division: models.DivisionEngineering,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUnitUpdateSlugChangeChecksUniqueness(t *testing.T) {
	svc, repo, _ := unitFixture()

	slug := "go-advanced"
	_, err := svc.Update(context.Background(), "unit-1", UpdateUnitRequest{Slug: &slug})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.updateCalls)

	// Re-submitting a unit's own slug is not a conflict.
	own := "go-basics"
	title := "Go Basics, Revised"
	unit, err := svc.Update(context.Background(), "unit-1", UpdateUnitRequest{Slug: &own, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Go Basics, Revised", unit.Title)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestUnitSetStateValidatesEnum(t *testing.T) {
	svc, repo, _ := unitFixture()

	err := svc.SetState(context.Background(), "unit-1", "RETIRED")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.stateCalls)

	require.NoError(t, svc.SetState(context.Background(), "unit-1", models.UnitArchived))
	assert.Equal(t, []models.PublicationState{models.UnitArchived}, repo.stateCalls)
	assert.Equal(t, models.UnitArchived, repo.units["unit-1"].State)
}

func TestUnitSetStateUnknownUnit(t *testing.T) {
	svc, _, _ := unitFixture()

	err := svc.SetState(context.Background(), "unit-x", models.UnitPublished)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
