package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type fakeLeaderboardRepo struct {
	entries map[models.Division][]models.LeaderboardEntry
	queries int
}

func (f *fakeLeaderboardRepo) TopByDivision(ctx context.Context, division models.Division, page, size int) ([]models.LeaderboardEntry, error) {
	f.queries++
	return f.entries[division], nil
}

func (f *fakeLeaderboardRepo) CountByDivision(ctx context.Context, division models.Division) (int, error) {
	return len(f.entries[division]), nil
}

func leaderboardFixture() (*LeaderboardService, *fakeLeaderboardRepo) {
	repo := &fakeLeaderboardRepo{entries: map[models.Division][]models.LeaderboardEntry{
		models.DivisionEngineering: {
			{Rank: 1, LearnerID: "learner-1", FullName: "Dev One", Division: models.DivisionEngineering, TotalPoints: 300, Completions: 3},
			{Rank: 2, LearnerID: "learner-2", FullName: "Dev Two", Division: models.DivisionEngineering, TotalPoints: 100, Completions: 1},
		},
	}}
	svc := NewLeaderboardService(repo, nil, time.Minute, 20, zap.NewNop())
	return svc, repo
}

func TestLeaderboardPageRanksByPoints(t *testing.T) {
	svc, _ := leaderboardFixture()

	page, err := svc.Page(context.Background(), models.DivisionEngineering, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, 1, page.Entries[0].Rank)
	assert.Equal(t, 300, page.Entries[0].TotalPoints)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, models.DivisionEngineering, page.Division)
	assert.False(t, page.GeneratedAt.IsZero())
}

func TestLeaderboardPageRejectsUnknownDivision(t *testing.T) {
	svc, _ := leaderboardFixture()

	_, err := svc.Page(context.Background(), "MARKETING", 1, 20)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLeaderboardPageNormalisesPaging(t *testing.T) {
	svc, _ := leaderboardFixture()

	page, err := svc.Page(context.Background(), models.DivisionEngineering, -3, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
}

func TestLeaderboardEmptyDivision(t *testing.T) {
	svc, _ := leaderboardFixture()

	page, err := svc.Page(context.Background(), models.DivisionDesign, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Zero(t, page.TotalCount)
}

func TestLeaderboardRefreshWithoutCacheRebuilds(t *testing.T) {
	svc, repo := leaderboardFixture()

	require.NoError(t, svc.Refresh(context.Background(), models.DivisionEngineering))
	assert.Equal(t, 1, repo.queries)
}
