package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type leaderboardRepository interface {
	TopByDivision(ctx context.Context, division models.Division, page, size int) ([]models.LeaderboardEntry, error)
	CountByDivision(ctx context.Context, division models.Division) (int, error)
}

// LeaderboardService serves the points ranking read model. It is explicitly
// not gating-critical: pages come from a short-TTL cache refreshed after
// completions, and the gating evaluator never reads it.
type LeaderboardService struct {
	repo     leaderboardRepository
	cache    *CacheService
	cacheTTL time.Duration
	pageSize int
	logger   *zap.Logger
}

// NewLeaderboardService constructs LeaderboardService.
func NewLeaderboardService(repo leaderboardRepository, cache *CacheService, cacheTTL time.Duration, pageSize int, logger *zap.Logger) *LeaderboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardService{repo: repo, cache: cache, cacheTTL: cacheTTL, pageSize: pageSize, logger: logger}
}

func leaderboardCacheKey(division models.Division, page, size int) string {
	return fmt.Sprintf("leaderboard:%s:%d:%d", division, page, size)
}

// Page returns one ranked page for the division, cache-first.
func (s *LeaderboardService) Page(ctx context.Context, division models.Division, page, size int) (*models.LeaderboardPage, error) {
	if !models.ValidDivision(division) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown division")
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = s.pageSize
	}

	key := leaderboardCacheKey(division, page, size)
	if s.cache != nil {
		var cached models.LeaderboardPage
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	result, err := s.build(ctx, division, page, size)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("leaderboard cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// Refresh invalidates the division's cached pages and warms the first one.
// Invoked by the background queue after unit completions.
func (s *LeaderboardService) Refresh(ctx context.Context, division models.Division) error {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf("leaderboard:%s:*", division)); err != nil {
			return err
		}
	}
	result, err := s.build(ctx, division, 1, s.pageSize)
	if err != nil {
		return err
	}
	if s.cache != nil {
		return s.cache.Set(ctx, leaderboardCacheKey(division, 1, s.pageSize), result, s.cacheTTL)
	}
	return nil
}

func (s *LeaderboardService) build(ctx context.Context, division models.Division, page, size int) (*models.LeaderboardPage, error) {
	entries, err := s.repo.TopByDivision(ctx, division, page, size)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build leaderboard")
	}
	total, err := s.repo.CountByDivision(ctx, division)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count leaderboard")
	}
	return &models.LeaderboardPage{
		Entries:     entries,
		Division:    division,
		Page:        page,
		PageSize:    size,
		TotalCount:  total,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
