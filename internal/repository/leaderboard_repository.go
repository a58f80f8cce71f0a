package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// LeaderboardRepository derives the points ranking from the award ledger.
type LeaderboardRepository struct {
	db *sqlx.DB
}

// NewLeaderboardRepository constructs the repository.
func NewLeaderboardRepository(db *sqlx.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// CreateAward writes a point award row.
func (r *LeaderboardRepository) CreateAward(ctx context.Context, award *models.PointAward) error {
	if award.ID == "" {
		award.ID = uuid.NewString()
	}
	if award.AwardedAt.IsZero() {
		award.AwardedAt = time.Now().UTC()
	}
	const query = `INSERT INTO point_awards (id, learner_id, unit_id, points, awarded_at)
        VALUES (:id, :learner_id, :unit_id, :points, :awarded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, award); err != nil {
		return fmt.Errorf("create point award: %w", err)
	}
	return nil
}

// TopByDivision returns a ranked page of learners for the division.
func (r *LeaderboardRepository) TopByDivision(ctx context.Context, division models.Division, page, size int) ([]models.LeaderboardEntry, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size
	query := fmt.Sprintf(`SELECT
        RANK() OVER (ORDER BY SUM(a.points) DESC) AS rank,
        u.id AS learner_id, u.full_name, u.division,
        SUM(a.points) AS total_points,
        COUNT(a.id) AS completions
        FROM point_awards a
        JOIN users u ON u.id = a.learner_id
        WHERE u.division = $1 AND u.active
        GROUP BY u.id, u.full_name, u.division
        ORDER BY total_points DESC, u.full_name
        LIMIT %d OFFSET %d`, size, offset)
	var entries []models.LeaderboardEntry
	if err := r.db.SelectContext(ctx, &entries, query, division); err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}
	return entries, nil
}

// CountByDivision returns how many learners hold at least one award.
func (r *LeaderboardRepository) CountByDivision(ctx context.Context, division models.Division) (int, error) {
	const query = `SELECT COUNT(DISTINCT a.learner_id) FROM point_awards a
        JOIN users u ON u.id = a.learner_id
        WHERE u.division = $1 AND u.active`
	var count int
	if err := r.db.GetContext(ctx, &count, query, division); err != nil {
		return 0, fmt.Errorf("count leaderboard learners: %w", err)
	}
	return count, nil
}
