package models

import "time"

// PointAward is a ledger row granting points, written when a unit completes.
type PointAward struct {
	ID        string    `db:"id" json:"id"`
	LearnerID string    `db:"learner_id" json:"learner_id"`
	UnitID    string    `db:"unit_id" json:"unit_id"`
	Points    int       `db:"points" json:"points"`
	AwardedAt time.Time `db:"awarded_at" json:"awarded_at"`
}

// LeaderboardEntry is one ranked row of the points leaderboard.
type LeaderboardEntry struct {
	Rank        int      `db:"rank" json:"rank"`
	LearnerID   string   `db:"learner_id" json:"learner_id"`
	FullName    string   `db:"full_name" json:"full_name"`
	Division    Division `db:"division" json:"division"`
	TotalPoints int      `db:"total_points" json:"total_points"`
	Completions int      `db:"completions" json:"completions"`
}

// LeaderboardPage is a cached page of the leaderboard read model.
type LeaderboardPage struct {
	Entries     []LeaderboardEntry `json:"entries"`
	Division    Division           `json:"division"`
	Page        int                `json:"page"`
	PageSize    int                `json:"page_size"`
	TotalCount  int                `json:"total_count"`
	GeneratedAt time.Time          `json:"generated_at"`
}
