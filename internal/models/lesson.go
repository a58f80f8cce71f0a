package models

import "time"

// Chapter groups lessons inside a unit, ordered by position.
type Chapter struct {
	ID       string `db:"id" json:"id"`
	UnitID   string `db:"unit_id" json:"unit_id"`
	Title    string `db:"title" json:"title"`
	Position int    `db:"position" json:"position"`
}

// Lesson is the finest-grained completable item.
type Lesson struct {
	ID        string `db:"id" json:"id"`
	ChapterID string `db:"chapter_id" json:"chapter_id"`
	Title     string `db:"title" json:"title"`
	Position  int    `db:"position" json:"position"`
}

// LessonDetail carries the owning unit alongside the lesson.
type LessonDetail struct {
	Lesson
	UnitID          string `db:"unit_id" json:"unit_id"`
	ChapterPosition int    `db:"chapter_position" json:"chapter_position"`
}

// LessonProgress records a learner's completion of a single lesson.
// Completed is only ever set true; there is no un-complete transition.
type LessonProgress struct {
	ID          string     `db:"id" json:"id"`
	LearnerID   string     `db:"learner_id" json:"learner_id"`
	LessonID    string     `db:"lesson_id" json:"lesson_id"`
	Completed   bool       `db:"completed" json:"completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// UnitProgress summarises a learner's lesson counts for one unit.
type UnitProgress struct {
	UnitID          string `db:"unit_id" json:"unit_id"`
	TotalLessons    int    `db:"total_lessons" json:"total_lessons"`
	CompletedCount  int    `db:"completed_count" json:"completed_count"`
}

// Complete reports whether every lesson of a non-empty unit is done.
func (p UnitProgress) Complete() bool {
	return p.TotalLessons > 0 && p.CompletedCount == p.TotalLessons
}

// MarkLessonResult is returned by the progress aggregator.
type MarkLessonResult struct {
	UnitID           string  `json:"unit_id"`
	UnitCompletedNow bool    `json:"unit_completed_now"`
	NextLessonID     *string `json:"next_lesson_id,omitempty"`
}
