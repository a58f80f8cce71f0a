package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Status toggles ACTIVE <-> CANCELLED;
// CompletedAt is set exactly once and never cleared.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment captures a learner's relationship to a unit, including
// completion. Keyed by (learner, unit); it outlives curriculum restructuring.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	LearnerID   string           `db:"learner_id" json:"learner_id"`
	UnitID      string           `db:"unit_id" json:"unit_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// Completed reports whether the unit has been fully completed.
func (e Enrollment) Completed() bool {
	return e.CompletedAt != nil
}

// EnrollmentDetail enriches Enrollment with unit display fields.
type EnrollmentDetail struct {
	Enrollment
	UnitSlug  string `db:"unit_slug" json:"unit_slug"`
	UnitTitle string `db:"unit_title" json:"unit_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	LearnerID string
	UnitID    string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
