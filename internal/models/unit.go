package models

import "time"

// PublicationState is the lifecycle of a learning unit.
type PublicationState string

const (
	UnitDraft     PublicationState = "DRAFT"
	UnitPublished PublicationState = "PUBLISHED"
	UnitArchived  PublicationState = "ARCHIVED"
)

// Unit is a course: the granular item that can be gated, enrolled and
// completed. A unit belongs to exactly one division.
type Unit struct {
	ID          string           `db:"id" json:"id"`
	Slug        string           `db:"slug" json:"slug"`
	Title       string           `db:"title" json:"title"`
	Description string           `db:"description" json:"description"`
	Division    Division         `db:"division" json:"division"`
	State       PublicationState `db:"publication_state" json:"publication_state"`
	// StandalonePosition is the legacy single-curriculum ordering field.
	// Curriculum memberships supersede it but some catalog views still sort by it.
	StandalonePosition *int      `db:"standalone_position" json:"standalone_position,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// UnitFilter provides filters for listing units.
type UnitFilter struct {
	Division  Division
	State     PublicationState
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// UnitWithAccess decorates a unit with the caller's gating decision.
type UnitWithAccess struct {
	Unit
	Accessible bool    `json:"accessible"`
	LockReason *string `json:"lock_reason,omitempty"`
}
