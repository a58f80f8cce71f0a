package models

import "time"

// LifecycleState is the lifecycle of a curriculum.
type LifecycleState string

const (
	CurriculumActive   LifecycleState = "ACTIVE"
	CurriculumArchived LifecycleState = "ARCHIVED"
)

// MembershipKind distinguishes the strictly ordered Core chain from the
// unordered Elective bloc.
type MembershipKind string

const (
	KindCore     MembershipKind = "CORE"
	KindElective MembershipKind = "ELECTIVE"
)

// Curriculum is a named, division-scoped ordered program composed of units.
type Curriculum struct {
	ID          string         `db:"id" json:"id"`
	Division    Division       `db:"division" json:"division"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	State       LifecycleState `db:"lifecycle_state" json:"lifecycle_state"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// CurriculumMembership joins a unit into a curriculum. Position values among
// Core members of one curriculum are dense integers 1..N; Elective members
// carry a position but gating ignores it.
type CurriculumMembership struct {
	ID           string         `db:"id" json:"id"`
	CurriculumID string         `db:"curriculum_id" json:"curriculum_id"`
	UnitID       string         `db:"unit_id" json:"unit_id"`
	Kind         MembershipKind `db:"kind" json:"kind"`
	Position     int            `db:"position" json:"position"`
}

// MembershipDetail enriches a membership with unit display fields.
type MembershipDetail struct {
	CurriculumMembership
	UnitSlug  string           `db:"unit_slug" json:"unit_slug"`
	UnitTitle string           `db:"unit_title" json:"unit_title"`
	UnitState PublicationState `db:"unit_state" json:"unit_state"`
}

// StructureEntry is one row of a full structure replacement supplied by the
// curriculum designer.
type StructureEntry struct {
	UnitID   string         `json:"unit_id" validate:"required,uuid4"`
	Kind     MembershipKind `json:"kind" validate:"required,oneof=CORE ELECTIVE"`
	Position int            `json:"position"`
}

// CurriculumStructure is the ordered read model of a curriculum.
type CurriculumStructure struct {
	Curriculum Curriculum         `json:"curriculum"`
	Core       []MembershipDetail `json:"core"`
	Electives  []MembershipDetail `json:"electives"`
}
