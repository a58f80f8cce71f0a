package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleMentor     UserRole = "MENTOR"
	RoleStudent    UserRole = "STUDENT"
)

// roleRanks orders roles from least to most privileged.
var roleRanks = map[UserRole]int{
	RoleStudent:    1,
	RoleMentor:     2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// RoleRank returns the numeric rank of a role; unknown roles rank 0.
func RoleRank(role UserRole) int {
	return roleRanks[role]
}

// HasRank reports whether role is at least as privileged as required.
func HasRank(role, required UserRole) bool {
	return RoleRank(role) >= RoleRank(required)
}

// Division scopes units, curricula and learners.
type Division string

const (
	DivisionEngineering Division = "ENGINEERING"
	DivisionDesign      Division = "DESIGN"
	DivisionOperations  Division = "OPERATIONS"
)

// ValidDivision reports whether the value is a known division.
func ValidDivision(d Division) bool {
	switch d {
	case DivisionEngineering, DivisionDesign, DivisionOperations:
		return true
	}
	return false
}

// CurriculumState is the learner's derived-but-persisted aggregate over
// the Core members of their selected curriculum.
type CurriculumState string

const (
	CurriculumInProgress CurriculumState = "IN_PROGRESS"
	CurriculumCompleted  CurriculumState = "COMPLETED"
)

// User represents an application user stored in the users table.
type User struct {
	ID                   string          `db:"id" json:"id"`
	Email                string          `db:"email" json:"email"`
	PasswordHash         string          `db:"password_hash" json:"-"`
	FullName             string          `db:"full_name" json:"full_name"`
	Role                 UserRole        `db:"role" json:"role"`
	Division             Division        `db:"division" json:"division"`
	Active               bool            `db:"active" json:"active"`
	SelectedCurriculumID *string         `db:"selected_curriculum_id" json:"selected_curriculum_id,omitempty"`
	CurriculumState      CurriculumState `db:"curriculum_state" json:"curriculum_state"`
	CurriculumSwitched   bool            `db:"curriculum_switched" json:"-"`
	LastLogin            *time.Time      `db:"last_login" json:"last_login,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Division  *Division
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
