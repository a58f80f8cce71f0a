package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// UserRepository handles persistence of users and refresh tokens.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, full_name, role, division, active,
        selected_curriculum_id, curriculum_state, curriculum_switched, last_login, created_at, updated_at`

// FindByID returns a user by its ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.CurriculumState == "" {
		user.CurriculumState = models.CurriculumInProgress
	}
	const query = `INSERT INTO users (id, email, password_hash, full_name, role, division, active,
        selected_curriculum_id, curriculum_state, curriculum_switched, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :full_name, :role, :division, :active,
        :selected_curriculum_id, :curriculum_state, :curriculum_switched, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the last successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetSelectedCurriculum records the learner's curriculum choice and whether
// the one-time switch has been consumed.
func (r *UserRepository) SetSelectedCurriculum(ctx context.Context, id, curriculumID string, switched bool) error {
	const query = `UPDATE users SET selected_curriculum_id = $2, curriculum_switched = $3,
        curriculum_state = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, curriculumID, switched, models.CurriculumInProgress, time.Now().UTC()); err != nil {
		return fmt.Errorf("set selected curriculum: %w", err)
	}
	return nil
}

// UpdateCurriculumState persists the recomputed aggregate flag.
func (r *UserRepository) UpdateCurriculumState(ctx context.Context, id string, state models.CurriculumState) error {
	const query = `UPDATE users SET curriculum_state = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, state, time.Now().UTC()); err != nil {
		return fmt.Errorf("update curriculum state: %w", err)
	}
	return nil
}

// ListIDsBySelectedCurriculum returns learners whose gating depends on the
// given curriculum, used to fan out aggregate recomputation after
// structure mutations.
func (r *UserRepository) ListIDsBySelectedCurriculum(ctx context.Context, curriculumID string) ([]string, error) {
	const query = `SELECT id FROM users WHERE selected_curriculum_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list learners by curriculum: %w", err)
	}
	return ids, nil
}

// CreateRefreshToken persists a refresh token.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at)
        VALUES (:id, :user_id, :token, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token row by its opaque value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, revoked_at, created_at FROM refresh_tokens WHERE token = $1`
	var row models.RefreshToken
	if err := r.db.GetContext(ctx, &row, query, token); err != nil {
		return nil, err
	}
	return &row, nil
}

// RevokeRefreshToken marks a token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live token of a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
