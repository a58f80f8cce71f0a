package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type fakeAuthRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	lastLogin     map[string]time.Time
	passwords     map[string]string
	revokedAll    []string
}

func newFakeAuthRepo(users ...*models.User) *fakeAuthRepo {
	repo := &fakeAuthRepo{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
		lastLogin:     make(map[string]time.Time),
		passwords:     make(map[string]string),
	}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	f.lastLogin[id] = ts
	return nil
}

func (f *fakeAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	f.passwords[id] = passwordHash
	if u, ok := f.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (f *fakeAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	f.refreshTokens[token.Token] = token
	return nil
}

func (f *fakeAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := f.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range f.refreshTokens {
		if t.ID == id {
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (f *fakeAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	f.revokedAll = append(f.revokedAll, userID)
	now := time.Now().UTC()
	for _, t := range f.refreshTokens {
		if t.UserID == userID {
			t.RevokedAt = &now
		}
	}
	return nil
}

func authFixture(t *testing.T) (*AuthService, *fakeAuthRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := newFakeAuthRepo(&models.User{
		ID: "user-1", Email: "dev@example.com", PasswordHash: string(hash),
		FullName: "Dev One", Role: models.RoleStudent,
		Division: models.DivisionEngineering, Active: true,
	})
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "lms-core-api",
	})
	return svc, repo
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, repo := authFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Len(t, repo.refreshTokens, 1)
	assert.Contains(t, repo.lastLogin, "user-1")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, models.DivisionEngineering, claims.Division)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmailMatchesWrongPassword(t *testing.T) {
	svc, _ := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	require.Error(t, err)
	// Unknown accounts and bad passwords share the same error.
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, repo := authFixture(t)
	repo.users["user-1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, repo := authFixture(t)
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@example.com", Password: "secret123"})
	require.NoError(t, err)

	resp, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, resp.RefreshToken)

	// The old token is revoked by rotation and cannot be replayed.
	old := repo.refreshTokens[login.RefreshToken]
	require.NotNil(t, old.RevokedAt)
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	svc, repo := authFixture(t)
	repo.refreshTokens["stale"] = &models.RefreshToken{
		ID: "rt-1", UserID: "user-1", Token: "stale",
		ExpiresAt: time.Now().Add(-time.Hour), CreatedAt: time.Now().Add(-25 * time.Hour),
	}

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	svc, _ := authFixture(t)

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "never-issued"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesAllTokens(t *testing.T) {
	svc, repo := authFixture(t)
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "dev@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "user-1"))
	assert.Equal(t, []string{"user-1"}, repo.revokedAll)
	require.NotNil(t, repo.refreshTokens[login.RefreshToken].RevokedAt)
}

func TestChangePasswordVerifiesOldAndRevokesSessions(t *testing.T) {
	svc, repo := authFixture(t)

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "wrong", NewPassword: "brand-new-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	err = svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "secret123", NewPassword: "brand-new-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, repo.revokedAll)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "dev@example.com", Password: "brand-new-pass"})
	require.NoError(t, err)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	svc, _ := authFixture(t)
	other := NewAuthService(newFakeAuthRepo(), validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Minute,
		Issuer:            "lms-core-api",
	})
	user := &models.User{ID: "user-1", Email: "dev@example.com", Role: models.RoleStudent, Division: models.DivisionEngineering}
	token, _, err := other.generateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
