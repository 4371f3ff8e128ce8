package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opencourse/lms-api/internal/models"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
)

type stubUserRepo struct {
	user       *models.User
	userErr    error
	refresh    *models.RefreshToken
	refreshErr error
	stored     *models.RefreshToken
	revokedID  string
	revokedAll string
}

func (s *stubUserRepo) FindByEmail(_ context.Context, _ string) (*models.User, error) {
	return s.user, s.userErr
}

func (s *stubUserRepo) FindByID(_ context.Context, _ string) (*models.User, error) {
	return s.user, s.userErr
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *stubUserRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.stored = token
	return nil
}

func (s *stubUserRepo) FindRefreshToken(_ context.Context, _ string) (*models.RefreshToken, error) {
	return s.refresh, s.refreshErr
}

func (s *stubUserRepo) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	s.revokedID = id
	return nil
}

func (s *stubUserRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	s.revokedAll = userID
	return nil
}

func activeUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "alex@example.com",
		PasswordHash: string(hash),
		FullName:     "Alex Doe",
		Role:         models.RoleStudent,
		Active:       true,
	}
}

func TestLoginIssuesValidTokenPair(t *testing.T) {
	repo := &stubUserRepo{user: activeUser(t, "s3cret")}
	svc := NewAuthService(repo, "test-secret", time.Hour, 24*time.Hour, nil, nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	require.NotNil(t, repo.stored)
	assert.Equal(t, resp.RefreshToken, repo.stored.Token)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, models.Actor{UserID: "user-1", Role: models.RoleStudent}, claims.Actor())
}

func TestLoginWrongPasswordIsRejected(t *testing.T) {
	repo := &stubUserRepo{user: activeUser(t, "s3cret")}
	svc := NewAuthService(repo, "test-secret", time.Hour, 24*time.Hour, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmailIsRejected(t *testing.T) {
	repo := &stubUserRepo{userErr: sql.ErrNoRows}
	svc := NewAuthService(repo, "test-secret", time.Hour, 24*time.Hour, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccountIsRejected(t *testing.T) {
	user := activeUser(t, "s3cret")
	user.Active = false
	svc := NewAuthService(&stubUserRepo{user: user}, "test-secret", time.Hour, 24*time.Hour, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	repo := &stubUserRepo{user: activeUser(t, "s3cret")}
	issuer := NewAuthService(repo, "secret-a", time.Hour, 24*time.Hour, nil, nil)
	verifier := NewAuthService(repo, "secret-b", time.Hour, 24*time.Hour, nil, nil)

	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "s3cret"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	repo := &stubUserRepo{
		user: activeUser(t, "s3cret"),
		refresh: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    "user-1",
			Token:     "old-token",
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	svc := NewAuthService(repo, "test-secret", time.Hour, 24*time.Hour, nil, nil)

	resp, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.Equal(t, "rt-1", repo.revokedID, "the presented token must be revoked")
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestRefreshExpiredTokenIsRejected(t *testing.T) {
	repo := &stubUserRepo{
		user: activeUser(t, "s3cret"),
		refresh: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    "user-1",
			Token:     "old-token",
			ExpiresAt: time.Now().Add(-time.Minute),
		},
	}
	svc := NewAuthService(repo, "test-secret", time.Hour, 24*time.Hour, nil, nil)

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesAllSessions(t *testing.T) {
	repo := &stubUserRepo{}
	svc := NewAuthService(repo, "test-secret", time.Hour, 24*time.Hour, nil, nil)

	require.NoError(t, svc.Logout(context.Background(), models.Actor{UserID: "user-1"}))
	assert.Equal(t, "user-1", repo.revokedAll)
}
