package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/qms-manual-api/internal/dto"
	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/pkg/config"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
)

type stubUserStore struct {
	user             *models.User
	findErr          error
	lastLoginUpdated bool
}

func (s *stubUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.user == nil || s.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *stubUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.user, nil
}

func (s *stubUserStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLoginUpdated = true
	return nil
}

func testUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "u1",
		Email:        "editor@example.com",
		PasswordHash: string(hash),
		FullName:     "Edith Editor",
		Role:         models.RoleEditor,
		Active:       true,
	}
}

func newAuthService(users *stubUserStore, audit auditSink) *AuthService {
	tokens := NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour})
	return NewAuthService(users, tokens, audit, nil, nil)
}

func TestLoginSuccess(t *testing.T) {
	users := &stubUserStore{user: testUser(t, "s3cret")}
	audit := &stubAuditSink{}
	svc := newAuthService(users, audit)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Email: "editor@example.com", Password: "s3cret"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, models.RoleEditor, resp.User.Role)
	assert.True(t, users.lastLoginUpdated)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newAuthService(&stubUserStore{user: testUser(t, "s3cret")}, nil)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "editor@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newAuthService(&stubUserStore{}, nil)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "ghost@example.com", Password: "whatever"})
	require.Error(t, err)
	// Unknown email and wrong password are indistinguishable to the caller.
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := testUser(t, "s3cret")
	user.Active = false
	svc := newAuthService(&stubUserStore{user: user}, nil)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "editor@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	svc := newAuthService(&stubUserStore{}, nil)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "not-an-email", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMeResolvesActor(t *testing.T) {
	users := &stubUserStore{user: testUser(t, "s3cret")}
	svc := newAuthService(users, nil)

	user, err := svc.Me(context.Background(), editorClaims("u1"))
	require.NoError(t, err)
	assert.Equal(t, "editor@example.com", user.Email)

	_, err = svc.Me(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestIssuedTokenRoundTrips(t *testing.T) {
	tokens := NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour})

	token, err := tokens.Issue("u1", models.RoleAdmin, "admin@example.com", "Ada Admin")
	require.NoError(t, err)

	claims, err := tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}
