package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"spendflow/internal/model"
	"spendflow/pkg/apperr"
)

func seedAccount(repo *fakeUserRepo, email, password, role, status string) *model.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := &model.User{Name: "Seeded", Email: email, Password: string(hash), Role: role, Status: status}
	repo.add(u)
	return u
}

func TestRegisterDefaultsToUserRole(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo)

	resp, err := svc.Register(context.Background(), RegisterUserRequest{
		Name: "Dana", Email: "dana@example.com", Password: "hunter22",
	})
	require.NoError(t, err)
	require.Equal(t, model.RoleUser, resp.Role)
	require.Equal(t, model.UserStatusActive, resp.Status)

	stored := repo.byEmail["dana@example.com"]
	require.NotNil(t, stored)
	// Password must be stored hashed, never verbatim.
	require.NotEqual(t, "hunter22", stored.Password)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("hunter22")))
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(newFakeUserRepo())

	_, err := svc.Register(context.Background(), RegisterUserRequest{
		Name: "Dana", Email: "dana@example.com", Password: "hunter22", Role: "SUPERVISOR",
	})
	require.Equal(t, http.StatusUnprocessableEntity, apperr.StatusOf(err))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	seedAccount(repo, "dana@example.com", "pw123456", model.RoleUser, model.UserStatusActive)
	svc := NewUserService(repo)

	_, err := svc.Register(context.Background(), RegisterUserRequest{
		Name: "Other", Email: "dana@example.com", Password: "pw123456",
	})
	require.Equal(t, http.StatusUnprocessableEntity, apperr.StatusOf(err))
}

func TestLoginIssuesTokenPair(t *testing.T) {
	repo := newFakeUserRepo()
	seedAccount(repo, "dana@example.com", "hunter22", model.RoleAccountant, model.UserStatusActive)
	svc := NewUserService(repo)

	pair, err := svc.Login(context.Background(), LoginUserRequest{Email: "dana@example.com", Password: "hunter22"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, model.RoleAccountant, pair.User.Role)
	require.Contains(t, repo.tokens, pair.RefreshToken)
}

func TestLoginRejectsBadCredentialsAndInactive(t *testing.T) {
	repo := newFakeUserRepo()
	seedAccount(repo, "dana@example.com", "hunter22", model.RoleUser, model.UserStatusActive)
	seedAccount(repo, "gone@example.com", "hunter22", model.RoleUser, model.UserStatusInactive)
	svc := NewUserService(repo)

	_, err := svc.Login(context.Background(), LoginUserRequest{Email: "dana@example.com", Password: "wrong"})
	require.Equal(t, http.StatusForbidden, apperr.StatusOf(err))

	_, err = svc.Login(context.Background(), LoginUserRequest{Email: "nobody@example.com", Password: "hunter22"})
	require.Equal(t, http.StatusForbidden, apperr.StatusOf(err))

	_, err = svc.Login(context.Background(), LoginUserRequest{Email: "gone@example.com", Password: "hunter22"})
	require.Equal(t, http.StatusForbidden, apperr.StatusOf(err))
}

func TestRefreshRotatesToken(t *testing.T) {
	repo := newFakeUserRepo()
	seedAccount(repo, "dana@example.com", "hunter22", model.RoleUser, model.UserStatusActive)
	svc := NewUserService(repo)

	pair, err := svc.Login(context.Background(), LoginUserRequest{Email: "dana@example.com", Password: "hunter22"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	// The old token is single use.
	require.NotContains(t, repo.tokens, pair.RefreshToken)
	require.Contains(t, repo.tokens, rotated.RefreshToken)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	repo := newFakeUserRepo()
	user := seedAccount(repo, "dana@example.com", "hunter22", model.RoleUser, model.UserStatusActive)
	repo.tokens["stale"] = &model.RefreshToken{
		UserID: user.ID, Token: "stale", ExpiresAt: time.Now().Add(-time.Hour),
	}
	svc := NewUserService(repo)

	_, err := svc.Refresh(context.Background(), "stale")
	require.Equal(t, http.StatusForbidden, apperr.StatusOf(err))
}

func TestLogoutDeletesToken(t *testing.T) {
	repo := newFakeUserRepo()
	repo.tokens["tok"] = &model.RefreshToken{Token: "tok"}
	svc := NewUserService(repo)

	require.NoError(t, svc.Logout(context.Background(), "tok"))
	require.Equal(t, []string{"tok"}, repo.deletedTokens)

	// A missing token is a no-op, not an error.
	require.NoError(t, svc.Logout(context.Background(), ""))
}
