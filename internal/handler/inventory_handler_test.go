package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"spendflow/internal/middleware"
	"spendflow/internal/model"
	"spendflow/internal/service"
	"spendflow/pkg/apperr"
)

type stubUserService struct {
	service.UserService

	users map[uuid.UUID]*model.User
}

func (s *stubUserService) CurrentUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user := s.users[id]
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	return user, nil
}

type stubInventoryService struct {
	service.InventoryService

	created int
}

func (s *stubInventoryService) CreateItem(ctx context.Context, actor *model.User, req service.CreateInventoryItemRequest) (*model.InventoryItem, error) {
	s.created++
	return &model.InventoryItem{ID: 1, Code: "INV-2025-0001", Name: req.Name, Category: req.Category, IsActive: true}, nil
}

func bearerFor(t *testing.T, user *model.User) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(middleware.GetJWTSecret())
	require.NoError(t, err)
	return "Bearer " + signed
}

// The management routes belong to the roles that run stock, not the ones
// that watch the money.
func TestInventoryManagementRoleGate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users := &stubUserService{users: map[uuid.UUID]*model.User{}}
	inventory := &stubInventoryService{}
	router := gin.New()
	NewInventoryHandler(inventory, users).RegisterRoutes(router.Group(""))

	post := func(user *model.User) int {
		users.users[user.ID] = user
		body := `{"name":"Tripod","category":"equipment","quantity":3}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/inventory", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", bearerFor(t, user))
		router.ServeHTTP(w, req)
		return w.Code
	}

	active := func(role string) *model.User {
		return &model.User{ID: uuid.New(), Role: role, Status: model.UserStatusActive}
	}

	require.Equal(t, http.StatusCreated, post(active(model.RoleDirectManager)))
	require.Equal(t, http.StatusCreated, post(active(model.RoleFinalManager)))
	require.Equal(t, http.StatusCreated, post(active(model.RoleAdmin)))
	require.Equal(t, http.StatusForbidden, post(active(model.RoleAccountant)))
	require.Equal(t, http.StatusForbidden, post(active(model.RoleUser)))
	require.Equal(t, 3, inventory.created)
}
