// Package middleware содержит unit тесты middleware аутентификации.
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/shop-backend/pkg/jwt"
)

func newTestManager(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{Secret: "test-secret", Issuer: "shop-backend"})
	require.NoError(t, err)
	return m
}

// newTestRouter собирает роутер с защищённым и админским маршрутами.
func newTestRouter(m *jwt.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := NewAuthMiddleware(m)

	r.GET("/protected", auth.Handle(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(ContextUserID)})
	})
	r.GET("/admin", auth.Handle(), auth.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

// TestAuthMiddleware_ValidToken тестирует успешную аутентификацию.
func TestAuthMiddleware_ValidToken(t *testing.T) {
	m := newTestManager(t)
	router := newTestRouter(m)

	token, err := m.Generate("user-456", jwt.RoleUser, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-456")
}

// TestAuthMiddleware_MissingToken тестирует запрос без токена.
func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := newTestRouter(newTestManager(t))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestAuthMiddleware_InvalidToken тестирует мусорный токен.
func TestAuthMiddleware_InvalidToken(t *testing.T) {
	router := newTestRouter(newTestManager(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer не-токен")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRequireAdmin тестирует доступ к админскому маршруту.
func TestRequireAdmin(t *testing.T) {
	m := newTestManager(t)
	router := newTestRouter(m)

	userToken, err := m.Generate("user-456", jwt.RoleUser, time.Hour)
	require.NoError(t, err)
	adminToken, err := m.Generate("admin-1", jwt.RoleAdmin, time.Hour)
	require.NoError(t, err)

	// Обычный пользователь получает 403
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Администратор проходит
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestExtractBearerToken тестирует разбор Authorization header.
func TestExtractBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"нормальный Bearer", "Bearer abc123", "abc123"},
		{"регистронезависимый префикс", "bearer abc123", "abc123"},
		{"пустой header", "", ""},
		{"без префикса", "abc123", ""},
		{"лишние пробелы", "Bearer   abc123  ", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractBearerToken(c))
		})
	}
}
