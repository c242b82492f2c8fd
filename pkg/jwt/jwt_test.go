// Package jwt содержит unit тесты валидации токенов.
package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Secret: "test-secret-32-bytes-minimum!!!!", Issuer: "shop-backend"})
	require.NoError(t, err)
	return m
}

// TestManager_GenerateValidate тестирует полный цикл выдачи и проверки токена.
func TestManager_GenerateValidate(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Generate("user-123", RoleAdmin, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.True(t, claims.IsAdmin())
}

// TestManager_Validate_Expired тестирует отклонение истёкшего токена.
func TestManager_Validate_Expired(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Generate("user-123", RoleUser, -time.Minute)
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

// TestManager_Validate_WrongSecret тестирует отклонение токена с чужой подписью.
func TestManager_Validate_WrongSecret(t *testing.T) {
	m := newTestManager(t)

	other, err := NewManager(Config{Secret: "another-secret-entirely-here!!!!", Issuer: "shop-backend"})
	require.NoError(t, err)

	token, err := other.Generate("user-123", RoleUser, time.Hour)
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// TestManager_Validate_WrongIssuer тестирует отклонение токена с другим издателем.
func TestManager_Validate_WrongIssuer(t *testing.T) {
	other, err := NewManager(Config{Secret: "test-secret-32-bytes-minimum!!!!", Issuer: "someone-else"})
	require.NoError(t, err)

	token, err := other.Generate("user-123", RoleUser, time.Hour)
	require.NoError(t, err)

	m := newTestManager(t)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// TestNewManager_NoSecret тестирует обязательность секрета.
func TestNewManager_NoSecret(t *testing.T) {
	_, err := NewManager(Config{Issuer: "shop-backend"})
	assert.Error(t, err)
}
