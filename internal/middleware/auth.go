// Package middleware содержит HTTP middleware приложения.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"example.com/shop-backend/pkg/jwt"
	"example.com/shop-backend/pkg/logger"
)

// Ключи контекста Gin, устанавливаемые после аутентификации.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// AuthMiddleware проверяет JWT токены.
// Токен валидируется локально: подпись, срок действия, издатель.
type AuthMiddleware struct {
	manager *jwt.Manager
}

// NewAuthMiddleware создаёт middleware аутентификации.
func NewAuthMiddleware(manager *jwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{manager: manager}
}

// Handle возвращает Gin handler function для middleware.
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		token := extractBearerToken(c)
		if token == "" {
			log.Debug().Msg("Отсутствует токен авторизации")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Требуется авторизация",
			})
			return
		}

		claims, err := m.manager.Validate(token)
		if err != nil {
			log.Warn().Err(err).Msg("Ошибка валидации токена")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Невалидный токен",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)

		log.Debug().
			Str("user_id", claims.UserID).
			Str("role", claims.Role).
			Msg("Пользователь аутентифицирован")

		c.Next()
	}
}

// RequireAdmin возвращает middleware, пропускающий только администраторов.
// Должен стоять после Handle.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != jwt.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Требуются права администратора",
			})
			return
		}
		c.Next()
	}
}

// extractBearerToken извлекает токен из Authorization header.
// Формат: "Bearer <token>", префикс регистронезависимый.
func extractBearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
