// Package jwt предоставляет валидацию JWT токенов (HS256).
// Выдачей токенов занимается внешний сервис аутентификации; backend
// только проверяет подпись, срок действия и издателя.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Роли пользователей в claims.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Ошибки валидации токенов.
var (
	// ErrInvalidToken возвращается при невалидной подписи или структуре токена.
	ErrInvalidToken = errors.New("невалидный токен")

	// ErrTokenExpired возвращается при истёкшем токене.
	ErrTokenExpired = errors.New("токен истёк")
)

// Claims — содержимое JWT токена.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin возвращает true для токена с административной ролью.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Config содержит настройки валидации токенов.
type Config struct {
	Secret string // Общий секрет HS256
	Issuer string // Ожидаемый издатель
}

// Manager проверяет и (для тестов и локальной разработки) выдаёт токены.
type Manager struct {
	secret []byte
	issuer string
}

// NewManager создаёт новый менеджер токенов.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("не задан секрет JWT")
	}
	return &Manager{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}, nil
}

// Generate выдаёт токен с указанными user_id и ролью.
// Используется в тестах и для локальной разработки.
func (m *Manager) Generate(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

// Validate проверяет подпись, срок действия и издателя токена.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		// Принимаем только HS256 — защита от алгоритмической подмены.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
