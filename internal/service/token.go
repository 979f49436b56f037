package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ignatzorin/orderdesk-backend/internal/models"
)

// TokenManager проверяет access токены, выпущенные сервисом аутентификации.
// Выпуск нужен для служебных вызовов и тестов.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// GenerateAccess выпускает access токен для actor.
func (m *TokenManager) GenerateAccess(actor models.Actor) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  actor.UserID.String(),
		"role": actor.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(m.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseAccess извлекает userID и роль из access токена.
func (m *TokenManager) ParseAccess(token string) (models.Actor, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, err
	}
	if !parsed.Valid {
		return models.Actor{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, jwt.ErrTokenInvalidClaims
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return models.Actor{}, jwt.ErrTokenInvalidClaims
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return models.Actor{}, err
	}

	role, _ := claims["role"].(string)
	if _, ok := models.ValidRoles[role]; !ok {
		return models.Actor{}, errors.New("token: неизвестная роль")
	}

	return models.Actor{UserID: userID, Role: role}, nil
}
