package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ignatzorin/bounty-backend/internal/models"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var errWrongTokenType = errors.New("token: неверный тип токена")

// TokenPair хранит пару access/refresh токенов.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// Claims — содержимое токенов. Роль есть только в access токене.
type Claims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager отвечает за выпуск и проверку JWT.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// GeneratePair выпускает новую пару токенов.
func (m *TokenManager) GeneratePair(user *models.User) (*TokenPair, error) {
	now := m.now()

	access, err := m.sign(Claims{
		Role: user.Role,
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}, m.accessSecret)
	if err != nil {
		return nil, err
	}

	refresh, err := m.sign(Claims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
	}, m.refreshSecret)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    m.accessTTL,
	}, nil
}

// ParseRefresh проверяет refresh токен и возвращает ID пользователя.
func (m *TokenManager) ParseRefresh(token string) (uuid.UUID, error) {
	claims, err := m.parse(token, m.refreshSecret, tokenTypeRefresh)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.Subject)
}

// ParseAccess извлекает userID и роль из access токена.
func (m *TokenManager) ParseAccess(token string) (uuid.UUID, string, error) {
	claims, err := m.parse(token, m.accessSecret, tokenTypeAccess)
	if err != nil {
		return uuid.Nil, "", err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return userID, claims.Role, nil
}

func (m *TokenManager) sign(claims Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *TokenManager) parse(token string, secret []byte, typ string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	// Refresh и access подписаны разными секретами, но тип проверяем явно.
	if claims.Type != typ {
		return nil, errWrongTokenType
	}
	return claims, nil
}
