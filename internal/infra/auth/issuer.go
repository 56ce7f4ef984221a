package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials не уточняет, что именно неверно (логин или пароль)
var ErrInvalidCredentials = errors.New("invalid credentials")

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Issuer выпускает токены консоли. Единственный держатель закрытого ключа.
type Issuer struct {
	users      UserStore
	privateKey *rsa.PrivateKey
	issuer     string
	ttl        time.Duration
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewIssuer(users UserStore, privateKey *rsa.PrivateKey, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{users: users, privateKey: privateKey, issuer: issuer, ttl: ttl, now: time.Now}
}

func (s *Issuer) GenerateToken(ctx context.Context, email, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды - Postgres)
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("auth: lookup user: %w", err)
	}
	if user == nil {
		// Сравнение с фиктивным хешем выравнивает время ответа для несуществующих email
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return nil, ErrInvalidCredentials
	}

	// 2. Проверка пароля
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. Claims: тенант и роль определяют доступ к админ-функциям
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &domain.CustomClaims{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Role:     user.Role,
		Scopes:   user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// 4. Подпись закрытым ключом (RS256)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

func (s *Issuer) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("aqlhr-dummy-password"), bcrypt.DefaultCost)
	})
	return s.dummyHash
}
