package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Роли пользователей платформы
const (
	RoleSuperAdmin = "super_admin" // кросс-тенантный администратор
	RoleAdmin      = "admin"       // администратор своего тенанта
	RoleHRManager  = "hr_manager"
	RoleEmployee   = "employee"
)

type CustomClaims struct {
	UserID   string          `json:"user_id"`
	TenantID string          `json:"tenant_id"`
	Role     string          `json:"role"`
	Scopes   map[string]bool `json:"scopes"`
	jwt.RegisteredClaims
}

// IsAdmin - допуск к привилегированным функциям
func (c *CustomClaims) IsAdmin() bool {
	return c != nil && (c.Role == RoleAdmin || c.Role == RoleSuperAdmin)
}

// CanActOn: super_admin работает с любым тенантом, admin - только со своим
func (c *CustomClaims) CanActOn(tenantID string) bool {
	if c == nil {
		return false
	}
	return c.Role == RoleSuperAdmin || c.TenantID == tenantID
}

// Secure Token Issuing
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
