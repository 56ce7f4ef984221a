package domain

import "time"

// APIKeyRecord - выпущенный тенанту ключ. Сам ключ не хранится, только SHA-256 хеш
// и короткий префикс для отображения в консоли. Шлюз ключи не удаляет: отзыв = флаг.
type APIKeyRecord struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"`
	Scopes     []string   `json:"scopes"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Revoked    bool       `json:"revoked"`
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Expired: ключ без срока действия не истекает
func (k *APIKeyRecord) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// KeyValidation - результат проверки ключа. Невалидный ключ - это не ошибка.
type KeyValidation struct {
	KeyID    string   `json:"key_id,omitempty"`
	TenantID string   `json:"tenant_id,omitempty"`
	Scopes   []string `json:"scopes"`
	Valid    bool     `json:"valid"`
}

// IssuedKey возвращается ровно один раз при создании ключа
type IssuedKey struct {
	Record *APIKeyRecord `json:"record"`
	RawKey string        `json:"api_key"`
}
