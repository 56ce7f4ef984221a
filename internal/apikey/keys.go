package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

const (
	KeyPrefix    = "aqlhr_"
	secretBytes  = 32
	displayChars = 12 // "aqlhr_" + 6 hex символов
)

// HashKey - в базе хранится только SHA-256 от ключа
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Generate выпускает новый ключ. Сырое значение возвращается один раз и нигде не сохраняется.
func Generate(tenantID, name string, scopes []string, ttl time.Duration, now time.Time) (domain.IssuedKey, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return domain.IssuedKey{}, fmt.Errorf("apikey: failed to read random bytes: %w", err)
	}
	raw := KeyPrefix + hex.EncodeToString(buf)

	if scopes == nil {
		scopes = []string{}
	}
	rec := &domain.APIKeyRecord{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Prefix:   raw[:displayChars],
		KeyHash:  HashKey(raw),
		Scopes:   scopes,
		IssuedAt: now.UTC(),
	}
	if ttl > 0 {
		exp := now.Add(ttl).UTC()
		rec.ExpiresAt = &exp
	}

	return domain.IssuedKey{Record: rec, RawKey: raw}, nil
}
