package postgres

import (
	"context"
	"fmt"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

const apiKeyColumns = `id, tenant_id, name, prefix, key_hash, scopes, issued_at, expires_at, revoked, usage_count, last_used_at`

// FindAPIKeysByHash возвращает не более двух записей с данным хешем.
// Две записи - признак неоднозначного ключа: вызывающий обязан его отклонить.
func (r *Repo) FindAPIKeysByHash(ctx context.Context, keyHash string) ([]domain.APIKeyRecord, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1 LIMIT 2`

	rows, err := r.db.Query(ctx, query, keyHash)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to find api key: %w", err)
	}
	defer rows.Close()

	var out []domain.APIKeyRecord
	for rows.Next() {
		var k domain.APIKeyRecord
		if err := rows.Scan(
			&k.ID, &k.TenantID, &k.Name, &k.Prefix, &k.KeyHash, &k.Scopes,
			&k.IssuedAt, &k.ExpiresAt, &k.Revoked, &k.UsageCount, &k.LastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan api key: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate api keys: %w", err)
	}
	return out, nil
}

// IncrementAPIKeyUsage - атомарный инкремент на стороне БД, без read-modify-write
func (r *Repo) IncrementAPIKeyUsage(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, keyID); err != nil {
		return fmt.Errorf("postgres: failed to increment api key usage: %w", err)
	}
	return nil
}

func (r *Repo) CreateAPIKey(ctx context.Context, k *domain.APIKeyRecord) error {
	query := `
		INSERT INTO api_keys (id, tenant_id, name, prefix, key_hash, scopes, issued_at, expires_at, revoked, usage_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, 0)`

	_, err := r.db.Exec(ctx, query, k.ID, k.TenantID, k.Name, k.Prefix, k.KeyHash, k.Scopes, k.IssuedAt, k.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create api key: %w", err)
	}
	return nil
}

// RevokeAPIKey только переворачивает флаг. Возвращает false, если ключ не найден в тенанте.
func (r *Repo) RevokeAPIKey(ctx context.Context, tenantID, keyID string) (bool, error) {
	query := `UPDATE api_keys SET revoked = TRUE WHERE id = $1 AND tenant_id = $2`

	ct, err := r.db.Exec(ctx, query, keyID, tenantID)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to revoke api key: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
