package postgres

/*
Хранение AI-политик тенантов. Политика читается на каждый запрос:
шлюз не держит её в памяти, поэтому изменения из консоли видны сразу.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

// GetTenantPolicy возвращает nil, nil если тенант политику не настраивал
func (r *Repo) GetTenantPolicy(ctx context.Context, tenantID string) (*domain.TenantAIPolicyDoc, error) {
	query := `SELECT default_model, allow_models FROM tenant_ai_policies WHERE tenant_id = $1`

	d := &domain.TenantAIPolicyDoc{}
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&d.DefaultModel, &d.AllowModels)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get tenant policy: %w", err)
	}
	return d, nil
}

func (r *Repo) UpsertTenantPolicy(ctx context.Context, tenantID string, d domain.TenantAIPolicyDoc) error {
	query := `
		INSERT INTO tenant_ai_policies (tenant_id, default_model, allow_models, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id) DO UPDATE
		SET default_model = EXCLUDED.default_model, allow_models = EXCLUDED.allow_models, updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, tenantID, d.DefaultModel, d.AllowModels); err != nil {
		return fmt.Errorf("postgres: failed to upsert tenant policy: %w", err)
	}
	return nil
}
