// Package policy загружает AI-политику тенанта и поддерживает её инвариант.
package policy

import (
	"context"
	"fmt"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"go.uber.org/zap"
)

// Store - источник политик. nil, nil = тенант политику не настраивал.
type Store interface {
	GetTenantPolicy(ctx context.Context, tenantID string) (*domain.TenantAIPolicyDoc, error)
}

// Resolver не кэширует политики: каждая резолюция читает хранилище,
// поэтому изменения из консоли применяются со следующего запроса.
type Resolver struct {
	store    Store
	defaults domain.TenantAIPolicyDoc
	auditor  audit.Logger
	logger   *zap.Logger
}

func NewResolver(store Store, defaults domain.TenantAIPolicyDoc, auditor audit.Logger, logger *zap.Logger) (*Resolver, error) {
	p, err := domain.ParsePolicyDoc("", defaults)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid default policy: %w", err)
	}
	if !p.Consistent() {
		return nil, fmt.Errorf("policy: default model %s is not in the default allow list", p.DefaultModel)
	}
	return &Resolver{
		store:    store,
		defaults: defaults,
		auditor:  auditor,
		logger:   logger.Named("policy"),
	}, nil
}

// Default - политика для тенантов без собственной
func (r *Resolver) Default(tenantID string) domain.TenantAIPolicy {
	p, _ := domain.ParsePolicyDoc(tenantID, r.defaults) // проверено в конструкторе
	return p
}

// Resolve возвращает согласованную политику тенанта. Несогласованная или битая
// сохраненная политика исправляется с одной записью аудита уровня warning, но не ошибкой.
// Ошибка - только сбой хранилища.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (domain.TenantAIPolicy, error) {
	doc, err := r.store.GetTenantPolicy(ctx, tenantID)
	if err != nil {
		return domain.TenantAIPolicy{}, domain.Infra(err)
	}
	if doc == nil {
		return r.Default(tenantID), nil
	}

	p, err := domain.ParsePolicyDoc(tenantID, *doc)
	if err != nil {
		fallback := r.Default(tenantID)
		r.warn(ctx, tenantID, "ai_policy_invalid_replaced", *doc, fallback.Doc(), err.Error())
		return fallback, nil
	}

	if !p.Consistent() {
		clamped := p
		clamped.DefaultModel = p.AllowModels[0]
		r.warn(ctx, tenantID, "ai_policy_default_clamped", *doc, clamped.Doc(),
			fmt.Sprintf("default model %s is not in allow list", p.DefaultModel))
		return clamped, nil
	}

	return p, nil
}

func (r *Resolver) warn(ctx context.Context, tenantID, action string, before, after domain.TenantAIPolicyDoc, reason string) {
	r.logger.Warn("tenant ai policy corrected",
		zap.String("tenant_id", tenantID),
		zap.String("action", action),
		zap.String("reason", reason),
	)

	r.auditor.Log(audit.Entry{
		TraceID:      audit.TraceID(ctx),
		TenantID:     tenantID,
		ActorID:      "system",
		ActorRole:    "system",
		Action:       action,
		ResourceType: "tenant_ai_policy",
		ResourceID:   tenantID,
		Before:       docMap(before),
		After:        docMap(after),
		Severity:     audit.SeverityWarning,
		Category:     audit.CategoryAIPolicy,
	})
}

func docMap(d domain.TenantAIPolicyDoc) map[string]interface{} {
	return map[string]interface{}{
		"default_model": d.DefaultModel,
		"allow_models":  d.AllowModels,
	}
}
