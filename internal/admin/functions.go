package admin

import (
	"context"
	"time"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/apikey"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

// Имена функций, доступных через AdminActionWrapper
const (
	FnCreateAPIKey    = "create_api_key"
	FnRevokeAPIKey    = "revoke_api_key"
	FnGetTenantPolicy = "get_tenant_ai_policy"
	FnSetTenantPolicy = "set_tenant_ai_policy"
	FnResetRateLimit  = "reset_rate_limit"
	FnListAuditLogs   = "list_audit_logs"
	FnGetGatewayStats = "get_gateway_stats"
)

type KeyStore interface {
	CreateAPIKey(ctx context.Context, k *domain.APIKeyRecord) error
	RevokeAPIKey(ctx context.Context, tenantID, keyID string) (bool, error)
}

type PolicyStore interface {
	GetTenantPolicy(ctx context.Context, tenantID string) (*domain.TenantAIPolicyDoc, error)
	UpsertTenantPolicy(ctx context.Context, tenantID string, d domain.TenantAIPolicyDoc) error
}

// PolicyResolver дает действующую политику (с учетом дефолта и исправлений)
type PolicyResolver interface {
	Resolve(ctx context.Context, tenantID string) (domain.TenantAIPolicy, error)
}

type RateLimitResetter interface {
	Reset(ctx context.Context, tenantID, keyID string) (int64, error)
}

type AuditReader interface {
	FetchAuditLogs(ctx context.Context, f domain.AuditLogFilter) ([]audit.Entry, error)
	GetGatewayStats(ctx context.Context, tenantID string) (*domain.GatewayStats, error)
}

// Functions - набор админ-функций консоли над хранилищами шлюза
type Functions struct {
	Keys      KeyStore
	Policies  PolicyStore
	Resolver  PolicyResolver
	RateLimit RateLimitResetter
	Audit     AuditReader

	KeyTTL time.Duration // 0 = ключи без срока действия
	Now    func() time.Time
}

// Register регистрирует все функции в обертке
func (f *Functions) Register(w *Wrapper) {
	if f.Now == nil {
		f.Now = time.Now
	}
	w.Register(FnCreateAPIKey, f.createAPIKey)
	w.Register(FnRevokeAPIKey, f.revokeAPIKey)
	w.Register(FnGetTenantPolicy, f.getTenantPolicy)
	w.Register(FnSetTenantPolicy, f.setTenantPolicy)
	w.Register(FnResetRateLimit, f.resetRateLimit)
	w.Register(FnListAuditLogs, f.listAuditLogs)
	w.Register(FnGetGatewayStats, f.getGatewayStats)
}

func (f *Functions) createAPIKey(ctx context.Context, call Call) (Output, error) {
	name, err := call.Params.RequiredString("name")
	if err != nil {
		return Output{}, err
	}
	scopes, err := call.Params.Strings("scopes")
	if err != nil {
		return Output{}, err
	}
	ttl := f.KeyTTL
	days, err := call.Params.Int("ttl_days", -1)
	if err != nil {
		return Output{}, err
	}
	if days >= 0 {
		ttl = time.Duration(days) * 24 * time.Hour
	}

	issued, err := apikey.Generate(call.TenantID, name, scopes, ttl, f.Now())
	if err != nil {
		return Output{}, domain.Infra(err)
	}
	if err := f.Keys.CreateAPIKey(ctx, issued.Record); err != nil {
		return Output{}, domain.Infra(err)
	}

	// Сырой ключ отдается один раз и в журнал не попадает
	return Output{
		Data:         issued,
		AuditData:    issued.Record,
		ResourceType: "api_key",
		ResourceID:   issued.Record.ID,
		After: map[string]interface{}{
			"name":   issued.Record.Name,
			"prefix": issued.Record.Prefix,
			"scopes": issued.Record.Scopes,
		},
	}, nil
}

func (f *Functions) revokeAPIKey(ctx context.Context, call Call) (Output, error) {
	keyID, err := call.Params.RequiredString("key_id")
	if err != nil {
		return Output{}, err
	}

	found, err := f.Keys.RevokeAPIKey(ctx, call.TenantID, keyID)
	if err != nil {
		return Output{}, domain.Infra(err)
	}
	if !found {
		return Output{}, domain.NewError(domain.KindNotFound, "API key not found", nil)
	}

	return Output{
		Data:         map[string]interface{}{"key_id": keyID, "revoked": true},
		ResourceType: "api_key",
		ResourceID:   keyID,
		Before:       map[string]interface{}{"revoked": false},
		After:        map[string]interface{}{"revoked": true},
	}, nil
}

func (f *Functions) getTenantPolicy(ctx context.Context, call Call) (Output, error) {
	stored, err := f.Policies.GetTenantPolicy(ctx, call.TenantID)
	if err != nil {
		return Output{}, domain.Infra(err)
	}
	effective, err := f.Resolver.Resolve(ctx, call.TenantID)
	if err != nil {
		return Output{}, err
	}

	return Output{
		Data: map[string]interface{}{
			"tenant_id": call.TenantID,
			"stored":    stored,
			"effective": effective.Doc(),
		},
		ResourceType: "tenant_ai_policy",
		ResourceID:   call.TenantID,
	}, nil
}

// setTenantPolicy принимает только согласованные политики: исправление
// на лету предназначено для старых записей, а не для новых
func (f *Functions) setTenantPolicy(ctx context.Context, call Call) (Output, error) {
	def, err := call.Params.RequiredString("default_model")
	if err != nil {
		return Output{}, err
	}
	allow, err := call.Params.Strings("allow_models")
	if err != nil {
		return Output{}, err
	}

	p, err := domain.ParsePolicyDoc(call.TenantID, domain.TenantAIPolicyDoc{DefaultModel: def, AllowModels: allow})
	if err != nil {
		return Output{}, domain.Invalid(err.Error())
	}
	if !p.Consistent() {
		return Output{}, domain.Invalid("default_model must be one of allow_models")
	}

	before, err := f.Policies.GetTenantPolicy(ctx, call.TenantID)
	if err != nil {
		return Output{}, domain.Infra(err)
	}
	doc := p.Doc()
	if err := f.Policies.UpsertTenantPolicy(ctx, call.TenantID, doc); err != nil {
		return Output{}, domain.Infra(err)
	}

	out := Output{
		Data:         map[string]interface{}{"tenant_id": call.TenantID, "policy": doc},
		ResourceType: "tenant_ai_policy",
		ResourceID:   call.TenantID,
		After:        policyMap(doc),
	}
	if before != nil {
		out.Before = policyMap(*before)
	}
	return out, nil
}

func (f *Functions) resetRateLimit(ctx context.Context, call Call) (Output, error) {
	keyID, err := call.Params.RequiredString("key_id")
	if err != nil {
		return Output{}, err
	}

	n, err := f.RateLimit.Reset(ctx, call.TenantID, keyID)
	if err != nil {
		return Output{}, domain.Infra(err)
	}
	return Output{
		Data:         map[string]interface{}{"key_id": keyID, "windows_cleared": n},
		ResourceType: "rate_limit",
		ResourceID:   keyID,
	}, nil
}

func (f *Functions) listAuditLogs(ctx context.Context, call Call) (Output, error) {
	filter := domain.AuditLogFilter{TenantID: call.TenantID}

	var err error
	if filter.Action, err = call.Params.String("action"); err != nil {
		return Output{}, err
	}
	if filter.Severity, err = call.Params.String("severity"); err != nil {
		return Output{}, err
	}
	if filter.Since, err = call.Params.Time("since"); err != nil {
		return Output{}, err
	}
	if filter.Limit, err = call.Params.Int("limit", 0); err != nil {
		return Output{}, err
	}

	logs, err := f.Audit.FetchAuditLogs(ctx, filter)
	if err != nil {
		return Output{}, domain.Infra(err)
	}
	if logs == nil {
		logs = []audit.Entry{}
	}
	return Output{
		Data: map[string]interface{}{"logs": logs, "count": len(logs)},
		// Сами записи журнала повторно в журнал не кладем
		AuditData: map[string]interface{}{"count": len(logs)},
	}, nil
}

func (f *Functions) getGatewayStats(ctx context.Context, call Call) (Output, error) {
	stats, err := f.Audit.GetGatewayStats(ctx, call.TenantID)
	if err != nil {
		return Output{}, domain.Infra(err)
	}
	return Output{Data: stats}, nil
}

func policyMap(d domain.TenantAIPolicyDoc) map[string]interface{} {
	return map[string]interface{}{
		"default_model": d.DefaultModel,
		"allow_models":  d.AllowModels,
	}
}
