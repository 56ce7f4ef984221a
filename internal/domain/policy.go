package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ProviderID - идентификатор AI-провайдера ("openai", "deepseek", "anthropic", ...)
type ProviderID string

// ModelRef - ссылка на модель в формате "<provider>:<model>"
type ModelRef struct {
	Provider ProviderID `json:"provider"`
	Model    string     `json:"model"`
}

// ParseModelRef разбирает строку "<provider>:<model>". Имя модели может быть пустым
// ("deepseek" == "deepseek:"), тогда провайдер использует модель из своего конфига.
func ParseModelRef(s string) (ModelRef, error) {
	s = strings.TrimSpace(s)
	provider, model, _ := strings.Cut(s, ":")
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return ModelRef{}, fmt.Errorf("model ref %q: empty provider", s)
	}
	return ModelRef{Provider: ProviderID(provider), Model: strings.TrimSpace(model)}, nil
}

func (m ModelRef) String() string {
	if m.Model == "" {
		return string(m.Provider)
	}
	return string(m.Provider) + ":" + m.Model
}

// TenantAIPolicy - AI-конфигурация тенанта. Загружается на каждый запрос,
// шлюз её никогда не мутирует на пути обработки запроса.
type TenantAIPolicy struct {
	TenantID     string     `json:"tenant_id"`
	DefaultModel ModelRef   `json:"default_model"`
	AllowModels  []ModelRef `json:"allow_models"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

var ErrEmptyAllowList = errors.New("policy: allow_models must not be empty")

// DefaultProvider провайдер модели по умолчанию
func (p TenantAIPolicy) DefaultProvider() ProviderID {
	return p.DefaultModel.Provider
}

// Allows проверяет, разрешен ли провайдер хотя бы одной моделью allow-листа
func (p TenantAIPolicy) Allows(id ProviderID) bool {
	for _, m := range p.AllowModels {
		if m.Provider == id {
			return true
		}
	}
	return false
}

// AllowedProviders возвращает провайдеров allow-листа в порядке объявления, без дублей
func (p TenantAIPolicy) AllowedProviders() []ProviderID {
	out := make([]ProviderID, 0, len(p.AllowModels))
	for _, m := range p.AllowModels {
		if !slices.Contains(out, m.Provider) {
			out = append(out, m.Provider)
		}
	}
	return out
}

// ModelFor выбирает конкретную модель для провайдера.
// Модель по умолчанию имеет приоритет, иначе берется первая разрешенная.
func (p TenantAIPolicy) ModelFor(id ProviderID) (ModelRef, bool) {
	if p.DefaultModel.Provider == id && p.Consistent() {
		return p.DefaultModel, true
	}
	for _, m := range p.AllowModels {
		if m.Provider == id {
			return m, true
		}
	}
	return ModelRef{}, false
}

// Consistent - инвариант: default_model входит в allow_models
func (p TenantAIPolicy) Consistent() bool {
	return slices.Contains(p.AllowModels, p.DefaultModel)
}

func (p TenantAIPolicy) Validate() error {
	if len(p.AllowModels) == 0 {
		return ErrEmptyAllowList
	}
	if p.DefaultModel.Provider == "" {
		return errors.New("policy: default_model is required")
	}
	return nil
}

// TenantAIPolicyDoc - внешнее (JSON/DB) представление политики:
// {"default_model": "openai:gpt-4o-mini", "allow_models": ["openai:gpt-4o-mini", ...]}
type TenantAIPolicyDoc struct {
	DefaultModel string   `json:"default_model"`
	AllowModels  []string `json:"allow_models"`
}

func (p TenantAIPolicy) Doc() TenantAIPolicyDoc {
	d := TenantAIPolicyDoc{DefaultModel: p.DefaultModel.String(), AllowModels: make([]string, 0, len(p.AllowModels))}
	for _, m := range p.AllowModels {
		d.AllowModels = append(d.AllowModels, m.String())
	}
	return d
}

// ParsePolicyDoc собирает политику из внешнего представления.
// Несогласованность default/allow здесь НЕ ошибка: её исправляет резолвер.
func ParsePolicyDoc(tenantID string, d TenantAIPolicyDoc) (TenantAIPolicy, error) {
	p := TenantAIPolicy{TenantID: tenantID}

	def, err := ParseModelRef(d.DefaultModel)
	if err != nil {
		return p, fmt.Errorf("policy: default_model: %w", err)
	}
	p.DefaultModel = def

	for _, raw := range d.AllowModels {
		m, err := ParseModelRef(raw)
		if err != nil {
			return p, fmt.Errorf("policy: allow_models: %w", err)
		}
		if !slices.Contains(p.AllowModels, m) {
			p.AllowModels = append(p.AllowModels, m)
		}
	}

	return p, p.Validate()
}
