// Package routing выбирает AI-провайдера для запроса. Чистые функции без I/O.
package routing

import (
	"slices"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

// Roles - какие провайдеры выполняют специализированные роли
type Roles struct {
	Cost        domain.ProviderID
	Analytics   domain.ProviderID
	Explanation domain.ProviderID
}

// Input - всё, от чего зависит решение
type Input struct {
	Text    string
	Context domain.RoutingContext
	Policy  domain.TenantAIPolicy
}

// Rule - строка таблицы маршрутизации: предикат + роль провайдера
type Rule struct {
	Name     string
	Provider func(Roles) domain.ProviderID
	Match    func(Roles, Input) bool
}

// DefaultRules - порядок задает приоритет: cost > analytics > explanation > default.
var DefaultRules = []Rule{
	{
		Name:     "default_pinned_to_cost",
		Provider: func(r Roles) domain.ProviderID { return r.Cost },
		Match: func(r Roles, in Input) bool {
			return in.Policy.DefaultProvider() == r.Cost
		},
	},
	{
		Name:     "cost_vocabulary",
		Provider: func(r Roles) domain.ProviderID { return r.Cost },
		Match: func(_ Roles, in Input) bool {
			return CostVocabulary.Match(in.Text)
		},
	},
	{
		Name:     "analytics",
		Provider: func(r Roles) domain.ProviderID { return r.Analytics },
		Match: func(_ Roles, in Input) bool {
			return AnalyticsVocabulary.Match(in.Text) || moduleIn(in.Context.ModuleContext, AnalyticsModules)
		},
	},
	{
		Name:     "explanation",
		Provider: func(r Roles) domain.ProviderID { return r.Explanation },
		Match: func(_ Roles, in Input) bool {
			return ExplanationVocabulary.Match(in.Text) || moduleIn(in.Context.ModuleContext, HRModules)
		},
	},
}

const RuleDefault = "default"

// Decision - выбранный провайдер и сработавшее правило (для логов и метрик)
type Decision struct {
	Provider domain.ProviderID
	Rule     string
}

type Selector struct {
	roles Roles
	rules []Rule
}

func NewSelector(roles Roles, rules []Rule) *Selector {
	if rules == nil {
		rules = DefaultRules
	}
	return &Selector{roles: roles, rules: rules}
}

// Select - первое совпавшее правило, чей провайдер разрешен политикой.
// Иначе провайдер модели по умолчанию.
func (s *Selector) Select(text string, ctx domain.RoutingContext, policy domain.TenantAIPolicy) Decision {
	in := Input{Text: text, Context: ctx, Policy: policy}
	for _, rule := range s.rules {
		p := rule.Provider(s.roles)
		if p == "" || !policy.Allows(p) {
			continue
		}
		if rule.Match(s.roles, in) {
			return Decision{Provider: p, Rule: rule.Name}
		}
	}
	return Decision{Provider: policy.DefaultProvider(), Rule: RuleDefault}
}

// Candidates - порядок опроса провайдеров: выбранный первым; для best_of
// затем остальные разрешенные в порядке allow-листа, не больше maxFanOut.
func Candidates(strategy string, selected domain.ProviderID, policy domain.TenantAIPolicy, maxFanOut int) []domain.ProviderID {
	out := []domain.ProviderID{selected}
	if strategy != domain.StrategyBestOf {
		return out
	}
	if maxFanOut < 1 {
		maxFanOut = 1
	}
	for _, p := range policy.AllowedProviders() {
		if len(out) >= maxFanOut {
			break
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
