// Package engine - поверхность шлюза: ядро обработки запроса, HTTP и gRPC.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/provider"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/ratelimit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/routing"
	"go.uber.org/zap"
)

type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (domain.KeyValidation, error)
}

type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, tenantID, keyID string, limit int, window time.Duration) (ratelimit.Decision, error)
}

type PolicyResolver interface {
	Resolve(ctx context.Context, tenantID string) (domain.TenantAIPolicy, error)
}

type ProviderSelector interface {
	Select(text string, ctx domain.RoutingContext, policy domain.TenantAIPolicy) routing.Decision
}

type ProviderInvoker interface {
	InvokeAll(ctx context.Context, text string, rctx domain.RoutingContext, calls []provider.Call, perCallTimeout time.Duration) []domain.ProviderResponse
}

type Options struct {
	RateLimit       int
	RateWindow      time.Duration
	ProviderTimeout time.Duration // на один вызов провайдера
	RequestTimeout  time.Duration // на весь fan-out
	MaxFanOut       int
	DefaultStrategy string
}

// Admission - итог допуска: чей ключ и сколько осталось в окне
type Admission struct {
	Key  domain.KeyValidation
	Rate ratelimit.Decision
}

// Gateway: APIKeyValidator -> RateLimiter -> (бизнес-вызов).
// Своего изменяемого состояния не держит: лимиты и политики живут в хранилищах.
type Gateway struct {
	keys     KeyValidator
	limiter  RateLimiter
	resolver PolicyResolver
	selector ProviderSelector
	invoker  ProviderInvoker
	metrics  *Metrics
	opts     Options
	logger   *zap.Logger
}

func NewGateway(
	keys KeyValidator,
	limiter RateLimiter,
	resolver PolicyResolver,
	selector ProviderSelector,
	invoker ProviderInvoker,
	metrics *Metrics,
	opts Options,
	logger *zap.Logger,
) *Gateway {
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = domain.StrategySingle
	}
	if opts.MaxFanOut < 1 {
		opts.MaxFanOut = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil, nil)
	}
	return &Gateway{
		keys:     keys,
		limiter:  limiter,
		resolver: resolver,
		selector: selector,
		invoker:  invoker,
		metrics:  metrics,
		opts:     opts,
		logger:   logger.Named("gateway"),
	}
}

// LimitDescription - "600 calls per 5 minutes"
func (g *Gateway) LimitDescription() string {
	return fmt.Sprintf("%d calls per %s", g.opts.RateLimit, describeWindow(g.opts.RateWindow))
}

// Admit проверяет ключ и списывает один вызов из окна.
// При отказе по лимиту Admission.Rate заполнен (для заголовков).
func (g *Gateway) Admit(ctx context.Context, rawKey string) (Admission, error) {
	var adm Admission

	key, err := g.keys.Validate(ctx, rawKey)
	if err != nil {
		return adm, err
	}
	if !key.Valid {
		return adm, domain.ErrUnauthenticated
	}
	adm.Key = key

	dec, err := g.limiter.CheckAndIncrement(ctx, key.TenantID, key.KeyID, g.opts.RateLimit, g.opts.RateWindow)
	adm.Rate = dec
	if err != nil {
		return adm, err
	}
	if !dec.Allowed {
		return adm, domain.ErrRateLimited
	}
	return adm, nil
}

// Ask: TenantPolicyResolver -> ProviderSelector -> ProviderInvoker -> ResponseAggregator
func (g *Gateway) Ask(ctx context.Context, key domain.KeyValidation, req domain.AIRequest) (domain.AskResponse, error) {
	start := time.Now()

	text := req.Text()
	if text == "" {
		return domain.AskResponse{}, domain.Invalid("message or prompt is required")
	}
	strategy := strings.ToLower(strings.TrimSpace(req.Strategy))
	if strategy == "" {
		strategy = g.opts.DefaultStrategy
	}
	if strategy != domain.StrategySingle && strategy != domain.StrategyBestOf {
		return domain.AskResponse{}, domain.Invalid(fmt.Sprintf("unknown strategy %q", req.Strategy))
	}

	// Тенант - из ключа, а не из тела запроса
	tenantID := key.TenantID
	policy, err := g.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return domain.AskResponse{}, err
	}

	rctx := req.Context()
	decision := g.selector.Select(text, rctx, policy)
	g.metrics.RoutingDecisions.WithLabelValues(string(decision.Provider), decision.Rule).Inc()

	ids := routing.Candidates(strategy, decision.Provider, policy, g.opts.MaxFanOut)
	calls := make([]provider.Call, 0, len(ids))
	for _, id := range ids {
		m, _ := policy.ModelFor(id)
		calls = append(calls, provider.Call{Provider: id, Model: m.Model})
	}

	// Дедлайн вызывающего отменяет все незавершенные вызовы
	fanCtx := ctx
	if g.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		fanCtx, cancel = context.WithTimeout(ctx, g.opts.RequestTimeout)
		defer cancel()
	}
	responses := g.invoker.InvokeAll(fanCtx, text, rctx, calls, g.opts.ProviderTimeout)

	best, err := provider.PickBest(responses)
	if err != nil {
		g.logger.Warn("no provider answered",
			zap.String("tenant_id", tenantID),
			zap.String("selected", string(decision.Provider)),
			zap.String("rule", decision.Rule),
			zap.Int("attempted", len(calls)),
		)
		return domain.AskResponse{}, err
	}

	g.logger.Debug("ask served",
		zap.String("tenant_id", tenantID),
		zap.String("rule", decision.Rule),
		zap.String("provider", string(best.Provider)),
		zap.Int("succeeded", len(responses)),
	)

	return domain.AskResponse{
		Provider:     best.Provider,
		Model:        best.Model,
		Response:     best.Text,
		Confidence:   best.Confidence,
		Selected:     decision.Provider,
		Attempted:    len(calls),
		Succeeded:    len(responses),
		TenantID:     tenantID,
		ResponseTime: time.Since(start).Milliseconds(),
	}, nil
}

// recordError считает отказ по классу ошибки
func (g *Gateway) recordError(err error) {
	kind := "unclassified"
	var e *domain.Error
	if errors.As(err, &e) {
		kind = string(e.Kind)
	}
	g.metrics.ErrorTotal.WithLabelValues(kind).Inc()
}

func describeWindow(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "minute"
	case d == time.Hour:
		return "hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return fmt.Sprintf("%d seconds", d/time.Second)
	}
}
