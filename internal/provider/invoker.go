package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Call - один запланированный вызов: провайдер + модель из политики тенанта
type Call struct {
	Provider domain.ProviderID
	Model    string
}

// Outcome - итог вызова. Ровно одно из Response/Err заполнено.
type Outcome struct {
	Call     Call
	Response *domain.ProviderResponse
	Err      error
	Latency  time.Duration
}

// Observer получает итог каждого вызова (метрики)
type Observer func(provider domain.ProviderID, success bool, latency time.Duration)

type Invoker struct {
	providers map[domain.ProviderID]Provider
	observe   Observer
	logger    *zap.Logger
}

func NewInvoker(providers []Provider, observe Observer, logger *zap.Logger) *Invoker {
	m := make(map[domain.ProviderID]Provider, len(providers))
	for _, p := range providers {
		m[p.ID()] = p
	}
	if observe == nil {
		observe = func(domain.ProviderID, bool, time.Duration) {}
	}
	return &Invoker{providers: m, observe: observe, logger: logger.Named("invoker")}
}

// Has - сконфигурирован ли провайдер
func (inv *Invoker) Has(id domain.ProviderID) bool {
	_, ok := inv.providers[id]
	return ok
}

// Settle опрашивает всех параллельно и ждет всех (settle-all): сбой или таймаут одного
// не отменяет остальных. У каждого вызова свой дедлайн; отмена ctx отменяет все.
func (inv *Invoker) Settle(ctx context.Context, text string, rctx domain.RoutingContext, calls []Call, perCallTimeout time.Duration) []Outcome {
	outcomes := make([]Outcome, len(calls))

	// Контекст группы не используется: горутины всегда возвращают nil
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			outcomes[i] = inv.invoke(ctx, i, text, rctx, call, perCallTimeout)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (inv *Invoker) invoke(ctx context.Context, order int, text string, rctx domain.RoutingContext, call Call, timeout time.Duration) Outcome {
	out := Outcome{Call: call}

	p, ok := inv.providers[call.Provider]
	if !ok {
		out.Err = fmt.Errorf("provider %s is not configured", call.Provider)
		return out
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	c, err := p.Complete(callCtx, Request{Model: call.Model, Prompt: text, Context: rctx})
	out.Latency = time.Since(start)
	inv.observe(call.Provider, err == nil, out.Latency)

	if err != nil {
		// ProviderError остается локальным: логируем, в ответ не попадает
		inv.logger.Warn("provider call failed",
			zap.String("provider", string(call.Provider)),
			zap.Duration("latency", out.Latency),
			zap.Error(err),
		)
		out.Err = err
		return out
	}

	model := c.Model
	if model == "" {
		model = call.Model
	}
	out.Response = &domain.ProviderResponse{
		Provider:   call.Provider,
		Model:      model,
		Text:       c.Text,
		Confidence: clamp01(c.Confidence),
		Latency:    out.Latency,
		Success:    true,
		Order:      order,
	}
	return out
}

// InvokeAll - успешные ответы в порядке запроса. Провалившиеся вызовы записи не дают.
func (inv *Invoker) InvokeAll(ctx context.Context, text string, rctx domain.RoutingContext, calls []Call, perCallTimeout time.Duration) []domain.ProviderResponse {
	var out []domain.ProviderResponse
	for _, o := range inv.Settle(ctx, text, rctx, calls, perCallTimeout) {
		if o.Response != nil {
			out = append(out, *o.Response)
		}
	}
	return out
}
