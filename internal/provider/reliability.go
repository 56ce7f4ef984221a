package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"golang.org/x/time/rate"
)

type ReliabilityOptions struct {
	// Клиентский лимитер (защищает квоту у провайдера)
	RPS   float64
	Burst int

	// Circuit Breaker
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration // через сколько CB попробует "закрыться"
	Failures    uint32        // подряд, после которых CB открывается

	// Всего попыток: 2 = один повтор
	Attempts  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration

	OnStateChange func(provider string, from, to gobreaker.State)
}

func (o *ReliabilityOptions) withDefaults() {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.MaxRequests == 0 {
		o.MaxRequests = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Failures == 0 {
		o.Failures = 5
	}
	if o.Attempts == 0 {
		o.Attempts = 2
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 200 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 2 * time.Second
	}
}

// ReliabilityWrapper = rate limiter + circuit breaker + один повтор с бэкоффом.
// Сам реализует Provider, поэтому прозрачно оборачивает любой клиент.
type ReliabilityWrapper struct {
	next    Provider
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	opts    ReliabilityOptions
}

func NewReliabilityWrapper(next Provider, opts ReliabilityOptions) *ReliabilityWrapper {
	opts.withDefaults()

	name := string(next.ID())
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.Failures
		},
		// Отмена вызывающим - не вина провайдера
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if opts.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			opts.OnStateChange(name, from, to)
		}
	}

	return &ReliabilityWrapper{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		opts:    opts,
	}
}

func (w *ReliabilityWrapper) ID() domain.ProviderID { return w.next.ID() }

// State - для метрик и health
func (w *ReliabilityWrapper) State() gobreaker.State { return w.cb.State() }

func (w *ReliabilityWrapper) Complete(ctx context.Context, req Request) (Completion, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("provider %s: local rate limit: %w", w.next.ID(), err)
	}

	res, err := w.cb.Execute(func() (interface{}, error) {
		return retry.DoWithData(
			func() (Completion, error) { return w.next.Complete(ctx, req) },
			retry.Context(ctx),
			retry.Attempts(w.opts.Attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(retryable),
			retry.Delay(w.opts.BaseDelay),
			retry.MaxDelay(w.opts.MaxDelay),
			retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
				// Провайдер сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return min(tErr.RetryAfter, w.opts.MaxDelay)
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)
	})
	if err != nil {
		return Completion{}, fmt.Errorf("provider %s: %w", w.next.ID(), err)
	}
	return res.(Completion), nil
}
