package provider

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/sony/gobreaker"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra"
	"go.uber.org/zap"
)

const (
	KindOpenAI = "openai"
	KindStatic = "static"
)

// BreakerObserver - уведомление о смене состояния CB (для метрик)
type BreakerObserver func(provider string, open bool)

// Build собирает провайдеров из конфига, каждый обернут в ReliabilityWrapper.
// Порядок детерминирован (по имени), чтобы логи и метрики не прыгали между запусками.
func Build(cfgs map[string]infra.ProviderConfig, httpClient *http.Client, onBreaker BreakerObserver, logger *zap.Logger) ([]Provider, error) {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Provider, 0, len(names))
	for _, name := range names {
		cfg := cfgs[name]
		id := domain.ProviderID(name)

		var base Provider
		switch cfg.Kind {
		case KindOpenAI, "":
			if cfg.APIKey == "" {
				logger.Warn("provider has no api key, calls will be rejected upstream", zap.String("provider", name))
			}
			base = NewOpenAICompatible(id, OpenAIOptions{
				BaseURL:    cfg.BaseURL,
				APIKey:     cfg.APIKey,
				Model:      cfg.Model,
				LogProbs:   cfg.LogProbs,
				HTTPClient: httpClient,
			})
		case KindStatic:
			base = NewStatic(id, cfg.StaticText, cfg.StaticConfidence, cfg.StaticLatency)
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", name, cfg.Kind)
		}

		opts := ReliabilityOptions{
			RPS:         cfg.RPS,
			Burst:       cfg.Burst,
			MaxRequests: cfg.CBMaxRequests,
			Interval:    cfg.CBInterval,
			Timeout:     cfg.CBTimeout,
			Failures:    cfg.CBFailures,
			OnStateChange: func(provider string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("provider", provider),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
				if onBreaker != nil {
					onBreaker(provider, to == gobreaker.StateOpen)
				}
			},
		}
		out = append(out, NewReliabilityWrapper(base, opts))

		logger.Info("provider registered",
			zap.String("provider", name),
			zap.String("kind", cfg.Kind),
			zap.String("model", cfg.Model),
		)
	}
	return out, nil
}
