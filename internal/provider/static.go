package provider

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

// Static - провайдер-заглушка для локального запуска и стендов без внешних ключей.
// Имитирует задержку сети и отвечает шаблоном с подстановками {provider} и {prompt}.
type Static struct {
	id         domain.ProviderID
	text       string
	confidence float64
	latency    time.Duration
}

func NewStatic(id domain.ProviderID, text string, confidence float64, latency time.Duration) *Static {
	if text == "" {
		text = "[{provider}] {prompt}"
	}
	return &Static{id: id, text: text, confidence: clamp01(confidence), latency: latency}
}

func (s *Static) ID() domain.ProviderID { return s.id }

func (s *Static) Complete(ctx context.Context, req Request) (Completion, error) {
	if s.latency > 0 {
		// +-50% джиттер
		d := s.latency/2 + time.Duration(rand.Int64N(int64(s.latency)+1))
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}

	return Completion{
		Text:       strings.NewReplacer("{provider}", string(s.id), "{prompt}", req.Prompt).Replace(s.text),
		Model:      req.Model,
		Confidence: s.confidence,
	}, nil
}
