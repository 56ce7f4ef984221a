// Package provider вызывает AI-провайдеров: клиенты, предохранители, параллельный опрос и агрегация.
package provider

import (
	"context"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

// Request - то, что уходит одному провайдеру
type Request struct {
	Model   string
	Prompt  string
	Context domain.RoutingContext
}

// Completion - ответ провайдера до обогащения метаданными вызова
type Completion struct {
	Text       string
	Model      string
	Confidence float64
}

type Provider interface {
	ID() domain.ProviderID
	Complete(ctx context.Context, req Request) (Completion, error)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
