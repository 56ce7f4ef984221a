package provider

import (
	"context"
	"sync/atomic"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

// fakeProvider отвечает тем, что вернет fn; calls считает вызовы
type fakeProvider struct {
	id    domain.ProviderID
	fn    func(ctx context.Context, req Request) (Completion, error)
	calls atomic.Int32
}

func (f *fakeProvider) ID() domain.ProviderID { return f.id }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	f.calls.Add(1)
	return f.fn(ctx, req)
}

func answering(id domain.ProviderID, text string, conf float64) *fakeProvider {
	return &fakeProvider{id: id, fn: func(context.Context, Request) (Completion, error) {
		return Completion{Text: text, Confidence: conf}, nil
	}}
}

// hanging ждет, пока вызов не отменят
func hanging(id domain.ProviderID) *fakeProvider {
	return &fakeProvider{id: id, fn: func(ctx context.Context, _ Request) (Completion, error) {
		<-ctx.Done()
		return Completion{}, ctx.Err()
	}}
}
