package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"go.uber.org/zap"
)

func TestInvoker_SettleAllSurvivesTimeout(t *testing.T) {
	inv := NewInvoker([]Provider{
		answering("openai", "a", 0.7),
		hanging("deepseek"),
		answering("anthropic", "c", 0.9),
	}, nil, zap.NewNop())

	calls := []Call{{Provider: "openai", Model: "gpt-4o-mini"}, {Provider: "deepseek"}, {Provider: "anthropic"}}

	start := time.Now()
	got := inv.InvokeAll(context.Background(), "hi", domain.RoutingContext{}, calls, 50*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, got, 2)
	assert.Equal(t, domain.ProviderID("openai"), got[0].Provider)
	assert.Equal(t, "gpt-4o-mini", got[0].Model)
	assert.Equal(t, 0, got[0].Order)
	assert.Equal(t, domain.ProviderID("anthropic"), got[1].Provider)
	assert.Equal(t, 2, got[1].Order)

	best, err := PickBest(got)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderID("anthropic"), best.Provider)
	assert.Equal(t, "c", best.Text)
}

func TestInvoker_UnknownProviderIsFailedOutcome(t *testing.T) {
	inv := NewInvoker([]Provider{answering("openai", "a", 0.5)}, nil, zap.NewNop())

	out := inv.Settle(context.Background(), "hi", domain.RoutingContext{},
		[]Call{{Provider: "mistral"}, {Provider: "openai"}}, time.Second)

	require.Len(t, out, 2)
	assert.Error(t, out[0].Err)
	assert.Nil(t, out[0].Response)
	require.NotNil(t, out[1].Response)
	assert.True(t, out[1].Response.Success)
	assert.False(t, inv.Has("mistral"))
	assert.True(t, inv.Has("openai"))
}

func TestInvoker_ObserverAndClamp(t *testing.T) {
	var mu sync.Mutex
	seen := map[domain.ProviderID]bool{}
	observe := func(p domain.ProviderID, ok bool, _ time.Duration) {
		mu.Lock()
		seen[p] = ok
		mu.Unlock()
	}

	failing := &fakeProvider{id: "deepseek", fn: func(context.Context, Request) (Completion, error) {
		return Completion{}, errors.New("boom")
	}}
	inv := NewInvoker([]Provider{answering("openai", "a", 1.7), failing}, observe, zap.NewNop())

	got := inv.InvokeAll(context.Background(), "hi", domain.RoutingContext{},
		[]Call{{Provider: "openai"}, {Provider: "deepseek"}}, time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.Equal(t, map[domain.ProviderID]bool{"openai": true, "deepseek": false}, seen)
}

func TestInvoker_ParentCancelStopsAll(t *testing.T) {
	inv := NewInvoker([]Provider{hanging("openai"), hanging("deepseek")}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := inv.Settle(ctx, "hi", domain.RoutingContext{},
		[]Call{{Provider: "openai"}, {Provider: "deepseek"}}, time.Minute)
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestPickBest(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := PickBest(nil)
		assert.ErrorIs(t, err, domain.ErrNoProviderAvailable)
	})

	t.Run("tie goes to earlier request order", func(t *testing.T) {
		best, err := PickBest([]domain.ProviderResponse{
			{Provider: "anthropic", Confidence: 0.8, Success: true, Order: 2},
			{Provider: "openai", Confidence: 0.8, Success: true, Order: 0},
			{Provider: "deepseek", Confidence: 0.4, Success: true, Order: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderID("openai"), best.Provider)
	})

	t.Run("skips unsuccessful", func(t *testing.T) {
		best, err := PickBest([]domain.ProviderResponse{
			{Provider: "openai", Confidence: 0.99, Success: false},
			{Provider: "deepseek", Confidence: 0.1, Success: true, Order: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderID("deepseek"), best.Provider)
	})
}
