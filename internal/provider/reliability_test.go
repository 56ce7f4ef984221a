package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts() ReliabilityOptions {
	return ReliabilityOptions{
		RPS:       1000,
		Burst:     1000,
		Timeout:   time.Minute,
		Failures:  2,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	}
}

func TestReliability_RetriesOnceOnServerError(t *testing.T) {
	p := &fakeProvider{id: "openai"}
	p.fn = func(context.Context, Request) (Completion, error) {
		if p.calls.Load() == 1 {
			return Completion{}, &StatusError{StatusCode: http.StatusServiceUnavailable, Cause: errors.New("down")}
		}
		return Completion{Text: "ok", Confidence: 0.9}, nil
	}

	w := NewReliabilityWrapper(p, fastOpts())
	c, err := w.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", c.Text)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestReliability_NoMoreThanOneRetry(t *testing.T) {
	p := &fakeProvider{id: "openai", fn: func(context.Context, Request) (Completion, error) {
		return Completion{}, &ThrottleError{RetryAfter: time.Millisecond, Cause: errors.New("429")}
	}}

	w := NewReliabilityWrapper(p, fastOpts())
	_, err := w.Complete(context.Background(), Request{})

	var te *ThrottleError
	require.ErrorAs(t, err, &te)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestReliability_ClientErrorNotRetried(t *testing.T) {
	p := &fakeProvider{id: "openai", fn: func(context.Context, Request) (Completion, error) {
		return Completion{}, &StatusError{StatusCode: http.StatusBadRequest, Cause: errors.New("bad model")}
	}}

	w := NewReliabilityWrapper(p, fastOpts())
	_, err := w.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestReliability_BreakerOpens(t *testing.T) {
	p := &fakeProvider{id: "deepseek", fn: func(context.Context, Request) (Completion, error) {
		return Completion{}, ErrEmptyCompletion
	}}

	var opened bool
	opts := fastOpts()
	opts.OnStateChange = func(_ string, _, to gobreaker.State) { opened = to == gobreaker.StateOpen }
	w := NewReliabilityWrapper(p, opts)

	for range 2 {
		_, err := w.Complete(context.Background(), Request{})
		require.ErrorIs(t, err, ErrEmptyCompletion)
	}
	assert.True(t, opened)
	assert.Equal(t, gobreaker.StateOpen, w.State())

	_, err := w.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestReliability_CancelDoesNotTripBreaker(t *testing.T) {
	p := hanging("openai")
	w := NewReliabilityWrapper(p, fastOpts())

	for range 3 {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(5*time.Millisecond, cancel)
		_, err := w.Complete(ctx, Request{})
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, w.State())
}
