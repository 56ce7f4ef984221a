package apikey

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

type fakeStore struct {
	mu      sync.Mutex
	byHash  map[string][]domain.APIKeyRecord
	usage   map[string]int
	findErr error
	incErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byHash: map[string][]domain.APIKeyRecord{}, usage: map[string]int{}}
}

func (s *fakeStore) add(raw string, rec domain.APIKeyRecord) {
	s.byHash[HashKey(raw)] = append(s.byHash[HashKey(raw)], rec)
}

func (s *fakeStore) FindAPIKeysByHash(_ context.Context, h string) ([]domain.APIKeyRecord, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.byHash[h], nil
}

func (s *fakeStore) IncrementAPIKeyUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incErr != nil {
		return s.incErr
	}
	s.usage[id]++
	return nil
}

func (s *fakeStore) usageOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[id]
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	store := newFakeStore()
	store.add("good", domain.APIKeyRecord{ID: "k1", TenantID: "t1", Scopes: []string{"ai:ask"}, ExpiresAt: &future})
	store.add("forever", domain.APIKeyRecord{ID: "k2", TenantID: "t1"})
	store.add("revoked", domain.APIKeyRecord{ID: "k3", TenantID: "t1", Revoked: true})
	store.add("expired", domain.APIKeyRecord{ID: "k4", TenantID: "t1", ExpiresAt: &past})
	store.add("twice", domain.APIKeyRecord{ID: "k5", TenantID: "t1"})
	store.add("twice", domain.APIKeyRecord{ID: "k6", TenantID: "t2"})

	v := NewValidator(store, time.Second, zap.NewNop())
	v.now = func() time.Time { return now }

	tests := []struct {
		key       string
		wantValid bool
	}{
		{"good", true},
		{"forever", true},
		{"revoked", false},
		{"expired", false},
		{"twice", false},
		{"unknown", false},
		{"", false},
		{string(make([]byte, 1000)), false},
	}

	for _, tt := range tests {
		res, err := v.Validate(context.Background(), tt.key)
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.wantValid, res.Valid, tt.key)
	}
	v.Close()

	res, _ := v.Validate(context.Background(), "good")
	v.Close()
	assert.Equal(t, "t1", res.TenantID)
	assert.Equal(t, []string{"ai:ask"}, res.Scopes)

	assert.Equal(t, 2, store.usageOf("k1"), "incremented on every successful validation")
	assert.Equal(t, 0, store.usageOf("k3"))
	assert.Equal(t, 0, store.usageOf("k4"))
}

func TestValidate_InfrastructureFailure(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("connection refused")

	v := NewValidator(store, time.Second, zap.NewNop())
	_, err := v.Validate(context.Background(), "anything")
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}

func TestValidate_UsageFailureDoesNotAffectResult(t *testing.T) {
	store := newFakeStore()
	store.incErr = errors.New("deadlock detected")
	store.add("good", domain.APIKeyRecord{ID: "k1", TenantID: "t1"})

	v := NewValidator(store, time.Second, zap.NewNop())
	res, err := v.Validate(context.Background(), "good")
	v.Close()

	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestGenerate(t *testing.T) {
	now := time.Now()
	issued, err := Generate("t1", "ci", nil, 24*time.Hour, now)
	require.NoError(t, err)

	assert.Contains(t, issued.RawKey, KeyPrefix)
	assert.Len(t, issued.RawKey, len(KeyPrefix)+64)
	assert.Equal(t, HashKey(issued.RawKey), issued.Record.KeyHash)
	assert.Equal(t, issued.RawKey[:12], issued.Record.Prefix)
	assert.NotEmpty(t, issued.Record.ID)
	require.NotNil(t, issued.Record.ExpiresAt)
	assert.False(t, issued.Record.Expired(now))
	assert.True(t, issued.Record.Expired(now.Add(25*time.Hour)))

	other, err := Generate("t1", "ci", nil, 0, now)
	require.NoError(t, err)
	assert.NotEqual(t, issued.RawKey, other.RawKey)
	assert.Nil(t, other.Record.ExpiresAt)
}
