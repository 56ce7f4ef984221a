package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		in      string
		want    ModelRef
		wantErr bool
	}{
		{in: "openai:gpt-4o-mini", want: ModelRef{Provider: "openai", Model: "gpt-4o-mini"}},
		{in: " DeepSeek:deepseek-chat ", want: ModelRef{Provider: "deepseek", Model: "deepseek-chat"}},
		{in: "anthropic", want: ModelRef{Provider: "anthropic"}},
		{in: ":gpt-4o", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModelRef(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePolicyDoc(t *testing.T) {
	p, err := ParsePolicyDoc("t1", TenantAIPolicyDoc{
		DefaultModel: "deepseek:deepseek-chat",
		AllowModels:  []string{"openai:gpt-4o-mini", "deepseek:deepseek-chat", "openai:gpt-4o-mini"},
	})
	require.NoError(t, err)

	assert.Equal(t, "t1", p.TenantID)
	assert.Equal(t, ProviderID("deepseek"), p.DefaultProvider())
	assert.Len(t, p.AllowModels, 2, "duplicates are dropped")
	assert.True(t, p.Consistent())
	assert.Equal(t, []ProviderID{"openai", "deepseek"}, p.AllowedProviders())
	assert.True(t, p.Allows("openai"))
	assert.False(t, p.Allows("anthropic"))
}

func TestParsePolicyDoc_InconsistentIsNotAnError(t *testing.T) {
	p, err := ParsePolicyDoc("t1", TenantAIPolicyDoc{
		DefaultModel: "anthropic:claude-3-haiku",
		AllowModels:  []string{"openai:gpt-4o-mini"},
	})
	require.NoError(t, err)
	assert.False(t, p.Consistent())
}

func TestParsePolicyDoc_EmptyAllowList(t *testing.T) {
	_, err := ParsePolicyDoc("t1", TenantAIPolicyDoc{DefaultModel: "openai:gpt-4o-mini"})
	assert.ErrorIs(t, err, ErrEmptyAllowList)
}

func TestModelFor(t *testing.T) {
	p := TenantAIPolicy{
		DefaultModel: ModelRef{Provider: "openai", Model: "gpt-4o"},
		AllowModels: []ModelRef{
			{Provider: "openai", Model: "gpt-4o-mini"},
			{Provider: "openai", Model: "gpt-4o"},
			{Provider: "deepseek", Model: "deepseek-chat"},
		},
	}

	m, ok := p.ModelFor("openai")
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", m.Model, "default model wins for its provider")

	m, ok = p.ModelFor("deepseek")
	require.True(t, ok)
	assert.Equal(t, "deepseek-chat", m.Model)

	_, ok = p.ModelFor("anthropic")
	assert.False(t, ok)
}

func TestDocRoundTrip(t *testing.T) {
	doc := TenantAIPolicyDoc{DefaultModel: "openai:gpt-4o-mini", AllowModels: []string{"openai:gpt-4o-mini", "deepseek"}}
	p, err := ParsePolicyDoc("t1", doc)
	require.NoError(t, err)
	assert.Equal(t, doc, p.Doc())
}
