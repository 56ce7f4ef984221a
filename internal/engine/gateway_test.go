package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/provider"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/ratelimit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/routing"
	"go.uber.org/zap"
)

const testKey = "aqlhr_test_key"

type fakeKeys map[string]domain.KeyValidation

func (f fakeKeys) Validate(_ context.Context, raw string) (domain.KeyValidation, error) {
	return f[raw], nil
}

type fakeResolver struct{ doc domain.TenantAIPolicyDoc }

func (f fakeResolver) Resolve(_ context.Context, tenantID string) (domain.TenantAIPolicy, error) {
	return domain.ParsePolicyDoc(tenantID, f.doc)
}

var allThree = domain.TenantAIPolicyDoc{
	DefaultModel: "openai:gpt-4o-mini",
	AllowModels:  []string{"openai:gpt-4o-mini", "deepseek:deepseek-chat", "anthropic:claude-3-5-haiku"},
}

type fixture struct {
	gw     *Gateway
	mr     *miniredis.Miniredis
	router http.Handler
}

func newFixture(t *testing.T, limit int, doc domain.TenantAIPolicyDoc, providers ...provider.Provider) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if providers == nil {
		providers = []provider.Provider{
			provider.NewStatic("openai", "openai: {prompt}", 0.9, 0),
			provider.NewStatic("deepseek", "deepseek: {prompt}", 0.6, 0),
			provider.NewStatic("anthropic", "anthropic: {prompt}", 0.7, 0),
		}
	}

	metrics := NewMetrics(nil, nil)
	gw := NewGateway(
		fakeKeys{testKey: {KeyID: "k1", TenantID: "t1", Scopes: []string{"ai:ask"}, Valid: true}},
		ratelimit.NewLimiter(rdb, zap.NewNop()),
		fakeResolver{doc: doc},
		routing.NewSelector(routing.Roles{Cost: "deepseek", Analytics: "openai", Explanation: "anthropic"}, nil),
		provider.NewInvoker(providers, metrics.ObserveProvider, zap.NewNop()),
		metrics,
		Options{
			RateLimit:       limit,
			RateWindow:      5 * time.Minute,
			ProviderTimeout: time.Second,
			RequestTimeout:  2 * time.Second,
			MaxFanOut:       3,
		},
		zap.NewNop(),
	)
	return &fixture{gw: gw, mr: mr, router: NewRouter(gw)}
}

func (f *fixture) do(t *testing.T, path, key, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestPing(t *testing.T) {
	f := newFixture(t, 2, allThree)

	rec, body := f.do(t, "/v1/ping", testKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "t1", body["tenant_id"])
	assert.Equal(t, []interface{}{"ai:ask"}, body["scopes"])
	assert.Contains(t, body, "timestamp")
	assert.Contains(t, body, "response_time_ms")
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec, _ = f.do(t, "/v1/ping", testKey, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = f.do(t, "/v1/ping", testKey, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2 calls per 5 minutes", body["limit"])
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestPing_Unauthenticated(t *testing.T) {
	f := newFixture(t, 10, allThree)

	for _, key := range []string{"", "aqlhr_unknown"} {
		rec, body := f.do(t, "/v1/ping", key, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, domain.ErrUnauthenticated.Message, body["error"])
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestPing_StoreDownFailsClosed(t *testing.T) {
	f := newFixture(t, 10, allThree)
	f.mr.SetError("LOADING Redis is loading the dataset in memory")

	rec, body := f.do(t, "/v1/ping", testKey, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.ErrInfrastructure.Message, body["error"])
	assert.NotContains(t, rec.Body.String(), "LOADING")
}

func TestDefaultLimitDescription(t *testing.T) {
	g := &Gateway{opts: Options{RateLimit: 600, RateWindow: 5 * time.Minute}}
	assert.Equal(t, "600 calls per 5 minutes", g.LimitDescription())

	assert.Equal(t, "minute", describeWindow(time.Minute))
	assert.Equal(t, "2 hours", describeWindow(2*time.Hour))
	assert.Equal(t, "90 seconds", describeWindow(90*time.Second))
}

func TestAsk_RoutesByRule(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		provider string
	}{
		{"cost vocabulary", `{"message":"Find the cheapest benefits budget"}`, "deepseek"},
		{"analytics module", `{"message":"Show me the numbers","moduleContext":"executive"}`, "openai"},
		{"explanation", `{"message":"Explain end of service rules"}`, "anthropic"},
		{"prompt fallback", `{"prompt":"hello there"}`, "openai"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 100, allThree)
			rec, body := f.do(t, "/v1/ai/ask", testKey, tc.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tc.provider, body["provider"])
			assert.Equal(t, tc.provider, body["selected_provider"])
			assert.EqualValues(t, 1, body["providers_attempted"])
			assert.Equal(t, "t1", body["tenant_id"])
		})
	}
}

func TestAsk_BestOfPicksHighestConfidence(t *testing.T) {
	f := newFixture(t, 100, allThree)

	rec, body := f.do(t, "/v1/ai/ask", testKey, `{"message":"Explain GOSI","strategy":"best_of"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "anthropic", body["selected_provider"])
	assert.Equal(t, "openai", body["provider"])
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, "openai: Explain GOSI", body["response"])
	assert.EqualValues(t, 3, body["providers_attempted"])
	assert.EqualValues(t, 3, body["providers_succeeded"])
}

func TestAsk_NoProviderAvailable(t *testing.T) {
	// Сконфигурирован только провайдер, которого нет в политике
	f := newFixture(t, 100, allThree, provider.NewStatic("mistral", "", 0.5, 0))

	rec, body := f.do(t, "/v1/ai/ask", testKey, `{"message":"hi","strategy":"best_of"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, domain.ErrNoProviderAvailable.Message, body["error"])
}

func TestAsk_BadRequests(t *testing.T) {
	f := newFixture(t, 100, allThree)

	for _, body := range []string{`{`, `{"message":"   "}`, `{"message":"hi","strategy":"random"}`} {
		rec, _ := f.do(t, "/v1/ai/ask", testKey, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}
