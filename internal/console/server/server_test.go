package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/admin"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit/audittest"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/console/handler"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra/auth"
	"go.uber.org/zap"
)

type fakeIssuer struct{}

func (fakeIssuer) GenerateToken(_ context.Context, email, password string) (*domain.TokenResponse, error) {
	if email == "admin@aqlhr.test" && password == "pw" {
		return &domain.TokenResponse{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 60}, nil
	}
	return nil, auth.ErrInvalidCredentials
}

type fixture struct {
	srv *ConsoleServer
	key *rsa.PrivateKey
	rec *audittest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	rec := &audittest.Recorder{}
	w := admin.NewWrapper(rec, time.Second, zap.NewNop())
	w.Register("whoami", func(_ context.Context, call admin.Call) (admin.Output, error) {
		return admin.Output{Data: map[string]string{"tenant_id": call.TenantID, "user_id": call.Caller.UserID}}, nil
	})

	srv := NewConsoleServer(
		zap.NewNop(),
		auth.NewRS256Validator(&key.PublicKey, "aqlhr-console"),
		handler.NewAuthHandler(fakeIssuer{}, zap.NewNop()),
		handler.NewAdminHandler(w),
	)
	return &fixture{srv: srv, key: key, rec: rec}
}

func (f *fixture) token(t *testing.T, role, tenant string) string {
	t.Helper()
	c := &domain.CustomClaims{
		UserID:   "u1",
		TenantID: tenant,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "aqlhr-console",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(f.key)
	require.NoError(t, err)
	return "Bearer " + s
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/auth/token", "", `{"email":"admin@aqlhr.test","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", decode(t, rec)["access_token"])

	rec = f.do(http.MethodPost, "/auth/token", "", `{"email":"admin@aqlhr.test","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/auth/token", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAction(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/admin/actions", f.token(t, domain.RoleAdmin, "t1"),
		`{"functionName":"whoami","parameters":{},"actionDescription":"check"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "t1", body["tenant_id"])
	assert.Equal(t, true, body["audit_logged"])
	assert.Contains(t, body, "execution_time_ms")
	assert.Len(t, f.rec.Actions(), 1)
	assert.Len(t, f.rec.Entries(), 1)
	assert.NotEmpty(t, f.rec.Actions()[0].TraceID)
}

func TestAdminAction_Denied(t *testing.T) {
	f := newFixture(t)

	// без токена: 401 от обертки, попытка в журнале
	rec := f.do(http.MethodPost, "/v1/admin/actions", "", `{"functionName":"whoami"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, decode(t, rec)["audit_logged"])

	// не администратор: 403
	rec = f.do(http.MethodPost, "/v1/admin/actions", f.token(t, domain.RoleEmployee, "t1"), `{"functionName":"whoami"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, true, decode(t, rec)["audit_logged"])

	assert.Len(t, f.rec.Actions(), 2)
	assert.Len(t, f.rec.Entries(), 2)

	// битый токен режется middleware
	rec = f.do(http.MethodPost, "/v1/admin/actions", "Bearer garbage", `{"functionName":"whoami"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, f.rec.Actions(), 2)
}

func TestAdminFunctions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/admin/functions", f.token(t, domain.RoleSuperAdmin, ""), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"whoami"}, decode(t, rec)["functions"])

	rec = f.do(http.MethodGet, "/v1/admin/functions", f.token(t, domain.RoleHRManager, "t1"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
