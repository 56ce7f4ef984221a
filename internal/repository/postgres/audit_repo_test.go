package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

func TestBuildInsert(t *testing.T) {
	q, args := buildInsert("t", []string{"a", "b"}, [][]any{{1, 2}, {3, 4}})
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4)", q)
	assert.Equal(t, []any{1, 2, 3, 4}, args)
}

func TestJSONArg(t *testing.T) {
	var m map[string]interface{}
	assert.Nil(t, jsonArg(m))
	assert.Nil(t, jsonArg(nil))
	assert.Equal(t, []byte(`{"a":1}`), jsonArg(map[string]int{"a": 1}))
}

func TestWriteAuditBatch(t *testing.T) {
	mock := newMock(t)
	repo := NewAuditRepo(mock)

	now := time.Now()
	entries := []audit.Entry{
		{ID: "e1", TenantID: "t1", ActorID: "system", ActorRole: "system", Action: "policy_clamped", Severity: audit.SeverityWarning, Category: audit.CategoryAIPolicy, Timestamp: now},
		{ID: "e2", TenantID: "t1", ActorID: "u1", ActorRole: "admin", Action: "create_api_key", ResourceType: "api_key", ResourceID: "k1", After: map[string]interface{}{"name": "ci"}, Severity: audit.SeverityInfo, Category: audit.CategoryAdmin, Timestamp: now},
	}

	args := make([]interface{}, 26)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`INSERT INTO audit_logs \(id, trace_id, .+\) VALUES \(\$1, .+\), \(\$14, .+\$26\)`).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	assert.NoError(t, repo.WriteAuditBatch(context.Background(), entries))
	assert.NoError(t, repo.WriteAuditBatch(context.Background(), nil), "empty batch is a no-op")
}

func TestWriteActionBatch(t *testing.T) {
	mock := newMock(t)
	repo := NewAuditRepo(mock)

	rec := audit.ActionRecord{
		Entry:        audit.Entry{ID: "a1", TenantID: "t1", ActorID: "u1", ActorRole: "admin", Action: "revoke_api_key", Severity: audit.SeverityError, Category: audit.CategoryAdmin, Timestamp: time.Now()},
		ToolName:     "revoke_api_key",
		Input:        map[string]interface{}{"key_id": "k1"},
		DurationMs:   12,
		Success:      false,
		ErrorMessage: "Not found",
	}

	args := make([]interface{}, len(actionColumns))
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`INSERT INTO agent_action_logs`).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.WriteActionBatch(context.Background(), []audit.ActionRecord{rec}))
}

func TestFetchAuditLogs(t *testing.T) {
	mock := newMock(t)
	repo := NewAuditRepo(mock)

	now := time.Now()
	mock.ExpectQuery(`FROM audit_logs\s+WHERE tenant_id = \$1 AND severity = \$2\s+ORDER BY created_at DESC\s+LIMIT \$3`).
		WithArgs("t1", "warning", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "trace_id", "tenant_id", "actor_id", "actor_role", "action", "resource_type", "resource_id", "before", "after", "severity", "category", "created_at"}).
			AddRow("e1", "", "t1", "system", "system", "policy_clamped", "tenant_ai_policy", "t1",
				map[string]interface{}{"default_model": "anthropic"}, map[string]interface{}{"default_model": "openai"}, "warning", "ai_policy", now))

	logs, err := repo.FetchAuditLogs(context.Background(), domain.AuditLogFilter{TenantID: "t1", Severity: "warning"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.SeverityWarning, logs[0].Severity)
	assert.Equal(t, "openai", logs[0].After["default_model"])
}

func TestGetGatewayStats(t *testing.T) {
	mock := newMock(t)
	repo := NewAuditRepo(mock)

	mock.ExpectQuery(`FROM agent_action_logs`).WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "failed", "p95"}).AddRow(int64(10), int64(2), 120.5))
	mock.ExpectQuery(`FROM audit_logs`).WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"warnings"}).AddRow(int64(1)))
	mock.ExpectQuery(`FROM api_keys`).WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"active", "revoked", "usage"}).AddRow(int64(3), int64(1), int64(900)))
	mock.ExpectQuery(`date_trunc`).WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"hour", "count"}).AddRow("2026-10-19 10:00", int64(10)))

	s, err := repo.GetGatewayStats(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, int64(10), s.Activity.AdminActions)
	assert.InDelta(t, 0.2, s.Activity.ErrorRatio, 1e-9)
	assert.Equal(t, int64(1), s.Activity.Warnings)
	assert.Equal(t, int64(3), s.Keys.Active)
	assert.Equal(t, 120.5, s.Quality.P95Latency)
	require.Len(t, s.Hourly, 1)
}
