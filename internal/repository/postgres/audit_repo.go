package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

// AuditRepo - append-only хранилище журнала аудита и записей о вызовах функций
type AuditRepo struct {
	db DBTX
}

func NewAuditRepo(db DBTX) *AuditRepo {
	return &AuditRepo{db: db}
}

var auditColumns = []string{
	"id", "trace_id", "tenant_id", "actor_id", "actor_role", "action",
	"resource_type", "resource_id", "before", "after", "severity", "category", "created_at",
}

var actionColumns = []string{
	"id", "trace_id", "tenant_id", "actor_id", "actor_role", "action",
	"resource_type", "resource_id", "tool_name", "input", "output",
	"duration_ms", "success", "error_message", "severity", "category", "created_at",
}

// WriteAuditBatch - пакетная вставка одним запросом
func (r *AuditRepo) WriteAuditBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{
			e.ID, nullable(e.TraceID), e.TenantID, e.ActorID, e.ActorRole, e.Action,
			nullable(e.ResourceType), nullable(e.ResourceID), jsonArg(e.Before), jsonArg(e.After),
			string(e.Severity), e.Category, e.Timestamp,
		})
	}

	query, args := buildInsert("audit_logs", auditColumns, rows)
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}

func (r *AuditRepo) WriteActionBatch(ctx context.Context, records []audit.ActionRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(records))
	for _, a := range records {
		rows = append(rows, []any{
			a.ID, nullable(a.TraceID), a.TenantID, a.ActorID, a.ActorRole, a.Action,
			nullable(a.ResourceType), nullable(a.ResourceID), a.ToolName, jsonArg(a.Input), jsonArg(a.Output),
			a.DurationMs, a.Success, nullable(a.ErrorMessage), string(a.Severity), a.Category, a.Timestamp,
		})
	}

	query, args := buildInsert("agent_action_logs", actionColumns, rows)
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: failed to write action batch: %w", err)
	}
	return nil
}

// FetchAuditLogs - выборка журнала тенанта, новые записи первыми
func (r *AuditRepo) FetchAuditLogs(ctx context.Context, f domain.AuditLogFilter) ([]audit.Entry, error) {
	where := []string{"tenant_id = $1"}
	args := []any{f.TenantID}

	if f.Action != "" {
		args = append(args, f.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		where = append(where, fmt.Sprintf("severity = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, COALESCE(trace_id, ''), tenant_id, actor_id, actor_role, action,
		       COALESCE(resource_type, ''), COALESCE(resource_id, ''), before, after, severity, category, created_at
		FROM audit_logs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`, strings.Join(where, " AND "), len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch audit logs: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var severity string
		if err := rows.Scan(
			&e.ID, &e.TraceID, &e.TenantID, &e.ActorID, &e.ActorRole, &e.Action,
			&e.ResourceType, &e.ResourceID, &e.Before, &e.After, &severity, &e.Category, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit log: %w", err)
		}
		e.Severity = audit.Severity(severity)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate audit logs: %w", err)
	}
	return out, nil
}

// GetGatewayStats - сводка за последние 24 часа. tenantID == "" - по всем тенантам.
func (r *AuditRepo) GetGatewayStats(ctx context.Context, tenantID string) (*domain.GatewayStats, error) {
	s := &domain.GatewayStats{TenantID: tenantID}

	// PERCENTILE_CONT дает честный P95 по длительности вызовов функций
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM agent_action_logs
		WHERE ($1::text = '' OR tenant_id = $1) AND created_at > NOW() - INTERVAL '24 hours'`, tenantID).Scan(
		&s.Activity.AdminActions, &s.Activity.FailedActions, &s.Quality.P95Latency,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate actions: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE severity = 'warning')
		FROM audit_logs
		WHERE ($1::text = '' OR tenant_id = $1) AND created_at > NOW() - INTERVAL '24 hours'`, tenantID).Scan(
		&s.Activity.Warnings,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate warnings: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT revoked),
			COUNT(*) FILTER (WHERE revoked),
			COALESCE(SUM(usage_count), 0)
		FROM api_keys
		WHERE ($1::text = '' OR tenant_id = $1)`, tenantID).Scan(
		&s.Keys.Active, &s.Keys.Revoked, &s.Keys.TotalUsage,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate keys: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT to_char(date_trunc('hour', created_at), 'YYYY-MM-DD HH24:00'), COUNT(*)
		FROM agent_action_logs
		WHERE ($1::text = '' OR tenant_id = $1) AND created_at > NOW() - INTERVAL '24 hours'
		GROUP BY 1
		ORDER BY 1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to build hourly activity: %w", err)
	}
	defer rows.Close()

	s.Hourly = []domain.ActivityPoint{}
	for rows.Next() {
		var p domain.ActivityPoint
		if err := rows.Scan(&p.Hour, &p.Count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan hourly activity: %w", err)
		}
		s.Hourly = append(s.Hourly, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate hourly activity: %w", err)
	}

	if s.Activity.AdminActions > 0 {
		s.Activity.ErrorRatio = float64(s.Activity.FailedActions) / float64(s.Activity.AdminActions)
	}
	return s, nil
}

// buildInsert строит multi-row INSERT: ($1, $2, ...), ($n+1, ...)
func buildInsert(table string, columns []string, rows [][]any) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+j+1)
		}
		sb.WriteByte(')')
		args = append(args, row...)
	}
	return sb.String(), args
}

// jsonArg: nil-значения (включая типизированный nil map) пишутся как SQL NULL
func jsonArg(v any) any {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return b
}
