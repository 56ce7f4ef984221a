package domain

import "time"

type ActivityPoint struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

// AuditLogFilter - фильтр выборки журнала аудита (list_audit_logs)
type AuditLogFilter struct {
	TenantID string    `json:"tenant_id"`
	Action   string    `json:"action,omitempty"`
	Severity string    `json:"severity,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}
