package domain

// GatewayStats - сводка по шлюзу для консоли (get_gateway_stats)
type GatewayStats struct {
	TenantID string          `json:"tenant_id,omitempty"` // пусто = все тенанты
	Activity ActivityStats   `json:"activity"`
	Keys     KeyStats        `json:"keys"`
	Quality  QualityStats    `json:"quality"`
	Hourly   []ActivityPoint `json:"hourly_activity"`
}

type ActivityStats struct {
	AdminActions  int64   `json:"admin_actions"`
	FailedActions int64   `json:"failed_actions"`
	Warnings      int64   `json:"policy_warnings"`
	ErrorRatio    float64 `json:"error_ratio"`
}

type KeyStats struct {
	Active     int64 `json:"active"`
	Revoked    int64 `json:"revoked"`
	TotalUsage int64 `json:"total_usage"`
}

type QualityStats struct {
	P95Latency float64 `json:"p95_latency_ms"`
}
