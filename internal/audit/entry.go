package audit

import "time"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning" // исправленная несогласованная политика и т.п.
	SeverityError   Severity = "error"
)

// Категории журнала
const (
	CategoryAdmin    = "admin_action"
	CategoryAIPolicy = "ai_policy"
	CategoryGateway  = "gateway"
)

// Entry - неизменяемая запись журнала аудита (append-only)
type Entry struct {
	ID           string                 `json:"id"`
	TraceID      string                 `json:"trace_id,omitempty"`
	TenantID     string                 `json:"tenant_id"`
	ActorID      string                 `json:"actor_id"`
	ActorRole    string                 `json:"actor_role"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type,omitempty"` // "" -> NULL
	ResourceID   string                 `json:"resource_id,omitempty"`   // "" -> NULL
	Before       map[string]interface{} `json:"before,omitempty"`
	After        map[string]interface{} `json:"after,omitempty"`
	Severity     Severity               `json:"severity"`
	Category     string                 `json:"category"`
	Timestamp    time.Time              `json:"timestamp"`
}

// ActionRecord - запись о вызове привилегированной функции. Надмножество Entry:
// пишется ровно один раз на каждую попытку вызова, успешную или нет.
type ActionRecord struct {
	Entry
	ToolName     string                 `json:"tool_name"`
	Input        map[string]interface{} `json:"input"`
	Output       interface{}            `json:"output,omitempty"`
	DurationMs   int64                  `json:"duration_ms"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}
