package domain

import (
	"strings"
	"time"
)

// Стратегии обработки запроса
const (
	StrategySingle = "single"  // только выбранный провайдер
	StrategyBestOf = "best_of" // выбранный + остальные разрешенные, побеждает максимальная уверенность
)

// AIRequest - вход маршрутизации. TenantID в теле игнорируется: тенант берется из ключа.
type AIRequest struct {
	Message       string `json:"message"`
	Prompt        string `json:"prompt,omitempty"`
	ModuleContext string `json:"moduleContext"`
	PageType      string `json:"pageType"`
	Intent        string `json:"intent"`
	Language      string `json:"language"`
	TenantID      string `json:"tenantId"`
	Strategy      string `json:"strategy,omitempty"`
}

// Text возвращает текст запроса (message приоритетнее prompt)
func (r AIRequest) Text() string {
	if s := strings.TrimSpace(r.Message); s != "" {
		return s
	}
	return strings.TrimSpace(r.Prompt)
}

func (r AIRequest) Context() RoutingContext {
	return RoutingContext{
		ModuleContext: r.ModuleContext,
		PageType:      r.PageType,
		Intent:        r.Intent,
		Language:      r.Language,
	}
}

// RoutingContext - контекст страницы, из которой пришел запрос
type RoutingContext struct {
	ModuleContext string `json:"moduleContext"`
	PageType      string `json:"pageType"`
	Intent        string `json:"intent"`
	Language      string `json:"language"`
}

// ProviderResponse - эфемерный результат одного вызова провайдера
type ProviderResponse struct {
	Provider   ProviderID    `json:"provider"`
	Model      string        `json:"model"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"` // [0,1]
	Latency    time.Duration `json:"-"`
	Success    bool          `json:"success"`
	Order      int           `json:"-"` // позиция в исходном списке запроса (tie-break)
}

// AskResponse - ответ /v1/ai/ask
type AskResponse struct {
	Provider     ProviderID `json:"provider"`
	Model        string     `json:"model"`
	Response     string     `json:"response"`
	Confidence   float64    `json:"confidence"`
	Selected     ProviderID `json:"selected_provider"`
	Attempted    int        `json:"providers_attempted"`
	Succeeded    int        `json:"providers_succeeded"`
	TenantID     string     `json:"tenant_id"`
	ResponseTime int64      `json:"response_time_ms"`
}
