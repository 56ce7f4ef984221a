package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"go.uber.org/zap"
)

const maxAskBody = 64 << 10

type PingResponse struct {
	Status         string   `json:"status"`
	Message        string   `json:"message"`
	Timestamp      string   `json:"timestamp"`
	TenantID       string   `json:"tenant_id"`
	Scopes         []string `json:"scopes"`
	ResponseTimeMs int64    `json:"response_time_ms"`
}

// HandlePing - POST /v1/ping: проверка ключа и лимита без обращения к провайдерам
func (g *Gateway) HandlePing(w http.ResponseWriter, r *http.Request) {
	adm, ok := admissionFrom(r.Context())
	if !ok {
		g.writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	writeJSON(w, http.StatusOK, PingResponse{
		Status:         "ok",
		Message:        "AqlHR AI gateway is reachable",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		TenantID:       adm.Key.TenantID,
		Scopes:         adm.Key.Scopes,
		ResponseTimeMs: time.Since(adm.started).Milliseconds(),
	})
}

// HandleAsk - POST /v1/ai/ask: полный конвейер маршрутизации
func (g *Gateway) HandleAsk(w http.ResponseWriter, r *http.Request) {
	adm, ok := admissionFrom(r.Context())
	if !ok {
		g.writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req domain.AIRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody)).Decode(&req); err != nil {
		g.writeError(w, r, domain.Invalid("invalid request body"))
		return
	}

	resp, err := g.Ask(r.Context(), adm.Key, req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError отдает клиенту только статус и короткое сообщение.
// Внутренние причины остаются в логе.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	g.recordError(err)
	status, msg := domain.PublicError(err)

	body := map[string]string{"error": msg}
	if errors.Is(err, domain.ErrRateLimited) {
		body["limit"] = g.LimitDescription()
	}

	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", audit.TraceID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
