package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/admin"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra/auth"
)

const maxActionBody = 256 << 10

type ActionExecutor interface {
	Execute(ctx context.Context, caller *domain.CustomClaims, req admin.Request) admin.ActionResult
	Functions() []string
}

type AdminHandler struct {
	actions ActionExecutor
}

func NewAdminHandler(actions ActionExecutor) *AdminHandler {
	return &AdminHandler{actions: actions}
}

// Execute - POST /v1/admin/actions. Вызывающий берется из токена; его отсутствие
// тоже проходит через обертку, чтобы попытка попала в журнал.
func (h *AdminHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req admin.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil || req.FunctionName == "" {
		writeError(w, http.StatusBadRequest, "functionName is required")
		return
	}

	res := h.actions.Execute(r.Context(), auth.ClaimsFromContext(r.Context()), req)
	writeJSON(w, res.Status(), res)
}

// Functions - GET /v1/admin/functions
func (h *AdminHandler) Functions(w http.ResponseWriter, r *http.Request) {
	if c := auth.ClaimsFromContext(r.Context()); !c.IsAdmin() {
		writeError(w, http.StatusForbidden, domain.ErrForbidden.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"functions": h.actions.Functions()})
}
