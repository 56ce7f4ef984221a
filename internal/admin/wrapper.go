// Package admin выполняет привилегированные функции консоли: авторизация,
// выполнение с замером времени и безусловная запись в журнал аудита.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"go.uber.org/zap"
)

// Request - вызов функции от имени администратора
type Request struct {
	FunctionName      string `json:"functionName"`
	Parameters        Params `json:"parameters"`
	ActionDescription string `json:"actionDescription,omitempty"`
}

// Call - то, что получает функция: вызывающий уже авторизован, тенант определен
type Call struct {
	Caller   *domain.CustomClaims
	TenantID string
	Params   Params
}

// Output - результат функции и его след в аудите
type Output struct {
	Data interface{}

	// То, что попадает в журнал вместо Data (например, без сырого ключа)
	AuditData interface{}

	ResourceType string
	ResourceID   string
	Before       map[string]interface{}
	After        map[string]interface{}
}

type Function func(ctx context.Context, call Call) (Output, error)

// ActionError - то, что видит клиент при неудаче: статус и короткое сообщение
type ActionError struct {
	Status  int
	Message string
}

func (e *ActionError) Error() string { return e.Message }

// ActionResult: результат функции, дополненный audit_logged и execution_time_ms
type ActionResult struct {
	Result          interface{}
	AuditLogged     bool
	ExecutionTimeMs int64
	Error           *ActionError
}

// Status - HTTP-статус ответа
func (r ActionResult) Status() int {
	if r.Error != nil {
		return r.Error.Status
	}
	return http.StatusOK
}

// MarshalJSON сливает объект-результат с метаполями; не-объект кладется в "result"
func (r ActionResult) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	if r.Result != nil {
		raw, err := json.Marshal(r.Result)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			out = map[string]interface{}{"result": json.RawMessage(raw)}
		}
	}
	out["audit_logged"] = r.AuditLogged
	out["execution_time_ms"] = r.ExecutionTimeMs
	if r.Error != nil {
		out["error"] = r.Error.Message
	}
	return json.Marshal(out)
}

type Wrapper struct {
	functions map[string]Function
	auditor   audit.Logger
	timeout   time.Duration
	logger    *zap.Logger
}

func NewWrapper(auditor audit.Logger, timeout time.Duration, logger *zap.Logger) *Wrapper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Wrapper{
		functions: make(map[string]Function),
		auditor:   auditor,
		timeout:   timeout,
		logger:    logger.Named("admin"),
	}
}

func (w *Wrapper) Register(name string, fn Function) {
	w.functions[name] = fn
}

// Functions - имена зарегистрированных функций (для справки в консоли)
func (w *Wrapper) Functions() []string {
	names := make([]string, 0, len(w.functions))
	for name := range w.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute: Authorizing -> Executing -> Logging -> {Done, Failed}.
// На любом пути, включая панику функции, пишется ровно одна ActionRecord и одна Entry.
func (w *Wrapper) Execute(ctx context.Context, caller *domain.CustomClaims, req Request) (res ActionResult) {
	start := time.Now()
	tenantID := callerTenant(caller)

	var out Output
	var err error

	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("admin function panicked",
				zap.String("function", req.FunctionName),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			out = Output{}
			err = fmt.Errorf("admin function %s panicked: %v", req.FunctionName, p)
		}
		res = w.finish(ctx, caller, tenantID, req, out, err, time.Since(start))
	}()

	// Authorizing
	if caller == nil {
		err = domain.NewError(domain.KindAuthentication, "Authentication required", nil)
		return
	}
	if !caller.IsAdmin() {
		err = domain.NewError(domain.KindAuthorization, "Admin or super admin role required", nil)
		return
	}

	target, err := targetTenant(caller, req.Parameters)
	if err != nil {
		return
	}
	tenantID = target
	if !caller.CanActOn(tenantID) {
		err = domain.NewError(domain.KindAuthorization, "Cannot act on another tenant", nil)
		return
	}

	fn, ok := w.functions[req.FunctionName]
	if !ok {
		err = domain.NewError(domain.KindNotFound, fmt.Sprintf("Unknown function %q", req.FunctionName), nil)
		return
	}

	// Executing
	execCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	out, err = fn(execCtx, Call{Caller: caller, TenantID: tenantID, Params: req.Parameters})
	return
}

// finish - Logging. Журнал не бросает ошибок, поэтому audit_logged всегда true.
func (w *Wrapper) finish(ctx context.Context, caller *domain.CustomClaims, tenantID string, req Request, out Output, err error, took time.Duration) ActionResult {
	entry := audit.Entry{
		ID:           uuid.New().String(),
		TraceID:      audit.TraceID(ctx),
		TenantID:     tenantID,
		ActorID:      "anonymous",
		Action:       req.FunctionName,
		ResourceType: out.ResourceType,
		ResourceID:   out.ResourceID,
		Before:       out.Before,
		After:        out.After,
		Severity:     audit.SeverityInfo,
		Category:     audit.CategoryAdmin,
		Timestamp:    time.Now().UTC(),
	}
	if caller != nil {
		entry.ActorID = caller.UserID
		entry.ActorRole = caller.Role
	}

	record := audit.ActionRecord{
		Entry:      entry,
		ToolName:   req.FunctionName,
		Input:      actionInput(req),
		DurationMs: took.Milliseconds(),
		Success:    err == nil,
	}
	record.ID = uuid.New().String()

	res := ActionResult{ExecutionTimeMs: took.Milliseconds()}
	if err != nil {
		status, msg := domain.PublicError(err)
		entry.Severity = audit.SeverityError
		record.Severity = audit.SeverityError
		record.ErrorMessage = err.Error()
		res.Error = &ActionError{Status: status, Message: msg}

		w.logger.Warn("admin action failed",
			zap.String("function", req.FunctionName),
			zap.String("tenant_id", tenantID),
			zap.String("actor_id", entry.ActorID),
			zap.Int("status", status),
			zap.Error(err),
		)
	} else {
		record.Output = out.Data
		if out.AuditData != nil {
			record.Output = out.AuditData
		}
		res.Result = out.Data
	}

	w.auditor.LogAction(record)
	w.auditor.Log(entry)
	res.AuditLogged = true

	return res
}

func actionInput(req Request) map[string]interface{} {
	in := make(map[string]interface{}, len(req.Parameters)+1)
	for k, v := range req.Parameters {
		in[k] = v
	}
	if req.ActionDescription != "" {
		in["action_description"] = req.ActionDescription
	}
	return in
}

func callerTenant(c *domain.CustomClaims) string {
	if c == nil {
		return ""
	}
	return c.TenantID
}

// targetTenant: параметр tenant_id, иначе тенант вызывающего
func targetTenant(caller *domain.CustomClaims, p Params) (string, error) {
	t, err := p.String("tenant_id")
	if err != nil {
		return "", err
	}
	if t == "" {
		t = caller.TenantID
	}
	if t == "" {
		return "", domain.Invalid("parameter tenant_id is required")
	}
	return t, nil
}
