package audit

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// TraceHeader - сквозной ID запроса между клиентом, шлюзом и журналом
const TraceHeader = "X-Trace-ID"

type traceKey struct{}

// WithTraceID связывает записи аудита со сквозным ID запроса
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// TracingMiddleware берет X-Trace-ID из запроса или генерирует новый
// и возвращает его клиенту, чтобы тот мог сослаться на свой запрос.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = uuid.New().String()
		}
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(WithTraceID(r.Context(), traceID)))
	})
}
