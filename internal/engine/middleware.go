package engine

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"go.uber.org/zap"
)

// APIKeyHeader - заголовок с ключом тенанта
const APIKeyHeader = "X-API-Key"

type admissionKey struct{}

type admitted struct {
	Admission
	started time.Time
}

func admissionFrom(ctx context.Context) (admitted, bool) {
	a, ok := ctx.Value(admissionKey{}).(admitted)
	return a, ok
}

// APIKeyMiddleware - допуск на периметре: ключ, затем лимит.
// Заголовки X-RateLimit-* отдаются и при успехе, и при 429.
func (g *Gateway) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		adm, err := g.Admit(r.Context(), r.Header.Get(APIKeyHeader))
		if adm.Rate.Limit > 0 {
			setRateHeaders(w, adm)
		}
		if err != nil {
			g.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), admissionKey{}, admitted{Admission: adm, started: started})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setRateHeaders(w http.ResponseWriter, adm Admission) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(adm.Rate.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(adm.Rate.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(adm.Rate.ResetAt.Unix(), 10))
}

// Instrument - метрики и журнал запросов по имени маршрута
func (g *Gateway) Instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				took := time.Since(start)
				g.metrics.TotalRequests.WithLabelValues(route).Inc()
				g.metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(took.Seconds())

				g.logger.Info("request",
					zap.String("route", route),
					zap.Int("status", status),
					zap.Duration("took", took),
					zap.String("trace_id", audit.TraceID(r.Context())),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
