package engine

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
)

// NewRouter собирает HTTP-поверхность шлюза
func NewRouter(g *Gateway) http.Handler {
	r := chi.NewRouter()

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(audit.TracingMiddleware)

	// --- 2. Публичные роуты ---
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 3. Периметр API-ключей: ключ -> лимит -> вызов ---
	r.Route("/v1", func(r chi.Router) {
		r.With(g.Instrument("ping"), g.APIKeyMiddleware).Post("/ping", g.HandlePing)
		r.With(g.Instrument("ask"), g.APIKeyMiddleware).Post("/ai/ask", g.HandleAsk)
	})

	return r
}
