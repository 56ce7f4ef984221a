package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/console/handler"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов консоли (RS256)
	authValidator auth.TokenValidator

	authHandler  *handler.AuthHandler  // /auth/token
	adminHandler *handler.AdminHandler // /v1/admin
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	adminH *handler.AdminHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		authHandler:   authH,
		adminHandler:  adminH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(audit.TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. АДМИН-ПЕРИМЕТР (RS256 токен) ---
	// Невалидный токен отсекается сразу; запрос без токена доходит до обертки,
	// которая вернет 401 и запишет попытку в журнал.
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, false, s.logger))

		r.Route("/v1/admin", func(r chi.Router) {
			r.Post("/actions", s.adminHandler.Execute)
			r.Get("/functions", s.adminHandler.Functions)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
