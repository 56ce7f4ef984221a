package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/infra/auth"
	"go.uber.org/zap"
)

type TokenIssuer interface {
	GenerateToken(ctx context.Context, email, password string) (*domain.TokenResponse, error)
}

type AuthHandler struct {
	issuer TokenIssuer
	logger *zap.Logger
}

func NewAuthHandler(issuer TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{issuer: issuer, logger: logger.Named("auth-handler")}
}

// Login - POST /auth/token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.issuer.GenerateToken(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.logger.Error("token issuing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, domain.ErrInfrastructure.Message)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
