package handler

import (
	"encoding/json"
	"net/http"

	"github.com/carewire/hospital-router/internal/api/response"
	"github.com/carewire/hospital-router/internal/config"
	"github.com/carewire/hospital-router/internal/security"
)

// AuthHandler issues operator tokens for the admin endpoints.
type AuthHandler struct {
	cfg        config.AuthConfig
	jwtManager *security.JWTManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg config.AuthConfig, jwtManager *security.JWTManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, jwtManager: jwtManager}
}

// Login exchanges operator credentials for an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		OperatorID string `json:"operator_id" validate:"required"`
		Password   string `json:"password" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if h.cfg.OperatorPassHash == "" {
		response.ServiceUnavailable(w, "operator login is not configured")
		return
	}
	if input.OperatorID != h.cfg.OperatorID || !security.CheckPassword(input.Password, h.cfg.OperatorPassHash) {
		response.Unauthorized(w, "invalid credentials")
		return
	}

	token, err := h.jwtManager.GenerateToken(input.OperatorID)
	if err != nil {
		response.InternalError(w, "failed to issue token")
		return
	}

	response.OK(w, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int64(h.jwtManager.AccessTokenTTL().Seconds()),
	})
}
