package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/api/middleware"
	"github.com/google/uuid"
)

const devTokenTTL = 24 * time.Hour

// AuthHandler issues tokens for local development. It is only mounted when
// AUTH_DEV_LOGIN is enabled; production tokens come from the identity
// provider.
type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	uid, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user_id")
		return
	}
	role := req.Role
	if role == "" {
		role = middleware.RoleUser
	}
	if role != middleware.RoleUser && role != middleware.RoleAdmin {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-role", "role must be user or admin")
		return
	}

	token, err := middleware.IssueToken(uid, role, devTokenTTL)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "auth/token-signing-failed", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"token": token})
}
