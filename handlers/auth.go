package handlers

import (
	"net/http"
	"time"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/models"
)

type AuthHandler struct {
	Accounts Accounts
}

func NewAuthHandler(accounts Accounts) *AuthHandler {
	return &AuthHandler{Accounts: accounts}
}

type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Username == "" || payload.Password == "" {
		WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "username and password are required")
		return
	}

	token, expiresAt, user, err := h.Accounts.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user, ExpiresAt: expiresAt})
}

// CurrentUser returns the authenticated user. It should be protected by
// AuthMiddleware.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		WriteAPIError(w, http.StatusUnauthorized, string(apperr.CodeUnauthorized), "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
