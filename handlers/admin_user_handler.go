package handlers

import (
	"net/http"

	"github.com/camden-git/labelsysbackend/services"
)

type AdminUserHandler struct {
	Accounts Accounts
}

func NewAdminUserHandler(accounts Accounts) *AdminUserHandler {
	return &AdminUserHandler{Accounts: accounts}
}

func (h *AdminUserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Accounts.ListUsers(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminUserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var payload services.NewUser
	if !decodeJSON(w, r, &payload) {
		return
	}
	user, err := h.Accounts.CreateUser(r.Context(), payload)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// UpdateUser toggles the active and admin flags of a user
func (h *AdminUserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	var payload services.UserUpdate
	if !decodeJSON(w, r, &payload) {
		return
	}
	user, err := h.Accounts.UpdateUser(r.Context(), userID, payload)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
