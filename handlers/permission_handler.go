package handlers

import (
	"net/http"

	"github.com/camden-git/labelsysbackend/permissions"
)

type PermissionHandler struct{}

// ListRoles serves the statically defined project roles with their permissions.
func (h *PermissionHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permissions.DefinedRoles)
}
