package handlers

import (
	"net/http"

	"github.com/lochel/genealogy/permissions"
)

type PermissionHandler struct{}

// ListPermissionDefinitions serves the statically defined permission groups.
func (h *PermissionHandler) ListPermissionDefinitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permissions.DefinedPermissionGroups)
}

// Mine lists the permission keys granted to the authenticated user.
func (h *PermissionHandler) Mine(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "User not found in context")
		return
	}
	writeJSON(w, http.StatusOK, permissions.ForRole(user.Role))
}
