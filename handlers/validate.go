package handlers

import (
	"net/http"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/services"
)

type ValidateHandler struct {
	Store services.Scanner
}

// Validate runs the consistency check over the whole store.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	report, err := services.Validate(h.Store)
	if err != nil {
		logging.L().Errorf("validate: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to scan relatives")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
