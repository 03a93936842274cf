package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/utils"
)

type ExportHandler struct {
	Dir string
}

// Export streams a ZIP archive of the relatives directory, images included.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("relatives-%s.zip", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	// headers are sent with the first archived byte, so failures can only be logged
	if _, err := utils.WriteArchive(w, h.Dir); err != nil {
		logging.L().Errorf("export: %v", err)
	}
}
