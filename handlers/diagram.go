package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/media"
	"github.com/lochel/genealogy/repository"
	"github.com/lochel/genealogy/workers"
)

// RenderQueue is the part of the diagram worker pool the HTTP layer uses.
type RenderQueue interface {
	Queue(id, reason string) bool
	Status(id string) (workers.RenderStatus, bool)
}

type DiagramHandler struct {
	Relatives repository.RelativeRepository
	Queue     RenderQueue
	Store     media.Store
}

func NewDiagramHandler(relatives repository.RelativeRepository, queue RenderQueue, store media.Store) *DiagramHandler {
	return &DiagramHandler{Relatives: relatives, Queue: queue, Store: store}
}

func (h *DiagramHandler) relativeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := repository.ValidateID(id); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidID, err.Error())
		return "", false
	}
	return id, true
}

// Render queues regeneration of the diagram of a relative.
func (h *DiagramHandler) Render(w http.ResponseWriter, r *http.Request) {
	id, ok := h.relativeID(w, r)
	if !ok {
		return
	}
	if _, err := h.Relatives.Find(id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Relative not found")
			return
		}
		logging.L().Errorf("diagrams: failed to load %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load relative")
		return
	}

	// false also means a job for id is already waiting, which is fine
	h.Queue.Queue(id, "requested")
	status, _ := h.Queue.Status(id)
	writeJSON(w, http.StatusAccepted, status)
}

// Status reports the outcome of the last render of a relative's diagram.
func (h *DiagramHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.relativeID(w, r)
	if !ok {
		return
	}
	status, found := h.Queue.Status(id)
	if !found {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "No diagram has been rendered for this relative since startup")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Image streams the stored family diagram PNG.
func (h *DiagramHandler) Image(w http.ResponseWriter, r *http.Request) {
	id, ok := h.relativeID(w, r)
	if !ok {
		return
	}
	rc, info, err := h.Store.Get(media.DiagramPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Diagram not rendered yet")
			return
		}
		logging.L().Errorf("diagrams: failed to open diagram of %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load diagram")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	if _, err := io.Copy(w, rc); err != nil {
		logging.L().Warnf("diagrams: failed to stream diagram of %s: %v", id, err)
	}
}
