package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/media"
	"github.com/lochel/genealogy/repository"
	"github.com/lochel/genealogy/services"
	"github.com/lochel/genealogy/utils"
)

const portraitFormField = "image"

type RelativeHandler struct {
	Service        *services.RelativeService
	Processor      *media.Processor
	MaxUploadBytes int64
}

func NewRelativeHandler(service *services.RelativeService, processor *media.Processor, maxUploadBytes int64) *RelativeHandler {
	return &RelativeHandler{Service: service, Processor: processor, MaxUploadBytes: maxUploadBytes}
}

// List returns every relative ordered by birthday, newest first unless
// order=asc is given.
func (h *RelativeHandler) List(w http.ResponseWriter, r *http.Request) {
	order := strings.ToLower(r.URL.Query().Get("order"))
	if order != "" && order != "asc" && order != "desc" {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "order must be asc or desc")
		return
	}
	relatives, err := h.Service.List(order != "asc")
	if err != nil {
		logging.L().Errorf("relatives: failed to list: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load relatives")
		return
	}
	writeJSON(w, http.StatusOK, relatives)
}

func (h *RelativeHandler) Latest(w http.ResponseWriter, r *http.Request) {
	relatives, err := h.Service.Latest()
	if err != nil {
		logging.L().Errorf("relatives: failed to load latest: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load relatives")
		return
	}
	writeJSON(w, http.StatusOK, relatives)
}

func (h *RelativeHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Query parameter 'q' is required")
		return
	}
	relatives, err := h.Service.Search(query)
	if err != nil {
		logging.L().Errorf("relatives: search %q failed: %v", query, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to search relatives")
		return
	}
	writeJSON(w, http.StatusOK, relatives)
}

// Get returns the page model of a relative. Unknown ids return an empty
// record with exists=false so the client can offer to create it.
func (h *RelativeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := repository.ValidateID(id); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidID, err.Error())
		return
	}
	page, err := h.Service.Page(id)
	if err != nil {
		logging.L().Errorf("relatives: failed to load %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load relative")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type rejectedEditResponse struct {
	Errors   []APIErrorDetail     `json:"errors"`
	Warnings []repository.Warning `json:"warnings"`
}

func (h *RelativeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := repository.ValidateID(id); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidID, err.Error())
		return
	}

	var form services.EditForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.Service.Edit(id, form)
	switch {
	case err == nil:
		if user, ok := UserFromContext(r.Context()); ok {
			logging.L().Infof("relatives: %s edited by %s", result.Relative.ID, user.Email)
		}
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, repository.ErrInvalidID):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidID, err.Error())
	case errors.Is(err, services.ErrInvalidInput):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, repository.ErrConflict):
		WriteAPIError(w, http.StatusConflict, CodeConflict, "A relative with this id already exists")
	case errors.Is(err, services.ErrEditRejected):
		writeJSON(w, http.StatusUnprocessableEntity, rejectedEditResponse{
			Errors:   []APIErrorDetail{{Code: CodeRejected, Status: "422", Detail: "Edit references unknown relatives"}},
			Warnings: result.Warnings,
		})
	default:
		logging.L().Errorf("relatives: failed to edit %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to save relative")
	}
}

// UploadImage stores a portrait sent as multipart field "image" and points
// the record at it.
func (h *RelativeHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := repository.ValidateID(id); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidID, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		WriteAPIError(w, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "Upload too large or malformed")
		return
	}
	file, header, err := r.FormFile(portraitFormField)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Missing form field 'image'")
		return
	}
	defer file.Close()

	if !utils.IsRasterImage(header.Filename) {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Unsupported image type")
		return
	}

	filename, err := h.Processor.ProcessPortrait(file)
	if err != nil {
		logging.L().Warnf("relatives: portrait upload for %s rejected: %v", id, err)
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Could not process image")
		return
	}

	rel, err := h.Service.SetImage(id, filename)
	if err != nil {
		if delErr := h.Processor.Portraits().Delete(filename); delErr != nil {
			logging.L().Warnf("relatives: failed to remove orphaned portrait %s: %v", filename, delErr)
		}
		if errors.Is(err, repository.ErrNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Relative not found")
			return
		}
		logging.L().Errorf("relatives: failed to set image of %s: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to save relative")
		return
	}
	writeJSON(w, http.StatusOK, rel)
}
