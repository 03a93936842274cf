package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lochel/genealogy/database"
	"github.com/lochel/genealogy/logging"
)

const maxContactMessageLength = 5000

type ContactHandler struct {
	DB *sql.DB
}

type ContactPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Submit stores a message from the public contact form.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var payload ContactPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}
	msg := database.ContactMessage{
		Date:    time.Now().UTC(),
		Name:    strings.TrimSpace(payload.Name),
		Email:   strings.TrimSpace(payload.Email),
		Message: strings.TrimSpace(payload.Message),
	}
	if msg.Name == "" || msg.Message == "" || !strings.Contains(msg.Email, "@") {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Name, a valid email and a message are required")
		return
	}
	if len(msg.Message) > maxContactMessageLength {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Message too long")
		return
	}

	id, err := database.AddContactMessage(h.DB, msg)
	if errors.Is(err, database.ErrContactLimit) {
		WriteAPIError(w, http.StatusServiceUnavailable, CodeLimitReached, "The contact inbox is full, please try again later")
		return
	}
	if err != nil {
		logging.L().Errorf("contact: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to store message")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	messages, err := database.ListContactMessages(h.DB)
	if err != nil {
		logging.L().Errorf("contact: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
