package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lochel/genealogy/database"
	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/permissions"
	"github.com/lochel/genealogy/repository"
)

const defaultRequestLogLimit = 100

type AdminUserHandler struct {
	UserRepo repository.UserRepository
	DB       *sql.DB
}

func NewAdminUserHandler(userRepo repository.UserRepository, db *sql.DB) *AdminUserHandler {
	return &AdminUserHandler{UserRepo: userRepo, DB: db}
}

// UserResponseDTO is a User with the permissions its role grants.
type UserResponseDTO struct {
	ID          uint        `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        models.Role `json:"role"`
	Permissions []string    `json:"permissions"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
}

func toUserResponseDTO(user *models.User) UserResponseDTO {
	return UserResponseDTO{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: permissions.ForRole(user.Role),
		CreatedAt:   user.CreatedAt.Format(http.TimeFormat),
		UpdatedAt:   user.UpdatedAt.Format(http.TimeFormat),
	}
}

func (h *AdminUserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserRepo.ListAll()
	if err != nil {
		logging.L().Errorf("admin: failed to list users: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to list users")
		return
	}
	dtos := make([]UserResponseDTO, len(users))
	for i := range users {
		dtos[i] = toUserResponseDTO(&users[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

type RoleUpdatePayload struct {
	Role string `json:"role"`
}

// SetRole activates, promotes or deactivates an account.
func (h *AdminUserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid user ID")
		return
	}
	var payload RoleUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}
	role, err := models.ParseRole(payload.Role)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	if current, ok := UserFromContext(r.Context()); ok && current.ID == uint(userID) && role != models.RoleAdmin {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "You cannot remove your own admin role")
		return
	}

	if err := h.UserRepo.SetRole(uint(userID), role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "User not found")
			return
		}
		logging.L().Errorf("admin: failed to set role of user %d: %v", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to update user")
		return
	}

	user, err := h.UserRepo.GetByID(uint(userID))
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to reload user")
		return
	}
	logging.L().Infof("admin: user %s is now %s", user.Email, user.Role)
	writeJSON(w, http.StatusOK, toUserResponseDTO(user))
}

// ListRequests returns the most recent entries of the request log.
func (h *AdminUserHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	limit := uint64(defaultRequestLogLimit)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil || n == 0 {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid limit")
			return
		}
		limit = n
	}
	entries, err := database.RecentRequests(h.DB, limit)
	if err != nil {
		logging.L().Errorf("admin: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load request log")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
