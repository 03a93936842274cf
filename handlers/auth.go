package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/repository"
)

const (
	jwtExpirationHours = 24
	jwtIssuer          = "genealogy"
	minPasswordLength  = 8
)

type AuthHandler struct {
	UserRepo repository.UserRepository
	Secret   []byte
}

func NewAuthHandler(userRepo repository.UserRepository, secret []byte) *AuthHandler {
	return &AuthHandler{UserRepo: userRepo, Secret: secret}
}

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// IssueToken signs a bearer token for user.
func IssueToken(secret []byte, user *models.User, now time.Time) (string, time.Time, error) {
	expirationTime := now.Add(jwtExpirationHours * time.Hour)
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(user.ID),
		ExpiresAt: jwt.NewNumericDate(expirationTime),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    jwtIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, expirationTime, nil
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}

	user, err := h.UserRepo.GetByEmail(payload.Email)
	if err != nil || !user.CheckPassword(payload.Password) {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid email or password")
		return
	}
	if !user.IsActive() {
		WriteAPIError(w, http.StatusForbidden, CodeForbidden, "Account has not been activated yet")
		return
	}

	tokenString, expiresAt, err := IssueToken(h.Secret, user, time.Now())
	if err != nil {
		logging.L().Errorf("auth: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     tokenString,
		User:      *user,
		ExpiresAt: expiresAt,
	})
}

type SignupPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an inactive account. An admin has to change its role
// before it can log in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload SignupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}

	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" || !strings.Contains(payload.Email, "@") {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Name and a valid email are required")
		return
	}
	if len(payload.Password) < minPasswordLength {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
		return
	}

	newUser := &models.User{
		Name:  payload.Name,
		Email: payload.Email,
		Role:  models.RoleInactive,
	}
	if err := newUser.SetPassword(payload.Password); err != nil {
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to hash password")
		return
	}

	err := h.UserRepo.CreateCapped(newUser, repository.MaxUsers)
	switch {
	case errors.Is(err, repository.ErrUserExists):
		WriteAPIError(w, http.StatusConflict, CodeConflict, "An account with this email already exists")
		return
	case errors.Is(err, repository.ErrUserLimit):
		WriteAPIError(w, http.StatusForbidden, CodeLimitReached, "No more accounts can be created")
		return
	case err != nil:
		logging.L().Errorf("auth: failed to create user %s: %v", payload.Email, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		return
	}

	logging.L().Infof("auth: new account %s awaiting activation", newUser.Email)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Account created. An administrator has to activate it before you can log in."})
}

// CurrentUser returns the authenticated user. It must run behind AuthMiddleware.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Could not retrieve user from context")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
