package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/lochel/genealogy/database"
	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/permissions"
	"github.com/lochel/genealogy/repository"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// UserContextKey is the key used to store the user object in the request context.
	UserContextKey ContextKey = "user"
)

// UserFromContext returns the user stored by AuthMiddleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}

// AuthMiddleware verifies the bearer token and, if valid, fetches the user and
// adds them to the request context. Inactive accounts are refused.
func AuthMiddleware(userRepo repository.UserRepository, secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		}, jwt.WithIssuer(jwtIssuer))
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Token expired")
				return
			}
			WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid token")
			return
		}

		var userID uint
		if _, err := fmt.Sscan(claims.Subject, &userID); err != nil {
			logging.L().Warnf("auth: cannot parse user id from token subject '%s': %v", claims.Subject, err)
			WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid user ID in token")
			return
		}

		user, err := userRepo.GetByID(userID)
		if err != nil {
			WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "User not found")
			return
		}
		if !user.IsActive() {
			WriteAPIError(w, http.StatusForbidden, CodeForbidden, "Account is inactive")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission checks that the authenticated user's role grants key.
// It must run after AuthMiddleware.
func RequirePermission(key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "User not found in context")
			return
		}
		if !permissions.Allowed(user.Role, key) {
			WriteAPIError(w, http.StatusForbidden, CodeForbidden, fmt.Sprintf("Forbidden: requires permission '%s'", key))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Permission adapts RequirePermission for chi's r.With.
func Permission(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return RequirePermission(key, next) }
}

// RequestLogger records every request with its final status in the request log.
func RequestLogger(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			entry := database.RequestLogEntry{
				Timestamp:  time.Now().UTC(),
				RemoteAddr: r.RemoteAddr,
				Method:     r.Method,
				Scheme:     scheme,
				FullPath:   r.URL.RequestURI(),
				Status:     status,
			}
			logging.L().Debugf("http: %s %s %d %s", r.Method, entry.FullPath, status, time.Since(start).Round(time.Millisecond))
			if err := database.LogRequest(db, entry); err != nil {
				logging.L().Warnf("requestlog: %v", err)
			}
		})
	}
}
