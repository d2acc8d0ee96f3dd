package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/permissions"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// UserContextKey is the key used to store the user object in the request context.
	UserContextKey ContextKey = "user"
	// MemberContextKey holds the caller's project membership, nil for admins
	// who are not members.
	MemberContextKey ContextKey = "member"
)

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(UserContextKey).(*models.User)
	return user
}

func currentMember(r *http.Request) *models.ProjectMember {
	member, _ := r.Context().Value(MemberContextKey).(*models.ProjectMember)
	return member
}

// AuthMiddleware verifies the bearer token and adds the user to the request
// context.
func AuthMiddleware(accounts Accounts) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteAPIError(w, http.StatusUnauthorized, string(apperr.CodeUnauthorized), "authorization header required")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				WriteAPIError(w, http.StatusUnauthorized, string(apperr.CodeUnauthorized), "authorization header format must be Bearer {token}")
				return
			}

			user, err := accounts.Authenticate(r.Context(), parts[1])
			if err != nil {
				writeAppError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-admin users. It should be used after AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			WriteAPIError(w, http.StatusUnauthorized, string(apperr.CodeUnauthorized), "not authenticated")
			return
		}
		if !user.IsAdmin {
			WriteAPIError(w, http.StatusForbidden, string(apperr.CodeForbidden), "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireProjectAccess lets admins and project members through and stores
// the membership in the request context. Unknown projects are 404 for admins
// and 403 for everybody else.
func RequireProjectAccess(projects Projects) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r)
			if user == nil {
				WriteAPIError(w, http.StatusUnauthorized, string(apperr.CodeUnauthorized), "not authenticated")
				return
			}
			projectID, ok := uuidParam(w, r, "projectID")
			if !ok {
				return
			}

			member, err := projects.Membership(r.Context(), projectID, user.ID)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			if member == nil && !user.IsAdmin {
				WriteAPIError(w, http.StatusForbidden, string(apperr.CodeForbidden), "not a member of this project")
				return
			}
			if user.IsAdmin {
				if _, err := projects.Get(r.Context(), projectID); err != nil {
					writeAppError(w, r, err)
					return
				}
			}

			ctx := context.WithValue(r.Context(), MemberContextKey, member)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireImageAccess guards per-image routes. Admins and members whose role
// grants allPermission pass; other members need the image assigned to them.
// It should be used after RequireProjectAccess.
func RequireImageAccess(assignments Assignments, allPermission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r)
			if user == nil {
				WriteAPIError(w, http.StatusUnauthorized, string(apperr.CodeUnauthorized), "not authenticated")
				return
			}
			if user.IsAdmin {
				next.ServeHTTP(w, r)
				return
			}
			member := currentMember(r)
			if member == nil {
				WriteAPIError(w, http.StatusForbidden, string(apperr.CodeForbidden), "not a member of this project")
				return
			}
			if permissions.RoleHas(member.Role, allPermission) {
				next.ServeHTTP(w, r)
				return
			}

			imageID, ok := uuidParam(w, r, "imageID")
			if !ok {
				return
			}
			assigned, err := assignments.IsAssignedTo(r.Context(), imageID, user.ID)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			if !assigned {
				WriteAPIError(w, http.StatusForbidden, string(apperr.CodeForbidden), "image is not assigned to you")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger writes one zap line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logger.L().Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		}()
		next.ServeHTTP(ww, r)
	})
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
