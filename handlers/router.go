package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/permissions"
)

// RouterDeps is everything the HTTP API is built from.
type RouterDeps struct {
	Accounts    Accounts
	Projects    Projects
	Classes     Classes
	Assignments Assignments
	Images      Images
	Annotations Annotations
	Splitter    Splitter
	Exporter    Exporter

	DefaultTrainRatio  float64
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration

	Realtime http.Handler // mounted at /ws, optional
	Metrics  http.Handler // mounted at /metrics, optional
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	if d.Realtime != nil {
		r.With(tokenFromQuery, AuthMiddleware(d.Accounts), realtimeProjectScope(d.Projects)).Get("/ws", d.Realtime.ServeHTTP)
	}

	auth := NewAuthHandler(d.Accounts)
	adminUsers := NewAdminUserHandler(d.Accounts)
	perms := &PermissionHandler{}
	projects := NewProjectHandler(d.Projects, d.Assignments)
	classes := NewClassHandler(d.Classes)
	images := NewImageHandler(d.Images, d.Assignments, d.Splitter, d.Projects)
	annotations := NewAnnotationHandler(d.Annotations, d.Images)
	export := NewExportHandler(d.Splitter, d.Exporter, d.DefaultTrainRatio)

	requireAuth := AuthMiddleware(d.Accounts)
	projectAccess := RequireProjectAccess(d.Projects)
	canView := RequireImageAccess(d.Assignments, permissions.ImageViewAll)
	canEdit := RequireImageAccess(d.Assignments, permissions.AnnotationEditAll)

	r.Route("/api", func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(timeoutExceptStreams(d.RequestTimeout))
		}
		r.Post("/auth/login", auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/auth/me", auth.CurrentUser)
			r.Get("/roles", perms.ListRoles)

			r.Route("/admin/users", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", adminUsers.ListUsers)
				r.Post("/", adminUsers.CreateUser)
				r.Patch("/{userID}", adminUsers.UpdateUser)
			})

			r.Get("/projects", projects.ListProjects)
			r.With(RequireAdmin).Post("/projects", projects.CreateProject)

			r.Route("/projects/{projectID}", func(r chi.Router) {
				r.Use(projectAccess)

				r.Get("/", projects.GetProject)
				r.With(RequireAdmin).Put("/", projects.UpdateProject)
				r.With(RequireAdmin).Delete("/", projects.DeleteProject)

				r.Get("/members", projects.ListMembers)
				r.With(RequireAdmin).Post("/members", projects.AddMember)
				r.With(RequireAdmin).Delete("/members/{userID}", projects.RemoveMember)

				r.Get("/classes", classes.ListClasses)
				r.Group(func(r chi.Router) {
					r.Use(RequireAdmin)
					r.Post("/classes", classes.CreateClass)
					r.Put("/classes/{classID}", classes.UpdateClass)
					r.Delete("/classes/{classID}", classes.DeleteClass)
				})

				r.Route("/images", func(r chi.Router) {
					r.Get("/", images.ListImages)
					r.Get("/mine", images.MyImages)
					r.Group(func(r chi.Router) {
						r.Use(RequireAdmin)
						r.Post("/", images.UploadImages)
						r.Get("/unassigned", images.ListUnassigned)
						r.Get("/stats", images.Stats)
						r.Get("/stats.xlsx", images.StatsWorkbook)
						r.Post("/assign", images.Assign)
						r.Post("/auto-assign", images.AutoAssign)
					})

					r.Route("/{imageID}", func(r chi.Router) {
						r.With(canView).Get("/", images.GetImage)
						r.With(canView).Get("/file", images.ServeFile)
						r.With(canView).Get("/thumbnail", images.ServeThumbnail)
						r.With(RequireAdmin).Delete("/", images.DeleteImage)
						r.With(RequireAdmin).Patch("/split", images.SetSplit)
						r.With(RequireAdmin).Delete("/assignment", images.Unassign)

						r.With(canView).Get("/annotations", annotations.ListAnnotations)
						r.Group(func(r chi.Router) {
							r.Use(canEdit)
							r.Post("/annotations", annotations.CreateAnnotation)
							r.Put("/annotations", annotations.ReplaceAnnotations)
							r.Put("/annotations/{annotationID}", annotations.UpdateAnnotation)
							r.Delete("/annotations/{annotationID}", annotations.DeleteAnnotation)
						})
					})
				})

				r.Route("/export", func(r chi.Router) {
					r.Use(RequireAdmin)
					r.Post("/split", export.AutoSplit)
					r.Post("/download", export.Download)
				})
			})
		})
	})

	return r
}

// timeoutExceptStreams applies a request deadline to every route but the
// archive download and image uploads, whose duration grows with the data.
func timeoutExceptStreams(d time.Duration) func(http.Handler) http.Handler {
	timeout := middleware.Timeout(d)
	return func(next http.Handler) http.Handler {
		limited := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := strings.TrimSuffix(r.URL.Path, "/")
			if strings.HasSuffix(p, "/export/download") || (r.Method == http.MethodPost && strings.HasSuffix(p, "/images")) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// tokenFromQuery lets browser websocket clients, which cannot set headers,
// pass the bearer token as ?token=.
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// realtimeProjectScope checks the optional ?project_id= of a websocket
// subscription the same way RequireProjectAccess checks a project route.
func realtimeProjectScope(projects Projects) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.URL.Query().Get("project_id")
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			projectID, err := uuid.Parse(raw)
			if err != nil {
				WriteAPIError(w, http.StatusBadRequest, string(apperr.CodeInvalid), "invalid project_id")
				return
			}
			user := CurrentUser(r)
			if user.IsAdmin {
				next.ServeHTTP(w, r)
				return
			}
			member, err := projects.Membership(r.Context(), projectID, user.ID)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			if member == nil {
				WriteAPIError(w, http.StatusForbidden, string(apperr.CodeForbidden), "not a member of this project")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
