package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lochel/genealogy/permissions"
	"github.com/lochel/genealogy/repository"
)

// API bundles the handlers served under /api.
type API struct {
	Users  repository.UserRepository
	Secret []byte

	Auth        *AuthHandler
	Relatives   *RelativeHandler
	Diagrams    *DiagramHandler
	Validate    *ValidateHandler
	Contact     *ContactHandler
	Admin       *AdminUserHandler
	Permissions *PermissionHandler
	Export      *ExportHandler

	Events    http.HandlerFunc // websocket endpoint, optional
	ImagesDir string           // portrait directory, optional
}

func (a *API) authenticated(next http.Handler) http.Handler {
	return AuthMiddleware(a.Users, a.Secret, next)
}

// Mount registers every route on r. Reading relatives requires an active
// account; only the landing page teaser and the contact form are public.
func (a *API) Mount(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.Auth.Login)
		r.Post("/signup", a.Auth.Signup)
		r.With(a.authenticated).Get("/me", a.Auth.CurrentUser)
	})

	r.Get("/relatives/latest", a.Relatives.Latest)
	r.Post("/contact", a.Contact.Submit)
	if a.Events != nil {
		r.Get("/events", a.Events)
	}
	if a.ImagesDir != "" {
		r.Get("/images/*", AssetServer(a.ImagesDir, "/api/images/"))
	}

	r.Group(func(r chi.Router) {
		r.Use(a.authenticated)

		r.Get("/permissions", a.Permissions.ListPermissionDefinitions)
		r.Get("/permissions/me", a.Permissions.Mine)

		r.Route("/relatives", func(r chi.Router) {
			r.With(Permission(permissions.RelativeView)).Get("/", a.Relatives.List)
			r.With(Permission(permissions.RelativeView)).Get("/search", a.Relatives.Search)
			r.Route("/{id}", func(r chi.Router) {
				r.With(Permission(permissions.RelativeView)).Get("/", a.Relatives.Get)
				r.With(Permission(permissions.RelativeEdit)).Put("/", a.Relatives.Update)
				r.With(Permission(permissions.RelativeUpload)).Put("/image", a.Relatives.UploadImage)
				r.With(Permission(permissions.RelativeView)).Get("/diagram", a.Diagrams.Image)
				r.With(Permission(permissions.RelativeView)).Get("/diagram/status", a.Diagrams.Status)
				r.With(Permission(permissions.DiagramRender)).Post("/diagram", a.Diagrams.Render)
			})
		})

		r.With(Permission(permissions.ValidateRun)).Get("/validate", a.Validate.Validate)
		r.With(Permission(permissions.RelativeExport)).Get("/export", a.Export.Export)
		r.With(Permission(permissions.ContactList)).Get("/contact", a.Contact.List)

		r.Route("/users", func(r chi.Router) {
			r.With(Permission(permissions.UserList)).Get("/", a.Admin.ListUsers)
			r.With(Permission(permissions.UserEdit)).Put("/{id}/role", a.Admin.SetRole)
		})
		r.With(Permission(permissions.UserList)).Get("/requests", a.Admin.ListRequests)
	})
}
