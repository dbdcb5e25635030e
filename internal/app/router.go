package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patrimon/patrimon/internal/assets"
	"github.com/patrimon/patrimon/internal/audit"
	"github.com/patrimon/patrimon/internal/auth"
	"github.com/patrimon/patrimon/internal/dashboard"
	"github.com/patrimon/patrimon/internal/directory"
	"github.com/patrimon/patrimon/internal/masterdata"
	"github.com/patrimon/patrimon/internal/notify"
	"github.com/patrimon/patrimon/internal/requests"
	"github.com/patrimon/patrimon/internal/settings"
	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
	"github.com/patrimon/patrimon/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Guard             auth.Middleware
	AuthHandler       *auth.Handler
	AssetHandler      *assets.Handler
	RequestHandler    *requests.Handler
	WorkflowHandler   *workflow.Handler
	DirectoryHandler  *directory.Handler
	MasterDataHandler *masterdata.Handler
	SettingsHandler   *settings.Handler
	AuditHandler      *audit.Handler
	NotifyHandler     *notify.Handler
	DashboardHandler  *dashboard.Handler
	JobsHandler       *jobs.Handler
}

// NewRouter assembles the HTTP surface. Login and health stay outside the
// authenticated group; everything else requires a bearer token.
func NewRouter(params RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: params.Logger, Config: params.Config}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.Guard.Authenticate)
			r.Route("/assets", params.AssetHandler.MountRoutes)
			r.Route("/requests", params.RequestHandler.MountRoutes)
			r.Route("/workflow-rules", params.WorkflowHandler.MountRoutes)
			r.Route("/directory", params.DirectoryHandler.MountRoutes)
			r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
			r.Route("/settings", params.SettingsHandler.MountRoutes)
			r.Route("/audit", params.AuditHandler.MountRoutes)
			r.Route("/notifications", params.NotifyHandler.MountRoutes)
			r.Route("/dashboard", params.DashboardHandler.MountRoutes)
			if params.JobsHandler != nil {
				r.Group(func(r chi.Router) {
					r.Use(params.Guard.RequireRoles(shared.RoleAdmin))
					r.Route("/jobs", params.JobsHandler.MountRoutes)
				})
			}
		})
	})

	return r
}
