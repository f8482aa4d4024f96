package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-quote/internal/auth"
	"github.com/odyssey-erp/odyssey-quote/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
	"github.com/odyssey-erp/odyssey-quote/internal/observability"
	"github.com/odyssey-erp/odyssey-quote/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quote/internal/rbac"
	"github.com/odyssey-erp/odyssey-quote/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
	"github.com/odyssey-erp/odyssey-quote/jobs"
	"github.com/odyssey-erp/odyssey-quote/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler          *auth.Handler
	ProductsHandler      *products.Handler
	QuotationsHandler    *quotations.Handler
	NotificationsHandler *notifications.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	ReportHandler        *report.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	mwCfg := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}
	for _, mw := range MiddlewareStack(mwCfg) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, shared.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "")
	})

	if params.NotificationsHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireSession)
			params.NotificationsHandler.MountStream(r)
		})
	}

	r.Group(func(r chi.Router) {
		for _, mw := range BoundedStack(mwCfg) {
			r.Use(mw)
		}

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		if params.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
		}

		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.ProductsHandler != nil {
			params.ProductsHandler.MountRoutes(r)
		}
		if params.QuotationsHandler != nil {
			params.QuotationsHandler.MountRoutes(r)
		}
		if params.NotificationsHandler != nil {
			r.Route("/notifications", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireSession)
				params.NotificationsHandler.MountRoutes(r)
			})
		}
		if params.PermissionsHandler != nil {
			params.PermissionsHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			r.Route("/report", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
