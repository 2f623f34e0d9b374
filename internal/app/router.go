package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kfkafe/cafe-ops/internal/atrisk"
	"github.com/kfkafe/cafe-ops/internal/auth"
	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/menu"
	"github.com/kfkafe/cafe-ops/internal/observability"
	"github.com/kfkafe/cafe-ops/internal/procurement"
	"github.com/kfkafe/cafe-ops/internal/sales"
	"github.com/kfkafe/cafe-ops/internal/shared"
	"github.com/kfkafe/cafe-ops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	AuthHandler        *auth.Handler
	InventoryHandler   *inventory.Handler
	AtRiskHandler      *atrisk.Handler
	MenuHandler        *menu.Handler
	SalesHandler       *sales.Handler
	ProcurementHandler *procurement.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router serving the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/inventory", func(r chi.Router) {
		if params.AtRiskHandler != nil {
			params.AtRiskHandler.MountRoutes(r)
		}
		params.InventoryHandler.MountRoutes(r)
	})
	r.Route("/menu", params.MenuHandler.MountRoutes)
	r.Route("/sales", params.SalesHandler.MountRoutes)
	r.Route("/procurement", params.ProcurementHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
