package atrisk

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kfkafe/cafe-ops/internal/auth"
	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/platform/httpx"
)

// Handler exposes the at-risk projection.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler constructs at-risk handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers at-risk routes on the inventory router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAuth()).Get("/at-risk", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.AtRiskProducts(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	critical := 0
	for _, p := range products {
		if p.Severity == inventory.StatusCritical {
			critical++
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products": products,
		"count":    len(products),
		"critical": critical,
	})
}
