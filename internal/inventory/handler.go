package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kfkafe/cafe-ops/internal/auth"
	"github.com/kfkafe/cafe-ops/internal/platform/httpx"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuth())
		r.Get("/", h.handleList)
		r.Get("/low-stock", h.handleLowStock)
		r.Get("/categories", h.handleCategories)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(auth.RoleOwner))
		r.Get("/consumption", h.handleConsumption)
		r.Get("/{id}/movements", h.handleMovements)
		r.Post("/{id}/adjust", h.handleAdjust)
	})
}

type adjustRequest struct {
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListInventory(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.LowStockMaterials(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"materials": names})
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Categories())
}

func (h *Handler) handleConsumption(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.service.ConsumptionSummary(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Movements(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := AdjustInput{MaterialID: id, Delta: req.Delta, Reason: req.Reason}
	if identity := shared.IdentityFromContext(r.Context()); identity != nil {
		input.Actor = identity.Username
	}
	result, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("stock adjusted",
		slog.Int64("material_id", id),
		slog.Float64("delta", req.Delta),
		slog.String("actor", input.Actor),
		slog.Float64("stock", result.Material.CurrentStock))
	httpx.JSON(w, http.StatusOK, result)
}
