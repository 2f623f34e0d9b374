package menu

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/auth"
	"github.com/kfkafe/cafe-ops/internal/platform/httpx"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Handler wires HTTP endpoints for the menu module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler constructs menu handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers menu routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuth())
		r.Get("/", h.handleList)
		r.Get("/active", h.handleActive)
		r.Get("/categories", h.handleCategories)
		r.Get("/materials", h.handleMaterials)
		r.Get("/{id}/recipe", h.handleRecipe)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(auth.RoleOwner))
		r.Post("/", h.handleCreate)
		r.Patch("/{id}/price", h.handlePrice)
		r.Patch("/{id}/active", h.handleActiveToggle)
		r.Delete("/{id}", h.handleDelete)
		r.Put("/{id}/recipe", h.handleSaveRecipe)
	})
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type recipeRequest struct {
	Ingredients []Ingredient `json:"ingredients"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListMenu(r.Context())
	h.respond(w, products, err)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListActiveProducts(r.Context())
	h.respond(w, products, err)
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	h.respond(w, categories, err)
}

func (h *Handler) handleMaterials(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.RecipeMaterials(r.Context())
	h.respond(w, options, err)
}

func (h *Handler) handleRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines, err := h.service.Recipe(r.Context(), id)
	h.respond(w, lines, err)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CreateProduct(r.Context(), actor(r), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handlePrice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req priceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.UpdatePrice(r.Context(), actor(r), id, req.Price)
	h.respond(w, result, err)
}

func (h *Handler) handleActiveToggle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req activeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.SetActive(r.Context(), actor(r), id, req.Active)
	h.respond(w, result, err)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.DeleteProduct(r.Context(), actor(r), id)
	h.respond(w, result, err)
}

func (h *Handler) handleSaveRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req recipeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ReplaceRecipe(r.Context(), actor(r), id, req.Ingredients)
	h.respond(w, result, err)
}

func (h *Handler) respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func actor(r *http.Request) string {
	if identity := shared.IdentityFromContext(r.Context()); identity != nil {
		return identity.Username
	}
	return ""
}
