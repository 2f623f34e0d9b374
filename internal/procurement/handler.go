package procurement

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/auth"
	"github.com/kfkafe/cafe-ops/internal/platform/httpx"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers procurement routes. Every route is owner-only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(auth.RoleOwner))
		r.Get("/vendors", h.handleListVendors)
		r.Post("/vendors", h.handleAddVendor)
		r.Delete("/vendors/{id}", h.handleDeleteVendor)
		r.Get("/vendor-materials", h.handleListVendorMaterials)
		r.Post("/vendor-materials", h.handleLinkVendorMaterial)
		r.Get("/orders", h.handleListOrders)
		r.Post("/orders", h.handleCreateOrder)
		r.Get("/orders/{id}", h.handleGetOrder)
		r.Post("/orders/{id}/deliveries", h.handleReceiveDelivery)
		r.Post("/orders/{id}/cancel", h.handleCancelOrder)
	})
}

type createOrderRequest struct {
	VendorID         int64           `json:"vendor_id"`
	MaterialID       int64           `json:"material_id"`
	QtyOrdered       float64         `json:"qty_ordered"`
	ExpectedDelivery string          `json:"expected_delivery"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	Notes            string          `json:"notes"`
}

type deliveryRequest struct {
	QtyReceived float64 `json:"qty_received"`
}

func (h *Handler) handleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.service.ListVendors(r.Context())
	h.respond(w, http.StatusOK, vendors, err)
}

func (h *Handler) handleAddVendor(w http.ResponseWriter, r *http.Request) {
	var input VendorInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.AddVendor(r.Context(), actor(r), input)
	h.respond(w, http.StatusCreated, result, err)
}

func (h *Handler) handleDeleteVendor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.DeleteVendor(r.Context(), actor(r), id)
	h.respond(w, http.StatusOK, result, err)
}

func (h *Handler) handleListVendorMaterials(w http.ResponseWriter, r *http.Request) {
	var vendorID int64
	if raw := r.URL.Query().Get("vendor_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid vendor_id %q", shared.ErrValidation, raw))
			return
		}
		vendorID = parsed
	}
	links, err := h.service.ListVendorMaterials(r.Context(), vendorID)
	h.respond(w, http.StatusOK, links, err)
}

func (h *Handler) handleLinkVendorMaterial(w http.ResponseWriter, r *http.Request) {
	var input LinkInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.LinkVendorMaterial(r.Context(), actor(r), input)
	h.respond(w, http.StatusOK, result, err)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListPurchaseOrders(r.Context())
	h.respond(w, http.StatusOK, orders, err)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	h.respond(w, http.StatusOK, po, err)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		VendorID:   req.VendorID,
		MaterialID: req.MaterialID,
		QtyOrdered: req.QtyOrdered,
		UnitCost:   req.UnitCost,
		Notes:      req.Notes,
		Actor:      actor(r),
	}
	if raw := strings.TrimSpace(req.ExpectedDelivery); raw != "" {
		expected, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: expected_delivery must be YYYY-MM-DD", shared.ErrValidation))
			return
		}
		input.ExpectedDelivery = &expected
	}
	result, err := h.service.CreatePurchaseOrder(r.Context(), input)
	h.respond(w, http.StatusCreated, result, err)
}

func (h *Handler) handleReceiveDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req deliveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ReceiveDelivery(r.Context(), actor(r), id, req.QtyReceived)
	h.respond(w, http.StatusOK, result, err)
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CancelPurchaseOrder(r.Context(), actor(r), id)
	h.respond(w, http.StatusOK, result, err)
}

func (h *Handler) respond(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, data)
}

func actor(r *http.Request) string {
	if identity := shared.IdentityFromContext(r.Context()); identity != nil {
		return identity.Username
	}
	return ""
}
