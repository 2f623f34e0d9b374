package sales

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kfkafe/cafe-ops/internal/auth"
	"github.com/kfkafe/cafe-ops/internal/platform/httpx"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Handler wires HTTP endpoints for the sales module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuth())
		r.Post("/checkout", h.handleCheckout)
		r.Get("/me", h.handleSellerKPIs)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(auth.RoleOwner))
		r.Get("/live", h.handleLive)
		r.Get("/kpis", h.handleKPIs)
		r.Get("/staff", h.handleStaff)
	})
}

type checkoutRequest struct {
	Cart        Cart        `json:"cart"`
	PaymentMode PaymentMode `json:"payment_mode"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CheckoutInput{
		Cart:           req.Cart,
		PaymentMode:    req.PaymentMode,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if identity := shared.IdentityFromContext(r.Context()); identity != nil {
		input.Seller = identity.Username
	}
	result, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("sale recorded",
		slog.String("transaction_ref", result.TransactionRef),
		slog.String("seller", input.Seller),
		slog.Int("items", result.Items))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleSellerKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.service.SellerKPIs(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, kpis)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	lines, err := h.service.LiveSales(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) handleKPIs(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	kpis, err := h.service.KPIs(r.Context(), days)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, kpis)
}

func (h *Handler) handleStaff(w http.ResponseWriter, r *http.Request) {
	tiles, err := h.service.StaffTiles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tiles)
}
