package procurement

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusInitiated          Status = "Initiated"
	StatusPartiallyDelivered Status = "Partially Delivered"
	StatusDelivered          Status = "Delivered"
	StatusCancelled          Status = "Cancelled"
)

// Terminal reports whether the order accepts no further deliveries.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// DeriveDelivery computes remaining quantity and status from the ordered and
// cumulative delivered quantities of a non-cancelled order. Remaining is kept
// at stock scale so the stored value and the status always agree.
func DeriveDelivery(ordered, delivered float64) (float64, Status) {
	remaining := shared.RoundQuantity(math.Max(0, ordered-delivered), shared.StockScale)
	if remaining == 0 {
		return 0, StatusDelivered
	}
	return remaining, StatusPartiallyDelivered
}

// PurchaseOrder tracks ordered against delivered quantity of one material.
type PurchaseOrder struct {
	ID               int64           `json:"id"`
	Number           string          `json:"po_number"`
	VendorID         int64           `json:"vendor_id"`
	VendorName       string          `json:"vendor_name"`
	MaterialID       int64           `json:"material_id"`
	MaterialName     string          `json:"material_name"`
	QtyOrdered       float64         `json:"qty_ordered"`
	QtyDelivered     float64         `json:"qty_delivered"`
	RemainingQty     float64         `json:"remaining_qty"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Status           Status          `json:"status"`
	ExpectedDelivery *time.Time      `json:"expected_delivery,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	Notes            string          `json:"notes"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Vendor supplies materials.
type Vendor struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	LeadTimeDays int       `json:"lead_time_days"`
	CreatedAt    time.Time `json:"created_at"`
}

// VendorMaterial is a price a vendor offers for a material.
type VendorMaterial struct {
	VendorID     int64           `json:"vendor_id"`
	VendorName   string          `json:"vendor_name"`
	Phone        string          `json:"phone"`
	MaterialID   int64           `json:"material_id"`
	MaterialName string          `json:"material_name"`
	Unit         string          `json:"unit"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// CreateInput describes a new purchase order. A zero UnitCost falls back to
// the material's configured cost per unit.
type CreateInput struct {
	VendorID         int64           `json:"vendor_id" validate:"required,gt=0"`
	MaterialID       int64           `json:"material_id" validate:"required,gt=0"`
	QtyOrdered       float64         `json:"qty_ordered" validate:"gt=0"`
	ExpectedDelivery *time.Time      `json:"expected_delivery"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	Notes            string          `json:"notes" validate:"max=500"`
	Actor            string          `json:"-"`
}

// VendorInput describes a new vendor.
type VendorInput struct {
	Name         string `json:"name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"max=30"`
	Email        string `json:"email" validate:"omitempty,email"`
	LeadTimeDays int    `json:"lead_time_days" validate:"gte=0,lte=365"`
}

// LinkInput sets a vendor's price for a material.
type LinkInput struct {
	VendorID     int64           `json:"vendor_id" validate:"required,gt=0"`
	MaterialID   int64           `json:"material_id" validate:"required,gt=0"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// Result is the success/message pair returned by mutations.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CreateResult reports a created purchase order.
type CreateResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ID       int64  `json:"id"`
	PONumber string `json:"po_number"`
}

// DeliveryResult reports the order state after a delivery.
type DeliveryResult struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	Status    Status  `json:"status"`
	Delivered float64 `json:"qty_delivered"`
	Remaining float64 `json:"remaining"`
}

var (
	// ErrInvalidState occurs when action violates the order lifecycle.
	ErrInvalidState = shared.ErrInvalidState
	// ErrPONotFound indicates the purchase order does not exist.
	ErrPONotFound = fmt.Errorf("%w: purchase order", shared.ErrNotFound)
	// ErrVendorNotFound indicates the vendor does not exist.
	ErrVendorNotFound = fmt.Errorf("%w: vendor", shared.ErrNotFound)
	// ErrMaterialNotFound indicates the material does not exist.
	ErrMaterialNotFound = fmt.Errorf("%w: material", shared.ErrNotFound)
	// ErrNonPositiveQty rejects empty or negative deliveries.
	ErrNonPositiveQty = fmt.Errorf("%w: quantity received must be greater than zero", shared.ErrValidation)
	// ErrNegativeCost rejects negative unit costs and prices.
	ErrNegativeCost = fmt.Errorf("%w: cost cannot be negative", shared.ErrValidation)
	// ErrOverDelivery rejects receiving more than remains when over-delivery is disabled.
	ErrOverDelivery = fmt.Errorf("%w: received quantity exceeds remaining quantity", shared.ErrValidation)
	// ErrDuplicateVendor rejects a second vendor with the same name.
	ErrDuplicateVendor = fmt.Errorf("%w: vendor name already exists", shared.ErrValidation)
	// ErrVendorInUse blocks deleting a vendor referenced by purchase orders.
	ErrVendorInUse = fmt.Errorf("%w: vendor has purchase orders", shared.ErrInvalidState)
)
