package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

// PaymentMode is the closed set of accepted tender types.
type PaymentMode string

const (
	PaymentCash PaymentMode = "Cash"
	PaymentUPI  PaymentMode = "UPI"
	PaymentCard PaymentMode = "Card"
)

// Valid reports whether m is an accepted payment mode.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentCash, PaymentUPI, PaymentCard:
		return true
	}
	return false
}

// PriceMismatchPolicy decides what happens when a client price differs from the catalogue.
type PriceMismatchPolicy string

const (
	PriceReject PriceMismatchPolicy = "reject"
	PriceWarn   PriceMismatchPolicy = "warn"
)

// OrphanPolicy decides what happens to cart entries whose product no longer exists.
type OrphanPolicy string

const (
	OrphanSkip  OrphanPolicy = "skip"
	OrphanAbort OrphanPolicy = "abort"
)

// Options tunes checkout behaviour.
type Options struct {
	PriceMismatch PriceMismatchPolicy
	Orphans       OrphanPolicy
}

// CartItem is the quantity of one product in the cart. UnitPrice is what the
// client displayed and is only compared against the catalogue.
type CartItem struct {
	Quantity  int              `json:"quantity" validate:"gte=1,lte=1000"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// Cart maps product ids to cart items.
type Cart map[int64]CartItem

// CheckoutInput is one POS checkout.
type CheckoutInput struct {
	Cart           Cart        `json:"cart"`
	PaymentMode    PaymentMode `json:"payment_mode"`
	Seller         string      `json:"-"`
	IdempotencyKey string      `json:"-"`
}

// ProductSnapshot is the authoritative product record read at checkout.
type ProductSnapshot struct {
	ID       int64
	Name     string
	Category string
	Price    decimal.Decimal
	IsActive bool
}

// Line is one immutable sale row.
type Line struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Category       string          `json:"category"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMode    PaymentMode     `json:"payment_mode"`
	SellerName     string          `json:"seller_name"`
	TransactionRef string          `json:"transaction_ref"`
	SaleDate       time.Time       `json:"sale_date"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Result reports a committed checkout.
type Result struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	TransactionRef string          `json:"transaction_ref"`
	Total          decimal.Decimal `json:"total"`
	Items          int             `json:"items"`
	LowStockAlerts []string        `json:"low_stock_alerts"`
	Skipped        []int64         `json:"skipped"`
	PriceWarnings  []string        `json:"price_warnings,omitempty"`
}

// KPIs summarises revenue over a trailing window of days.
type KPIs struct {
	Days             int                        `json:"days"`
	TotalRevenue     decimal.Decimal            `json:"total_revenue"`
	FormattedRevenue string                     `json:"formatted_revenue"`
	TotalItems       int                        `json:"total_items"`
	Transactions     int                        `json:"transactions"`
	TopProduct       string                     `json:"top_product"`
	TopCategory      string                     `json:"top_category"`
	RevenueGrowth    float64                    `json:"revenue_growth"`
	RevenueByMode    map[string]decimal.Decimal `json:"revenue_by_payment_mode"`
}

// ProductCount is a product name with sold quantity.
type ProductCount struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// StaffTile is one seller's performance for the day.
type StaffTile struct {
	Seller       string          `json:"seller"`
	Items        int             `json:"items"`
	Transactions int             `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
	TopItems     []ProductCount  `json:"top_items"`
}

// SellerKPIs are the non-financial figures shown to staff.
type SellerKPIs struct {
	TotalItems  int    `json:"total_items"`
	TopItem     string `json:"top_item"`
	TopCategory string `json:"top_category"`
	PeakHour    string `json:"peak_hour"`
}

// KPI filters for SellerKPIs.
const (
	FilterToday   = "today"
	FilterAllTime = "all_time"
)

const notAvailable = "N/A"

var (
	// ErrEmptyCart rejects a checkout without entries.
	ErrEmptyCart = fmt.Errorf("%w: cart is empty", shared.ErrValidation)
	// ErrInvalidPaymentMode rejects tenders outside Cash, UPI and Card.
	ErrInvalidPaymentMode = fmt.Errorf("%w: payment mode must be Cash, UPI or Card", shared.ErrValidation)
	// ErrInvalidQuantity rejects cart quantities outside 1..1000.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be between 1 and 1000", shared.ErrValidation)
	// ErrPriceMismatch rejects a cart price that differs from the catalogue.
	ErrPriceMismatch = fmt.Errorf("%w: price changed", shared.ErrValidation)
	// ErrInactiveProduct rejects selling an item hidden from the POS.
	ErrInactiveProduct = fmt.Errorf("%w: product is not available", shared.ErrValidation)
	// ErrNothingRecorded rejects a checkout whose every entry was skipped.
	ErrNothingRecorded = fmt.Errorf("%w: none of the cart items exist anymore", shared.ErrValidation)
	// ErrProductNotFound aborts a checkout under the abort orphan policy.
	ErrProductNotFound = fmt.Errorf("%w: product", shared.ErrNotFound)
)
