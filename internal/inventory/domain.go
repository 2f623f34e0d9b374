package inventory

import (
	"fmt"
	"math"
	"time"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Status classifies a material against its safety stock.
type Status string

const (
	// StatusOK means stock is above the safety threshold.
	StatusOK Status = "OK"
	// StatusLow means stock is at or below safety but not critical.
	StatusLow Status = "Low"
	// StatusCritical means stock fell under half the safety threshold.
	StatusCritical Status = "Critical"
)

// Severity orders statuses so callers can pick the worst one.
func (s Status) Severity() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusLow:
		return 1
	default:
		return 0
	}
}

// AtRisk reports whether the status is Low or Critical.
func (s Status) AtRisk() bool {
	return s == StatusLow || s == StatusCritical
}

// Classify derives the status of current stock against the safety threshold.
// Stock exactly at the threshold is Low, not OK.
func Classify(current, safety float64) Status {
	switch {
	case current < safety*0.5:
		return StatusCritical
	case current <= safety:
		return StatusLow
	default:
		return StatusOK
	}
}

// DaysRemaining estimates stock cover in days, rounded to one decimal.
// Zero usage is treated as one unit per day.
func DaysRemaining(current, avgDailyUsage float64) float64 {
	if avgDailyUsage == 0 {
		avgDailyUsage = 1
	}
	return math.Round(current/avgDailyUsage*10) / 10
}

// NextStock applies delta to current and clamps the result at zero.
func NextStock(current, delta float64) float64 {
	return math.Max(0, current+delta)
}

// Movement reasons recorded in stock_movements.
const (
	ReasonManual     = "Manual"
	ReasonSale       = "sale"
	ReasonPODelivery = "po-delivery"
)

// Material is a raw ingredient or consumable tracked by stock quantity.
type Material struct {
	ID            int64
	Name          string
	Unit          string
	CurrentStock  float64
	SafetyStock   float64
	AvgDailyUsage float64
	CostPerUnit   float64
}

// Status classifies the material's current stock.
func (m Material) Status() Status {
	return Classify(m.CurrentStock, m.SafetyStock)
}

// Row is one line of the inventory listing.
type Row struct {
	MaterialID    int64   `json:"material_id"`
	Name          string  `json:"name"`
	Unit          string  `json:"unit"`
	Category      string  `json:"category"`
	CurrentStock  float64 `json:"current_stock"`
	SafetyStock   float64 `json:"safety_stock"`
	AvgDailyUsage float64 `json:"avg_daily_usage"`
	CostPerUnit   float64 `json:"cost_per_unit"`
	Status        Status  `json:"status"`
	DaysRemaining float64 `json:"days_remaining"`
}

// NewRow derives the listing view of a material.
func NewRow(m Material) Row {
	return Row{
		MaterialID:    m.ID,
		Name:          m.Name,
		Unit:          m.Unit,
		Category:      CategoryOf(m.Name),
		CurrentStock:  m.CurrentStock,
		SafetyStock:   m.SafetyStock,
		AvgDailyUsage: m.AvgDailyUsage,
		CostPerUnit:   m.CostPerUnit,
		Status:        m.Status(),
		DaysRemaining: DaysRemaining(m.CurrentStock, m.AvgDailyUsage),
	}
}

// Movement is a signed change applied to one material's stock.
type Movement struct {
	MaterialID int64
	Delta      float64
	Reason     string
	Actor      string
}

// MovementEntry is a persisted stock_movements row.
type MovementEntry struct {
	ID             int64     `json:"id"`
	MaterialID     int64     `json:"material_id"`
	Delta          float64   `json:"delta"`
	ResultingStock float64   `json:"resulting_stock"`
	Reason         string    `json:"reason"`
	Actor          string    `json:"actor"`
	CreatedAt      time.Time `json:"created_at"`
}

// AdjustInput describes a manual stock adjustment request.
type AdjustInput struct {
	MaterialID int64   `validate:"required,gt=0"`
	Delta      float64
	Reason     string  `validate:"max=120"`
	Actor      string
}

// AdjustResult reports the outcome of an adjustment.
type AdjustResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Material Row    `json:"material"`
}

// ConsumptionRow summarises daily consumption for one material.
type ConsumptionRow struct {
	Name          string  `json:"name"`
	Unit          string  `json:"unit"`
	AvgDailyUsage float64 `json:"avg_daily_usage"`
	CurrentStock  float64 `json:"current_stock"`
}

var (
	// ErrMaterialNotFound indicates the material id does not exist.
	ErrMaterialNotFound = fmt.Errorf("%w: material", shared.ErrNotFound)
	// ErrZeroAdjustment indicates an adjustment without a delta.
	ErrZeroAdjustment = fmt.Errorf("%w: adjustment must be non zero", shared.ErrValidation)
)
