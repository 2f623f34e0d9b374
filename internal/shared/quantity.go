package shared

import "github.com/shopspring/decimal"

// Decimal places kept by the NUMERIC quantity columns.
const (
	StockScale  int32 = 3
	RecipeScale int32 = 4
)

// RoundQuantity rounds v half away from zero to scale decimals, the way
// PostgreSQL stores it in a NUMERIC column of that scale.
func RoundQuantity(v float64, scale int32) float64 {
	return decimal.NewFromFloat(v).Round(scale).InexactFloat64()
}
