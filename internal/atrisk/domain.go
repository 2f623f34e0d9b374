package atrisk

import (
	"sort"

	"github.com/kfkafe/cafe-ops/internal/inventory"
)

// RecipeRow is one recipe entry joined with the live stock of its material.
type RecipeRow struct {
	ProductID       int64
	ProductName     string
	ProductCategory string
	MaterialName    string
	CurrentStock    float64
	SafetyStock     float64
}

// Contributor names a material that puts a product at risk.
type Contributor struct {
	MaterialName string           `json:"material_name"`
	Status       inventory.Status `json:"status"`
	CurrentStock float64          `json:"current_stock"`
	SafetyStock  float64          `json:"safety_stock"`
}

// Product is a menu item that cannot be reliably fulfilled.
type Product struct {
	ProductID   int64            `json:"product_id"`
	ProductName string           `json:"product_name"`
	Category    string           `json:"category"`
	Severity    inventory.Status `json:"severity"`
	Materials   []Contributor    `json:"materials"`
}

// Project derives at-risk products from recipe rows. A product is at risk when
// any recipe material is Low or Critical and its severity is the worst of
// those statuses. Results are ordered Critical first, then by product name.
func Project(rows []RecipeRow) []Product {
	index := make(map[int64]int)
	products := make([]Product, 0)
	for _, row := range rows {
		status := inventory.Classify(row.CurrentStock, row.SafetyStock)
		if !status.AtRisk() {
			continue
		}
		pos, ok := index[row.ProductID]
		if !ok {
			pos = len(products)
			index[row.ProductID] = pos
			products = append(products, Product{
				ProductID:   row.ProductID,
				ProductName: row.ProductName,
				Category:    row.ProductCategory,
				Severity:    status,
			})
		}
		p := &products[pos]
		if status.Severity() > p.Severity.Severity() {
			p.Severity = status
		}
		p.Materials = append(p.Materials, Contributor{
			MaterialName: row.MaterialName,
			Status:       status,
			CurrentStock: row.CurrentStock,
			SafetyStock:  row.SafetyStock,
		})
	}
	for i := range products {
		sort.SliceStable(products[i].Materials, func(a, b int) bool {
			ma, mb := products[i].Materials[a], products[i].Materials[b]
			if ma.Status.Severity() != mb.Status.Severity() {
				return ma.Status.Severity() > mb.Status.Severity()
			}
			return ma.MaterialName < mb.MaterialName
		})
	}
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Severity.Severity() != products[j].Severity.Severity() {
			return products[i].Severity.Severity() > products[j].Severity.Severity()
		}
		return products[i].ProductName < products[j].ProductName
	})
	return products
}
