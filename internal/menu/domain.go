package menu

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Product is a sellable menu item.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	IsActive    bool            `json:"is_active"`
	RecipeItems int             `json:"recipe_items"`
}

// RecipeEntry is the quantity of one material consumed per unit sold.
type RecipeEntry struct {
	MaterialID       int64   `json:"material_id"`
	QuantityRequired float64 `json:"quantity_required"`
}

// RecipeLine is a recipe entry joined with material details.
type RecipeLine struct {
	MaterialID       int64   `json:"material_id"`
	MaterialName     string  `json:"material_name"`
	Unit             string  `json:"unit"`
	QuantityRequired float64 `json:"quantity_required"`
}

// MaterialOption feeds recipe ingredient pickers.
type MaterialOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Ingredient is one submitted recipe row.
type Ingredient struct {
	MaterialID int64   `json:"material_id" validate:"required,gt=0"`
	Quantity   float64 `json:"quantity" validate:"gt=0"`
}

// CreateProductInput describes a new menu item.
type CreateProductInput struct {
	Name        string          `json:"name" validate:"required,max=80"`
	Category    string          `json:"category" validate:"required,max=60"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description" validate:"max=500"`
}

// Result mirrors the success/message pair returned to the presentation layer.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      int64  `json:"id,omitempty"`
}

var (
	// ErrProductNotFound indicates the product id does not exist.
	ErrProductNotFound = fmt.Errorf("%w: product", shared.ErrNotFound)
	// ErrMaterialNotFound indicates a recipe references an unknown material.
	ErrMaterialNotFound = fmt.Errorf("%w: material", shared.ErrNotFound)
	// ErrNothingToSave rejects an empty recipe submission.
	ErrNothingToSave = fmt.Errorf("%w: recipe has no ingredients, nothing to save", shared.ErrValidation)
	// ErrDuplicateIngredient rejects a material listed twice in one recipe.
	ErrDuplicateIngredient = fmt.Errorf("%w: material listed more than once", shared.ErrValidation)
	// ErrNonPositivePrice rejects zero or negative prices.
	ErrNonPositivePrice = fmt.Errorf("%w: price must be greater than zero", shared.ErrValidation)
	// ErrDuplicateProduct rejects a second product with the same name.
	ErrDuplicateProduct = fmt.Errorf("%w: product name already exists", shared.ErrValidation)
	// ErrProductInUse blocks deleting a product referenced by sales history.
	ErrProductInUse = fmt.Errorf("%w: product has recorded sales, deactivate it instead", shared.ErrInvalidState)
)
