package menu

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMenu(ctx context.Context) ([]Product, error)
	ListActive(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (int64, error)
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error
	SetActive(ctx context.Context, id int64, active bool) error
	DeleteProduct(ctx context.Context, id int64) error
	Categories(ctx context.Context) ([]string, error)
	RecipeMaterials(ctx context.Context) ([]MaterialOption, error)
	Recipe(ctx context.Context, productID int64) ([]RecipeLine, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the product catalogue and recipe graph.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListMenu returns all products with recipe counts.
func (s *Service) ListMenu(ctx context.Context) ([]Product, error) {
	products, err := s.repo.ListMenu(ctx)
	return products, shared.Persistence("menu: list", err)
}

// ListActiveProducts returns products available on the point of sale.
func (s *Service) ListActiveProducts(ctx context.Context) ([]Product, error) {
	products, err := s.repo.ListActive(ctx)
	return products, shared.Persistence("menu: list active", err)
}

// Categories lists distinct product categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.Categories(ctx)
	return categories, shared.Persistence("menu: categories", err)
}

// RecipeMaterials lists materials available to recipes.
func (s *Service) RecipeMaterials(ctx context.Context) ([]MaterialOption, error) {
	options, err := s.repo.RecipeMaterials(ctx)
	return options, shared.Persistence("menu: recipe materials", err)
}

// Recipe returns the detailed recipe of a product.
func (s *Service) Recipe(ctx context.Context, productID int64) ([]RecipeLine, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, shared.Persistence("menu: get product", err)
	}
	lines, err := s.repo.Recipe(ctx, productID)
	return lines, shared.Persistence("menu: recipe", err)
}

// RecipeOf returns (material, quantity) pairs for a product in material name order.
func (s *Service) RecipeOf(ctx context.Context, productID int64) ([]RecipeEntry, error) {
	lines, err := s.Recipe(ctx, productID)
	if err != nil {
		return nil, err
	}
	entries := make([]RecipeEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, RecipeEntry{MaterialID: line.MaterialID, QuantityRequired: line.QuantityRequired})
	}
	return entries, nil
}

// CreateProduct adds a menu item.
func (s *Service) CreateProduct(ctx context.Context, actor string, input CreateProductInput) (Result, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	if err := shared.ValidateStruct(input); err != nil {
		return Result{}, err
	}
	if !input.Price.IsPositive() {
		return Result{}, ErrNonPositivePrice
	}
	id, err := s.repo.CreateProduct(ctx, input)
	if err != nil {
		return Result{}, s.persistence("menu: create product", err)
	}
	s.record(ctx, actor, "menu:create", id, map[string]any{"name": input.Name, "price": input.Price.String()})
	return Result{Success: true, Message: fmt.Sprintf("Product '%s' added!", input.Name), ID: id}, nil
}

// UpdatePrice changes the catalogue price of a product.
func (s *Service) UpdatePrice(ctx context.Context, actor string, productID int64, price decimal.Decimal) (Result, error) {
	if !price.IsPositive() {
		return Result{}, ErrNonPositivePrice
	}
	if err := s.repo.UpdatePrice(ctx, productID, price); err != nil {
		return Result{}, s.persistence("menu: update price", err)
	}
	s.record(ctx, actor, "menu:price", productID, map[string]any{"price": price.String()})
	return Result{Success: true, Message: "Price updated to " + shared.FormatINR(price), ID: productID}, nil
}

// SetActive shows or hides a product on the point of sale.
func (s *Service) SetActive(ctx context.Context, actor string, productID int64, active bool) (Result, error) {
	if err := s.repo.SetActive(ctx, productID, active); err != nil {
		return Result{}, s.persistence("menu: set active", err)
	}
	status := "deactivated"
	if active {
		status = "activated"
	}
	s.record(ctx, actor, "menu:"+status, productID, nil)
	return Result{Success: true, Message: "Product " + status, ID: productID}, nil
}

// DeleteProduct removes a product that has never been sold.
func (s *Service) DeleteProduct(ctx context.Context, actor string, productID int64) (Result, error) {
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return Result{}, s.persistence("menu: delete product", err)
	}
	s.record(ctx, actor, "menu:delete", productID, nil)
	return Result{Success: true, Message: "Product deleted", ID: productID}, nil
}

// ReplaceRecipe swaps a product's whole recipe in one transaction. An empty
// ingredient list is rejected rather than clearing the recipe.
func (s *Service) ReplaceRecipe(ctx context.Context, actor string, productID int64, ingredients []Ingredient) (Result, error) {
	if len(ingredients) == 0 {
		return Result{}, ErrNothingToSave
	}
	ingredients = slices.Clone(ingredients)
	seen := make(map[int64]struct{}, len(ingredients))
	ids := make([]int64, 0, len(ingredients))
	for i := range ingredients {
		ingredients[i].Quantity = shared.RoundQuantity(ingredients[i].Quantity, shared.RecipeScale)
		ing := ingredients[i]
		if err := shared.ValidateStruct(ing); err != nil {
			return Result{}, err
		}
		if _, dup := seen[ing.MaterialID]; dup {
			return Result{}, fmt.Errorf("%w: %d", ErrDuplicateIngredient, ing.MaterialID)
		}
		seen[ing.MaterialID] = struct{}{}
		ids = append(ids, ing.MaterialID)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockProduct(ctx, productID); err != nil {
			return err
		}
		missing, err := tx.MissingMaterials(ctx, ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w %v", ErrMaterialNotFound, missing)
		}
		if err := tx.DeleteRecipe(ctx, productID); err != nil {
			return err
		}
		for _, ing := range ingredients {
			if err := tx.InsertRecipeEntry(ctx, productID, RecipeEntry{MaterialID: ing.MaterialID, QuantityRequired: ing.Quantity}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, s.persistence("menu: replace recipe", err)
	}
	s.record(ctx, actor, "menu:recipe", productID, map[string]any{"ingredients": len(ingredients)})
	return Result{Success: true, Message: fmt.Sprintf("Recipe saved (%d ingredients)", len(ingredients)), ID: productID}, nil
}

func (s *Service) persistence(op string, err error) error {
	err = shared.Persistence(op, err)
	if !shared.IsDomain(err) {
		s.logger.Error(op, slog.Any("error", err))
	}
	return err
}

func (s *Service) record(ctx context.Context, actor, action string, productID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", productID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit menu change", slog.String("action", action), slog.Any("error", err))
	}
}
