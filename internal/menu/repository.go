package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/platform/db"
)

// Repository persists products and recipes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the recipe replace primitives.
type TxRepository interface {
	LockProduct(ctx context.Context, productID int64) error
	MissingMaterials(ctx context.Context, ids []int64) ([]int64, error)
	DeleteRecipe(ctx context.Context, productID int64) error
	InsertRecipeEntry(ctx context.Context, productID int64, entry RecipeEntry) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const productListQuery = `SELECT p.id, p.name, p.category, p.price, p.description, p.is_active, COUNT(pmm.id)
FROM products p
LEFT JOIN product_material_map pmm ON pmm.product_id = p.id`

// ListMenu returns every product with its recipe size.
func (r *Repository) ListMenu(ctx context.Context) ([]Product, error) {
	return r.queryProducts(ctx, productListQuery+` GROUP BY p.id ORDER BY p.category, p.name`)
}

// ListActive returns products shown on the point of sale.
func (r *Repository) ListActive(ctx context.Context) ([]Product, error) {
	return r.queryProducts(ctx, productListQuery+` WHERE p.is_active GROUP BY p.id ORDER BY p.category, p.name`)
}

func (r *Repository) queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Description, &p.IsActive, &p.RecipeItems); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProduct loads a product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	products, err := r.queryProducts(ctx, productListQuery+` WHERE p.id = $1 GROUP BY p.id`, id)
	if err != nil {
		return Product{}, err
	}
	if len(products) == 0 {
		return Product{}, fmt.Errorf("%w %d", ErrProductNotFound, id)
	}
	return products[0], nil
}

// CreateProduct inserts a product and returns its id.
func (r *Repository) CreateProduct(ctx context.Context, input CreateProductInput) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (name, category, price, description) VALUES ($1, $2, $3, $4) RETURNING id`,
		input.Name, input.Category, input.Price, input.Description).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrDuplicateProduct
		}
		return 0, err
	}
	return id, nil
}

// UpdatePrice sets the catalogue price.
func (r *Repository) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET price = $1 WHERE id = $2`, price, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrProductNotFound, id)
	}
	return nil
}

// SetActive toggles point-of-sale visibility.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrProductNotFound, id)
	}
	return nil
}

// DeleteProduct removes a product that no sale references.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var referenced bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE product_id = $1)`, id).Scan(&referenced); err != nil {
			return err
		}
		if referenced {
			return ErrProductInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrProductInUse
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w %d", ErrProductNotFound, id)
		}
		return nil
	})
}

// Categories lists distinct product categories.
func (r *Repository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecipeMaterials lists every material for recipe pickers.
func (r *Repository) RecipeMaterials(ctx context.Context) ([]MaterialOption, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, unit FROM materials ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MaterialOption{}
	for rows.Next() {
		var m MaterialOption
		if err := rows.Scan(&m.ID, &m.Name, &m.Unit); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Recipe returns a product's recipe ordered by material name.
func (r *Repository) Recipe(ctx context.Context, productID int64) ([]RecipeLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.name, m.unit, pmm.quantity_required::float8
FROM product_material_map pmm
JOIN materials m ON m.id = pmm.material_id
WHERE pmm.product_id = $1
ORDER BY m.name`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RecipeLine{}
	for rows.Next() {
		var line RecipeLine
		if err := rows.Scan(&line.MaterialID, &line.MaterialName, &line.Unit, &line.QuantityRequired); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (r *txRepository) LockProduct(ctx context.Context, productID int64) error {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w %d", ErrProductNotFound, productID)
	}
	return err
}

func (r *txRepository) MissingMaterials(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT want.id FROM unnest($1::bigint[]) AS want(id)
LEFT JOIN materials m ON m.id = want.id
WHERE m.id IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (r *txRepository) DeleteRecipe(ctx context.Context, productID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM product_material_map WHERE product_id = $1`, productID)
	return err
}

func (r *txRepository) InsertRecipeEntry(ctx context.Context, productID int64, entry RecipeEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO product_material_map (product_id, material_id, quantity_required) VALUES ($1, $2, $3)`,
		productID, entry.MaterialID, entry.QuantityRequired)
	return err
}
