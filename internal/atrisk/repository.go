package atrisk

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads recipe and stock rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Version returns the committed projection version. Deferred triggers on
// materials, products and recipes bump it in the writing transaction.
func (r *Repository) Version(ctx context.Context) (int64, error) {
	var version int64
	err := r.pool.QueryRow(ctx, `SELECT version FROM projection_versions WHERE name = 'atrisk'`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

// RecipeRows returns every recipe entry with current material stock.
func (r *Repository) RecipeRows(ctx context.Context) ([]RecipeRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.category, m.name,
	m.current_stock::float8, m.safety_stock::float8
FROM products p
JOIN product_material_map pmm ON pmm.product_id = p.id
JOIN materials m ON m.id = pmm.material_id
ORDER BY p.name, m.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecipeRow
	for rows.Next() {
		var row RecipeRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.ProductCategory, &row.MaterialName, &row.CurrentStock, &row.SafetyStock); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
