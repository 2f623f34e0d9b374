package sales

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/menu"
	"github.com/kfkafe/cafe-ops/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the sales ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations a checkout performs atomically.
type TxRepository interface {
	inventory.LedgerTx
	ProductSnapshots(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error)
	Recipes(ctx context.Context, productIDs []int64) (map[int64][]menu.RecipeEntry, error)
	InsertLine(ctx context.Context, line Line) error
}

type txRepo struct {
	tx pgx.Tx
}

const lineColumns = `id, product_id, product_name, category, quantity, unit_price, total_amount,
	payment_mode, seller_name, transaction_ref, sale_date, created_at`

// WithTx wraps callback in a read-committed ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithIsolation(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// LinesSince returns POS-recorded sale lines dated on or after from, newest
// first. A zero from returns every line.
func (r *Repository) LinesSince(ctx context.Context, from time.Time) ([]Line, error) {
	if from.IsZero() {
		return r.queryLines(ctx, `SELECT `+lineColumns+` FROM sales
WHERE transaction_ref IS NOT NULL ORDER BY created_at DESC`)
	}
	return r.queryLines(ctx, `SELECT `+lineColumns+` FROM sales
WHERE transaction_ref IS NOT NULL AND sale_date >= $1::date ORDER BY created_at DESC`, from.Format(time.DateOnly))
}

// Live returns the most recent sale lines.
func (r *Repository) Live(ctx context.Context, limit int) ([]Line, error) {
	return r.queryLines(ctx, `SELECT `+lineColumns+` FROM sales
WHERE transaction_ref IS NOT NULL ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (r *Repository) queryLines(ctx context.Context, query string, args ...any) ([]Line, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var (
			l    Line
			mode string
		)
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ProductName, &l.Category, &l.Quantity, &l.UnitPrice, &l.TotalAmount,
			&mode, &l.SellerName, &l.TransactionRef, &l.SaleDate, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.PaymentMode = PaymentMode(mode)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *txRepo) ApplyMovement(ctx context.Context, m inventory.Movement) (inventory.Material, error) {
	return inventory.ApplyMovement(ctx, t.tx, m)
}

// ProductSnapshots locks and returns the products referenced by a cart.
func (t *txRepo) ProductSnapshots(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name, category, price, is_active
FROM products WHERE id = ANY($1) FOR SHARE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]ProductSnapshot, len(ids))
	for rows.Next() {
		var p ProductSnapshot
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.IsActive); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// Recipes returns the recipe entries of the given products.
func (t *txRepo) Recipes(ctx context.Context, productIDs []int64) (map[int64][]menu.RecipeEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT product_id, material_id, quantity_required::float8
FROM product_material_map WHERE product_id = ANY($1) ORDER BY product_id, material_id`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]menu.RecipeEntry)
	for rows.Next() {
		var (
			productID int64
			entry     menu.RecipeEntry
		)
		if err := rows.Scan(&productID, &entry.MaterialID, &entry.QuantityRequired); err != nil {
			return nil, err
		}
		out[productID] = append(out[productID], entry)
	}
	return out, rows.Err()
}

// InsertLine appends one immutable sale row.
func (t *txRepo) InsertLine(ctx context.Context, l Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sales
(product_id, product_name, category, quantity, unit_price, total_amount, payment_mode, seller_name, transaction_ref, sale_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::date)`,
		l.ProductID, l.ProductName, l.Category, l.Quantity, l.UnitPrice, l.TotalAmount,
		string(l.PaymentMode), l.SellerName, l.TransactionRef, l.SaleDate.Format(time.DateOnly))
	return err
}
