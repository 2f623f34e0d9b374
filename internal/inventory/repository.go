package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kfkafe/cafe-ops/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LedgerTx
}

type txRepository struct {
	tx pgx.Tx
}

const materialColumns = `id, name, unit, current_stock::float8, safety_stock::float8, avg_daily_usage::float8, cost_per_unit::float8`

// WithTx executes the callback inside a read-committed ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithIsolation(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListMaterials returns every material ordered by name.
func (r *Repository) ListMaterials(ctx context.Context) ([]Material, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+materialColumns+` FROM materials ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMaterials(rows)
}

// GetMaterial loads one material.
func (r *Repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	var m Material
	err := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1`, id).
		Scan(&m.ID, &m.Name, &m.Unit, &m.CurrentStock, &m.SafetyStock, &m.AvgDailyUsage, &m.CostPerUnit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, fmt.Errorf("%w %d", ErrMaterialNotFound, id)
		}
		return Material{}, err
	}
	return m, nil
}

// TopConsumers returns materials with the highest average daily usage.
func (r *Repository) TopConsumers(ctx context.Context, limit int) ([]ConsumptionRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, unit, avg_daily_usage::float8, current_stock::float8
FROM materials ORDER BY avg_daily_usage DESC, name LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ConsumptionRow{}
	for rows.Next() {
		var row ConsumptionRow
		if err := rows.Scan(&row.Name, &row.Unit, &row.AvgDailyUsage, &row.CurrentStock); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListMovements returns the latest stock movements of a material.
func (r *Repository) ListMovements(ctx context.Context, materialID int64, limit int) ([]MovementEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, material_id, delta::float8, resulting_stock::float8, reason, actor, created_at
FROM stock_movements WHERE material_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, materialID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []MovementEntry{}
	for rows.Next() {
		var entry MovementEntry
		if err := rows.Scan(&entry.ID, &entry.MaterialID, &entry.Delta, &entry.ResultingStock, &entry.Reason, &entry.Actor, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *txRepository) ApplyMovement(ctx context.Context, m Movement) (Material, error) {
	return ApplyMovement(ctx, r.tx, m)
}

func scanMaterials(rows pgx.Rows) ([]Material, error) {
	out := []Material{}
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Name, &m.Unit, &m.CurrentStock, &m.SafetyStock, &m.AvgDailyUsage, &m.CostPerUnit); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
