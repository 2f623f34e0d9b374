package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx.Tx used by the ledger.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// LedgerTx applies stock movements inside a caller-owned transaction.
// Sales, purchase-order deliveries and manual adjustments all write stock
// through this method.
type LedgerTx interface {
	ApplyMovement(ctx context.Context, m Movement) (Material, error)
}

// ApplyMovement atomically applies m to the material row and appends a
// stock_movements entry. The update is a single statement so concurrent
// writers never lose each other's deltas.
func ApplyMovement(ctx context.Context, q Querier, m Movement) (Material, error) {
	var mat Material
	err := q.QueryRow(ctx, `UPDATE materials
SET current_stock = GREATEST(0, current_stock + $1)
WHERE id = $2
RETURNING id, name, unit, current_stock::float8, safety_stock::float8, avg_daily_usage::float8, cost_per_unit::float8`,
		m.Delta, m.MaterialID).
		Scan(&mat.ID, &mat.Name, &mat.Unit, &mat.CurrentStock, &mat.SafetyStock, &mat.AvgDailyUsage, &mat.CostPerUnit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, fmt.Errorf("%w %d", ErrMaterialNotFound, m.MaterialID)
		}
		return Material{}, err
	}
	if _, err := q.Exec(ctx, `INSERT INTO stock_movements (material_id, delta, resulting_stock, reason, actor)
VALUES ($1, $2, $3, $4, $5)`, m.MaterialID, m.Delta, mat.CurrentStock, m.Reason, m.Actor); err != nil {
		return Material{}, err
	}
	return mat, nil
}
