package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/platform/db"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Repository implements procurement persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	inventory.LedgerTx
	NextPONumber(ctx context.Context, year int) (string, error)
	VendorName(ctx context.Context, vendorID int64) (string, error)
	MaterialCost(ctx context.Context, materialID int64) (string, decimal.Decimal, error)
	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	LockPO(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateDelivery(ctx context.Context, po PurchaseOrder) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

type txRepo struct {
	tx pgx.Tx
}

const poColumns = `id, po_number, vendor_id, vendor_name, material_id, material_name,
	qty_ordered::float8, qty_delivered::float8, remaining_qty::float8, unit_cost, total_cost,
	status, expected_delivery, delivered_at, notes, created_at`

// WithTx runs fn inside a read-committed ledger transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithIsolation(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ListPurchaseOrders returns orders newest first.
func (r *Repository) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

// GetPurchaseOrder loads one order.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, fmt.Errorf("%w %d", ErrPONotFound, id)
	}
	return po, err
}

// ListVendors returns vendors ordered by name.
func (r *Repository) ListVendors(ctx context.Context) ([]Vendor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, email, lead_time_days, created_at FROM vendors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.Email, &v.LeadTimeDays, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AddVendor inserts a vendor.
func (r *Repository) AddVendor(ctx context.Context, input VendorInput) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO vendors (name, phone, email, lead_time_days)
VALUES ($1, $2, $3, $4) RETURNING id`, input.Name, input.Phone, input.Email, input.LeadTimeDays).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateVendor, input.Name)
	}
	return id, err
}

// DeleteVendor removes a vendor without purchase orders.
func (r *Repository) DeleteVendor(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vendors WHERE id=$1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrVendorInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrVendorNotFound, id)
	}
	return nil
}

// ListVendorMaterials returns vendor price links, optionally for one vendor.
func (r *Repository) ListVendorMaterials(ctx context.Context, vendorID int64) ([]VendorMaterial, error) {
	query := `SELECT vm.vendor_id, v.name, v.phone, vm.material_id, m.name, m.unit, vm.price_per_unit
FROM vendor_materials vm
JOIN vendors v ON v.id = vm.vendor_id
JOIN materials m ON m.id = vm.material_id`
	args := []any{}
	if vendorID > 0 {
		query += ` WHERE vm.vendor_id = $1`
		args = append(args, vendorID)
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY v.name, m.name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VendorMaterial
	for rows.Next() {
		var vm VendorMaterial
		if err := rows.Scan(&vm.VendorID, &vm.VendorName, &vm.Phone, &vm.MaterialID, &vm.MaterialName, &vm.Unit, &vm.PricePerUnit); err != nil {
			return nil, err
		}
		out = append(out, vm)
	}
	return out, rows.Err()
}

// LinkVendorMaterial upserts the vendor's price for a material.
func (r *Repository) LinkVendorMaterial(ctx context.Context, input LinkInput) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO vendor_materials (vendor_id, material_id, price_per_unit)
VALUES ($1, $2, $3)
ON CONFLICT (vendor_id, material_id) DO UPDATE SET price_per_unit = EXCLUDED.price_per_unit`,
		input.VendorID, input.MaterialID, input.PricePerUnit)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown vendor or material", shared.ErrNotFound)
	}
	return err
}

func (t *txRepo) ApplyMovement(ctx context.Context, m inventory.Movement) (inventory.Material, error) {
	return inventory.ApplyMovement(ctx, t.tx, m)
}

// NextPONumber draws the next order number from the purchase order sequence.
func (t *txRepo) NextPONumber(ctx context.Context, year int) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('purchase_order_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return FormatPONumber(year, seq), nil
}

func (t *txRepo) VendorName(ctx context.Context, vendorID int64) (string, error) {
	var name string
	err := t.tx.QueryRow(ctx, `SELECT name FROM vendors WHERE id=$1`, vendorID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w %d", ErrVendorNotFound, vendorID)
	}
	return name, err
}

func (t *txRepo) MaterialCost(ctx context.Context, materialID int64) (string, decimal.Decimal, error) {
	var (
		name string
		cost decimal.Decimal
	)
	err := t.tx.QueryRow(ctx, `SELECT name, cost_per_unit FROM materials WHERE id=$1`, materialID).Scan(&name, &cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", decimal.Zero, fmt.Errorf("%w %d", ErrMaterialNotFound, materialID)
	}
	return name, cost, err
}

func (t *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(po_number, vendor_id, vendor_name, material_id, material_name, qty_ordered, qty_delivered, remaining_qty,
 unit_cost, total_cost, status, expected_delivery, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		po.Number, po.VendorID, po.VendorName, po.MaterialID, po.MaterialName, po.QtyOrdered, po.QtyDelivered,
		po.RemainingQty, po.UnitCost, po.TotalCost, string(po.Status), po.ExpectedDelivery, po.Notes).Scan(&id)
	return id, err
}

// LockPO loads an order and holds its row lock until the transaction ends.
func (t *txRepo) LockPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(t.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, fmt.Errorf("%w %d", ErrPONotFound, id)
	}
	return po, err
}

func (t *txRepo) UpdateDelivery(ctx context.Context, po PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders
SET qty_delivered=$2, remaining_qty=$3, status=$4, delivered_at=COALESCE($5, delivered_at)
WHERE id=$1`, po.ID, po.QtyDelivered, po.RemainingQty, string(po.Status), po.DeliveredAt)
	return err
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

// FormatPONumber renders PO-{year}-{sequence:04d}.
func FormatPONumber(year int, seq int64) string {
	return fmt.Sprintf("PO-%d-%04d", year, seq)
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var (
		po     PurchaseOrder
		status string
	)
	err := row.Scan(&po.ID, &po.Number, &po.VendorID, &po.VendorName, &po.MaterialID, &po.MaterialName,
		&po.QtyOrdered, &po.QtyDelivered, &po.RemainingQty, &po.UnitCost, &po.TotalCost,
		&status, &po.ExpectedDelivery, &po.DeliveredAt, &po.Notes, &po.CreatedAt)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Status = Status(status)
	return po, nil
}
