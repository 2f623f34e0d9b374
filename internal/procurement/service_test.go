package procurement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

type memoryProcRepo struct {
	orders    map[int64]PurchaseOrder
	vendors   map[int64]Vendor
	materials map[int64]inventory.Material
	costs     map[int64]decimal.Decimal
	links     []VendorMaterial
	movements []inventory.Movement
	seq       int64
	nextID    int64
	failStock bool
}

type memoryProcTx struct {
	repo      *memoryProcRepo
	orders    map[int64]PurchaseOrder
	materials map[int64]inventory.Material
	movements []inventory.Movement
	seq       int64
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{
		orders:  map[int64]PurchaseOrder{},
		vendors: map[int64]Vendor{1: {ID: 1, Name: "Nandini Dairy"}},
		materials: map[int64]inventory.Material{
			10: {ID: 10, Name: "Milk", Unit: "ml", CurrentStock: 1000, SafetyStock: 2000},
		},
		costs: map[int64]decimal.Decimal{10: decimal.RequireFromString("0.06")},
	}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryProcTx{repo: r, orders: map[int64]PurchaseOrder{}, materials: map[int64]inventory.Material{}, seq: r.seq}
	for id, po := range r.orders {
		tx.orders[id] = po
	}
	for id, m := range r.materials {
		tx.materials[id] = m
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.orders, r.materials, r.seq = tx.orders, tx.materials, tx.seq
	r.movements = append(r.movements, tx.movements...)
	return nil
}

func (r *memoryProcRepo) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error) {
	out := make([]PurchaseOrder, 0, len(r.orders))
	for id := r.nextID; id > 0; id-- {
		if po, ok := r.orders[id]; ok {
			out = append(out, po)
		}
	}
	return out, nil
}

func (r *memoryProcRepo) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("%w %d", ErrPONotFound, id)
	}
	return po, nil
}

func (r *memoryProcRepo) ListVendors(ctx context.Context) ([]Vendor, error) {
	out := []Vendor{}
	for _, v := range r.vendors {
		out = append(out, v)
	}
	return out, nil
}

func (r *memoryProcRepo) AddVendor(ctx context.Context, input VendorInput) (int64, error) {
	for _, v := range r.vendors {
		if v.Name == input.Name {
			return 0, ErrDuplicateVendor
		}
	}
	id := int64(len(r.vendors) + 1)
	r.vendors[id] = Vendor{ID: id, Name: input.Name, Phone: input.Phone, Email: input.Email, LeadTimeDays: input.LeadTimeDays}
	return id, nil
}

func (r *memoryProcRepo) DeleteVendor(ctx context.Context, id int64) error {
	if _, ok := r.vendors[id]; !ok {
		return ErrVendorNotFound
	}
	for _, po := range r.orders {
		if po.VendorID == id {
			return ErrVendorInUse
		}
	}
	delete(r.vendors, id)
	return nil
}

func (r *memoryProcRepo) ListVendorMaterials(ctx context.Context, vendorID int64) ([]VendorMaterial, error) {
	out := []VendorMaterial{}
	for _, l := range r.links {
		if vendorID == 0 || l.VendorID == vendorID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryProcRepo) LinkVendorMaterial(ctx context.Context, input LinkInput) error {
	r.links = append(r.links, VendorMaterial{VendorID: input.VendorID, MaterialID: input.MaterialID, PricePerUnit: input.PricePerUnit})
	return nil
}

func (tx *memoryProcTx) ApplyMovement(ctx context.Context, m inventory.Movement) (inventory.Material, error) {
	if tx.repo.failStock {
		return inventory.Material{}, errors.New("deadlock detected")
	}
	mat, ok := tx.materials[m.MaterialID]
	if !ok {
		return inventory.Material{}, inventory.ErrMaterialNotFound
	}
	mat.CurrentStock = inventory.NextStock(mat.CurrentStock, m.Delta)
	tx.materials[m.MaterialID] = mat
	tx.movements = append(tx.movements, m)
	return mat, nil
}

func (tx *memoryProcTx) NextPONumber(ctx context.Context, year int) (string, error) {
	tx.seq++
	return FormatPONumber(year, tx.seq), nil
}

func (tx *memoryProcTx) VendorName(ctx context.Context, vendorID int64) (string, error) {
	v, ok := tx.repo.vendors[vendorID]
	if !ok {
		return "", ErrVendorNotFound
	}
	return v.Name, nil
}

func (tx *memoryProcTx) MaterialCost(ctx context.Context, materialID int64) (string, decimal.Decimal, error) {
	m, ok := tx.materials[materialID]
	if !ok {
		return "", decimal.Zero, ErrMaterialNotFound
	}
	return m.Name, tx.repo.costs[materialID], nil
}

func (tx *memoryProcTx) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	tx.repo.nextID++
	po.ID = tx.repo.nextID
	tx.orders[po.ID] = po
	return po.ID, nil
}

func (tx *memoryProcTx) LockPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := tx.orders[id]
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("%w %d", ErrPONotFound, id)
	}
	return po, nil
}

func (tx *memoryProcTx) UpdateDelivery(ctx context.Context, po PurchaseOrder) error {
	tx.orders[po.ID] = po
	return nil
}

func (tx *memoryProcTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	po := tx.orders[id]
	po.Status = status
	tx.orders[id] = po
	return nil
}

type stockCalls struct{ reasons []string }

func (s *stockCalls) AfterStockChange(ctx context.Context, reason string) {
	s.reasons = append(s.reasons, reason)
}

var fixedNow = time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

func newTestService(repo *memoryProcRepo, opts Options) (*Service, *stockCalls) {
	stock := &stockCalls{}
	svc := NewService(repo, stock, nil, opts, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, stock
}

func createOrder(t *testing.T, svc *Service, qty float64) int64 {
	t.Helper()
	res, err := svc.CreatePurchaseOrder(context.Background(), CreateInput{VendorID: 1, MaterialID: 10, QtyOrdered: qty})
	require.NoError(t, err)
	return res.ID
}

func TestCreatePurchaseOrder(t *testing.T) {
	repo := newMemoryProcRepo()
	svc, _ := newTestService(repo, Options{AllowOverDelivery: true})

	res, err := svc.CreatePurchaseOrder(context.Background(), CreateInput{VendorID: 1, MaterialID: 10, QtyOrdered: 5000})
	require.NoError(t, err)
	require.Equal(t, "PO-2026-0001", res.PONumber)
	require.Equal(t, "PO PO-2026-0001 created!", res.Message)

	po := repo.orders[res.ID]
	require.Equal(t, StatusInitiated, po.Status)
	require.Equal(t, "Nandini Dairy", po.VendorName)
	require.Equal(t, "Milk", po.MaterialName)
	require.Zero(t, po.QtyDelivered)
	require.InDelta(t, 5000, po.RemainingQty, 1e-9)
	require.True(t, decimal.RequireFromString("0.06").Equal(po.UnitCost))
	require.True(t, decimal.NewFromInt(300).Equal(po.TotalCost))

	res, err = svc.CreatePurchaseOrder(context.Background(), CreateInput{VendorID: 1, MaterialID: 10, QtyOrdered: 10, UnitCost: decimal.NewFromFloat(0.05)})
	require.NoError(t, err)
	require.Equal(t, "PO-2026-0002", res.PONumber)
	require.True(t, decimal.RequireFromString("0.5").Equal(repo.orders[res.ID].TotalCost))

	_, err = svc.CreatePurchaseOrder(context.Background(), CreateInput{VendorID: 1, MaterialID: 10, QtyOrdered: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreatePurchaseOrder(context.Background(), CreateInput{VendorID: 9, MaterialID: 10, QtyOrdered: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiveDeliveryPartialThenFull(t *testing.T) {
	repo := newMemoryProcRepo()
	svc, stock := newTestService(repo, Options{AllowOverDelivery: true})
	id := createOrder(t, svc, 100)

	res, err := svc.ReceiveDelivery(context.Background(), "meera", id, 40)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyDelivered, res.Status)
	require.InDelta(t, 60, res.Remaining, 1e-9)
	require.Equal(t, "Received 40 units. Status: Partially Delivered. Remaining: 60", res.Message)
	require.Nil(t, repo.orders[id].DeliveredAt)
	require.InDelta(t, 1040, repo.materials[10].CurrentStock, 1e-9)

	res, err = svc.ReceiveDelivery(context.Background(), "meera", id, 60)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, res.Status)
	require.Zero(t, res.Remaining)
	require.NotNil(t, repo.orders[id].DeliveredAt)
	require.Equal(t, fixedNow, *repo.orders[id].DeliveredAt)
	require.InDelta(t, 1100, repo.materials[10].CurrentStock, 1e-9)

	require.Equal(t, []string{inventory.ReasonPODelivery, inventory.ReasonPODelivery}, stock.reasons)
	require.Len(t, repo.movements, 2)
	require.Equal(t, inventory.ReasonPODelivery, repo.movements[0].Reason)
}

func TestTerminalOrdersRejectMutations(t *testing.T) {
	repo := newMemoryProcRepo()
	svc, _ := newTestService(repo, Options{AllowOverDelivery: true})
	id := createOrder(t, svc, 100)
	_, err := svc.ReceiveDelivery(context.Background(), "", id, 100)
	require.NoError(t, err)
	before := repo.orders[id]

	_, err = svc.ReceiveDelivery(context.Background(), "", id, 5)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Contains(t, err.Error(), "Delivered")

	_, err = svc.CancelPurchaseOrder(context.Background(), "", id)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, before, repo.orders[id])
	require.InDelta(t, 1100, repo.materials[10].CurrentStock, 1e-9)
}

func TestCancelKeepsReceivedStock(t *testing.T) {
	repo := newMemoryProcRepo()
	svc, _ := newTestService(repo, Options{AllowOverDelivery: true})
	id := createOrder(t, svc, 100)
	_, err := svc.ReceiveDelivery(context.Background(), "", id, 30)
	require.NoError(t, err)

	res, err := svc.CancelPurchaseOrder(context.Background(), "", id)
	require.NoError(t, err)
	require.Equal(t, "PO cancelled", res.Message)
	require.Equal(t, StatusCancelled, repo.orders[id].Status)
	require.InDelta(t, 30, repo.orders[id].QtyDelivered, 1e-9)
	require.InDelta(t, 1030, repo.materials[10].CurrentStock, 1e-9)

	_, err = svc.ReceiveDelivery(context.Background(), "", id, 10)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Contains(t, err.Error(), "Cancelled")
	_, err = svc.CancelPurchaseOrder(context.Background(), "", id)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestDeliveredQuantityIsMonotonic(t *testing.T) {
	repo := newMemoryProcRepo()
	svc, _ := newTestService(repo, Options{AllowOverDelivery: true})
	id := createOrder(t, svc, 50)

	last := 0.0
	for _, qty := range []float64{10, 0, -5, 15, 40, 3} {
		_, _ = svc.ReceiveDelivery(context.Background(), "", id, qty)
		po := repo.orders[id]
		require.GreaterOrEqual(t, po.QtyDelivered, last)
		remaining, _ := DeriveDelivery(po.QtyOrdered, po.QtyDelivered)
		require.InDelta(t, remaining, po.RemainingQty, 1e-9)
		last = po.QtyDelivered
	}
	po := repo.orders[id]
	require.InDelta(t, 65, po.QtyDelivered, 1e-9)
	require.Zero(t, po.RemainingQty)
	require.Equal(t, StatusDelivered, po.Status)
}

func TestOverDeliveryPolicy(t *testing.T) {
	repo := newMemoryProcRepo()
	strict, _ := newTestService(repo, Options{AllowOverDelivery: false})
	id := createOrder(t, strict, 20)

	_, err := strict.ReceiveDelivery(context.Background(), "", id, 25)
	require.ErrorIs(t, err, ErrOverDelivery)
	require.Zero(t, repo.orders[id].QtyDelivered)

	res, err := strict.ReceiveDelivery(context.Background(), "", id, 20)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, res.Status)
}

func TestQuantitiesFollowColumnScale(t *testing.T) {
	repo := newMemoryProcRepo()
	svc, _ := newTestService(repo, Options{AllowOverDelivery: false})
	ctx := context.Background()

	_, err := svc.CreatePurchaseOrder(ctx, CreateInput{VendorID: 1, MaterialID: 10, QtyOrdered: 0.0004})
	require.ErrorIs(t, err, shared.ErrValidation)

	id := createOrder(t, svc, 10)
	_, err = svc.ReceiveDelivery(ctx, "", id, 0.0004)
	require.ErrorIs(t, err, ErrNonPositiveQty)

	res, err := svc.ReceiveDelivery(ctx, "", id, 9.9996)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, res.Status)
	require.Zero(t, res.Remaining)
	require.Equal(t, 10.0, repo.orders[id].QtyDelivered)
	require.InDelta(t, 1010, repo.materials[10].CurrentStock, 1e-9)

	id = createOrder(t, svc, 1)
	res, err = svc.ReceiveDelivery(ctx, "", id, 0.3334)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyDelivered, res.Status)
	require.Equal(t, 0.667, res.Remaining)

	res, err = svc.ReceiveDelivery(ctx, "", id, 0.6666)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, res.Status)
	require.Zero(t, repo.orders[id].RemainingQty)
}

func TestReceiveDeliveryRollsBackOnLedgerFailure(t *testing.T) {
	repo := newMemoryProcRepo()
	svc, stock := newTestService(repo, Options{AllowOverDelivery: true})
	id := createOrder(t, svc, 100)

	repo.failStock = true
	_, err := svc.ReceiveDelivery(context.Background(), "", id, 40)
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Equal(t, StatusInitiated, repo.orders[id].Status)
	require.Zero(t, repo.orders[id].QtyDelivered)
	require.Empty(t, stock.reasons)
}

func TestVendors(t *testing.T) {
	repo := newMemoryProcRepo()
	svc, _ := newTestService(repo, Options{})

	res, err := svc.AddVendor(context.Background(), "meera", VendorInput{Name: " Chikmagalur Roasters ", Email: "orders@roasters.in", LeadTimeDays: 4})
	require.NoError(t, err)
	require.Equal(t, "Vendor 'Chikmagalur Roasters' added!", res.Message)

	_, err = svc.AddVendor(context.Background(), "meera", VendorInput{Name: "Bad Mail", Email: "not-an-email"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.LinkVendorMaterial(context.Background(), "meera", LinkInput{VendorID: res.ID, MaterialID: 10, PricePerUnit: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrNegativeCost)
	_, err = svc.LinkVendorMaterial(context.Background(), "meera", LinkInput{VendorID: res.ID, MaterialID: 10, PricePerUnit: decimal.NewFromFloat(0.055)})
	require.NoError(t, err)
	links, err := svc.ListVendorMaterials(context.Background(), res.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)

	createOrder(t, svc, 10)
	_, err = svc.DeleteVendor(context.Background(), "meera", 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = svc.DeleteVendor(context.Background(), "meera", res.ID)
	require.NoError(t, err)
}
