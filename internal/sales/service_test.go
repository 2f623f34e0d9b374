package sales

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/menu"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

type memoryRepo struct {
	products  map[int64]ProductSnapshot
	recipes   map[int64][]menu.RecipeEntry
	materials map[int64]inventory.Material
	lines     []Line
	movements []inventory.Movement
	// failAt makes the n-th ApplyMovement of a transaction fail (1-based).
	failAt int
}

type memoryTx struct {
	repo      *memoryRepo
	materials map[int64]inventory.Material
	lines     []Line
	movements []inventory.Movement
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: map[int64]ProductSnapshot{
			1: {ID: 1, Name: "Cold Coffee", Category: "Coffee", Price: decimal.NewFromInt(50), IsActive: true},
			2: {ID: 2, Name: "Masala Chai", Category: "Tea", Price: decimal.NewFromInt(30), IsActive: true},
			3: {ID: 3, Name: "Seasonal Shake", Category: "Shakes", Price: decimal.NewFromInt(120), IsActive: false},
		},
		recipes: map[int64][]menu.RecipeEntry{
			1: {{MaterialID: 10, QuantityRequired: 200}, {MaterialID: 11, QuantityRequired: 15}},
			2: {{MaterialID: 10, QuantityRequired: 100}, {MaterialID: 12, QuantityRequired: 5}},
		},
		materials: map[int64]inventory.Material{
			10: {ID: 10, Name: "Milk", Unit: "ml", CurrentStock: 5000, SafetyStock: 2000},
			11: {ID: 11, Name: "Coffee Beans", Unit: "gm", CurrentStock: 520, SafetyStock: 500},
			12: {ID: 12, Name: "Tea Powder", Unit: "gm", CurrentStock: 300, SafetyStock: 100},
		},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, materials: map[int64]inventory.Material{}}
	for id, m := range r.materials {
		tx.materials[id] = m
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.materials = tx.materials
	r.lines = append(r.lines, tx.lines...)
	r.movements = append(r.movements, tx.movements...)
	return nil
}

func (r *memoryRepo) LinesSince(ctx context.Context, from time.Time) ([]Line, error) {
	var out []Line
	for _, l := range r.lines {
		if from.IsZero() || l.SaleDate.Format(time.DateOnly) >= from.Format(time.DateOnly) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) Live(ctx context.Context, limit int) ([]Line, error) {
	out := append([]Line(nil), r.lines...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memoryTx) ProductSnapshots(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error) {
	out := map[int64]ProductSnapshot{}
	for _, id := range ids {
		if p, ok := tx.repo.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (tx *memoryTx) Recipes(ctx context.Context, productIDs []int64) (map[int64][]menu.RecipeEntry, error) {
	out := map[int64][]menu.RecipeEntry{}
	for _, id := range productIDs {
		out[id] = tx.repo.recipes[id]
	}
	return out, nil
}

func (tx *memoryTx) InsertLine(ctx context.Context, l Line) error {
	l.ID = int64(len(tx.repo.lines) + len(tx.lines) + 1)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = l.SaleDate
	}
	tx.lines = append(tx.lines, l)
	return nil
}

func (tx *memoryTx) ApplyMovement(ctx context.Context, m inventory.Movement) (inventory.Material, error) {
	if tx.repo.failAt > 0 && len(tx.movements)+1 == tx.repo.failAt {
		return inventory.Material{}, errors.New("connection reset by peer")
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

type recordingHooks struct {
	stockReasons []string
	sales        int
	revenue      float64
	alerts       [][]string
}

func (h *recordingHooks) AfterStockChange(ctx context.Context, reason string) {
	h.stockReasons = append(h.stockReasons, reason)
}

func (h *recordingHooks) ObserveSale(mode string, revenue float64, lowStockAlerts int) {
	h.sales++
	h.revenue += revenue
}

func (h *recordingHooks) EnqueueLowStockAlert(ctx context.Context, ref string, materials []string) error {
	h.alerts = append(h.alerts, materials)
	return nil
}

type memoryIdempotency struct{ keys map[string]bool }

func (m *memoryIdempotency) Reserve(ctx context.Context, key, module string) error {
	if m.keys[module+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+key] = true
	return nil
}

func (m *memoryIdempotency) Release(ctx context.Context, key, module string) error {
	delete(m.keys, module+key)
	return nil
}

var fixedNow = time.Date(2026, 3, 14, 11, 30, 0, 0, time.UTC)

func newTestService(repo *memoryRepo, opts Options) (*Service, *recordingHooks) {
	hooks := &recordingHooks{}
	svc := NewService(repo, opts, Deps{Stock: hooks, Metrics: hooks, Alerts: hooks})
	svc.now = func() time.Time { return fixedNow }
	svc.newRef = func() string { return "A1B2C3D4" }
	return svc, hooks
}

func TestRecordSaleTotalsAndDeductions(t *testing.T) {
	repo := newMemoryRepo()
	svc, hooks := newTestService(repo, Options{})

	res, err := svc.RecordSale(context.Background(), CheckoutInput{
		Cart:        Cart{1: {Quantity: 2}, 2: {Quantity: 1}},
		PaymentMode: PaymentUPI,
		Seller:      "ravi",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, decimal.NewFromInt(130).Equal(res.Total))
	require.Equal(t, "Sale recorded! 3 items — ₹130", res.Message)
	require.Equal(t, "A1B2C3D4", res.TransactionRef)

	require.Len(t, repo.lines, 2)
	for _, l := range repo.lines {
		require.Equal(t, "A1B2C3D4", l.TransactionRef)
		require.Equal(t, "ravi", l.SellerName)
		require.Equal(t, PaymentUPI, l.PaymentMode)
	}
	require.True(t, decimal.NewFromInt(100).Equal(repo.lines[0].TotalAmount))
	require.True(t, decimal.NewFromInt(30).Equal(repo.lines[1].TotalAmount))

	// Milk: 5000 - 2*200 - 1*100
	require.InDelta(t, 4500, repo.materials[10].CurrentStock, 1e-9)
	require.InDelta(t, 490, repo.materials[11].CurrentStock, 1e-9)
	require.InDelta(t, 295, repo.materials[12].CurrentStock, 1e-9)

	require.Equal(t, []string{"Coffee Beans"}, res.LowStockAlerts)
	require.Equal(t, []string{inventory.ReasonSale}, hooks.stockReasons)
	require.Equal(t, 1, hooks.sales)
	require.InDelta(t, 130, hooks.revenue, 1e-9)
	require.Equal(t, [][]string{{"Coffee Beans"}}, hooks.alerts)
}

func TestRecordSaleIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	repo.failAt = 2
	svc, hooks := newTestService(repo, Options{})

	_, err := svc.RecordSale(context.Background(), CheckoutInput{
		Cart:        Cart{1: {Quantity: 2}, 2: {Quantity: 1}},
		PaymentMode: PaymentCash,
	})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Equal(t, "Something went wrong, please try again", shared.UserSafeMessage(err))

	require.Empty(t, repo.lines)
	require.Empty(t, repo.movements)
	require.InDelta(t, 5000, repo.materials[10].CurrentStock, 1e-9)
	require.Empty(t, hooks.stockReasons)
}

func TestRecordSaleClampsStockAndReportsMaterialOnce(t *testing.T) {
	repo := newMemoryRepo()
	repo.materials[10] = inventory.Material{ID: 10, Name: "Milk", CurrentStock: 300, SafetyStock: 2000}
	svc, _ := newTestService(repo, Options{})

	res, err := svc.RecordSale(context.Background(), CheckoutInput{
		Cart:        Cart{1: {Quantity: 1}, 2: {Quantity: 3}},
		PaymentMode: PaymentCard,
	})
	require.NoError(t, err)
	require.Zero(t, repo.materials[10].CurrentStock)
	require.Equal(t, []string{"Milk"}, res.LowStockAlerts)
	require.InDelta(t, 505, repo.materials[11].CurrentStock, 1e-9)
}

func TestRecordSaleValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, Options{})
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, CheckoutInput{PaymentMode: PaymentCash})
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.RecordSale(ctx, CheckoutInput{Cart: Cart{1: {Quantity: 1}}, PaymentMode: "Cheque"})
	require.ErrorIs(t, err, ErrInvalidPaymentMode)

	_, err = svc.RecordSale(ctx, CheckoutInput{Cart: Cart{1: {Quantity: 0}}, PaymentMode: PaymentCash})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordSale(ctx, CheckoutInput{Cart: Cart{1: {Quantity: 1000}, 2: {Quantity: 1001}}, PaymentMode: PaymentCash})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Contains(t, err.Error(), "product 2")
	require.Empty(t, repo.lines)

	_, err = svc.RecordSale(ctx, CheckoutInput{Cart: Cart{3: {Quantity: 1}}, PaymentMode: PaymentCash})
	require.ErrorIs(t, err, ErrInactiveProduct)
	require.Empty(t, repo.lines)
}

func TestRecordSaleOrphanPolicies(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, Options{Orphans: OrphanSkip})

	res, err := svc.RecordSale(context.Background(), CheckoutInput{
		Cart:        Cart{2: {Quantity: 1}, 99: {Quantity: 4}},
		PaymentMode: PaymentCash,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{99}, res.Skipped)
	require.Equal(t, 1, res.Items)
	require.Len(t, repo.lines, 1)

	_, err = svc.RecordSale(context.Background(), CheckoutInput{Cart: Cart{99: {Quantity: 1}}, PaymentMode: PaymentCash})
	require.ErrorIs(t, err, ErrNothingRecorded)

	strict, _ := newTestService(repo, Options{Orphans: OrphanAbort})
	_, err = strict.RecordSale(context.Background(), CheckoutInput{
		Cart:        Cart{2: {Quantity: 1}, 99: {Quantity: 1}},
		PaymentMode: PaymentCash,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Len(t, repo.lines, 1)
}

func TestRecordSalePriceMismatch(t *testing.T) {
	stale := decimal.NewFromInt(45)
	cart := Cart{1: {Quantity: 1, UnitPrice: &stale}}

	repo := newMemoryRepo()
	svc, _ := newTestService(repo, Options{PriceMismatch: PriceReject})
	_, err := svc.RecordSale(context.Background(), CheckoutInput{Cart: cart, PaymentMode: PaymentCash})
	require.ErrorIs(t, err, ErrPriceMismatch)
	require.Empty(t, repo.lines)

	lenient, _ := newTestService(repo, Options{PriceMismatch: PriceWarn})
	res, err := lenient.RecordSale(context.Background(), CheckoutInput{Cart: cart, PaymentMode: PaymentCash})
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(50).Equal(res.Total))
	require.Len(t, res.PriceWarnings, 1)
}

func TestRecordSaleIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	hooks := &recordingHooks{}
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := NewService(repo, Options{}, Deps{Stock: hooks, Idempotency: idem})
	input := CheckoutInput{Cart: Cart{2: {Quantity: 1}}, PaymentMode: PaymentCash, IdempotencyKey: "till-1-0042"}

	_, err := svc.RecordSale(context.Background(), input)
	require.NoError(t, err)
	_, err = svc.RecordSale(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.lines, 1)

	repo.failAt = 1
	failing := CheckoutInput{Cart: Cart{2: {Quantity: 1}}, PaymentMode: PaymentCash, IdempotencyKey: "till-1-0043"}
	_, err = svc.RecordSale(context.Background(), failing)
	require.Error(t, err)
	require.False(t, idem.keys[idempotencyModule+"till-1-0043"])
}

func TestKPIsAndStaffTiles(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, Options{})
	today := fixedNow
	lastMonth := fixedNow.AddDate(0, 0, -40)
	repo.lines = []Line{
		{ProductName: "Cold Coffee", Category: "Coffee", Quantity: 2, TotalAmount: decimal.NewFromInt(100), PaymentMode: PaymentUPI, SellerName: "ravi", TransactionRef: "T1", SaleDate: today, CreatedAt: today},
		{ProductName: "Masala Chai", Category: "Tea", Quantity: 3, TotalAmount: decimal.NewFromInt(90), PaymentMode: PaymentUPI, SellerName: "ravi", TransactionRef: "T1", SaleDate: today, CreatedAt: today},
		{ProductName: "Masala Chai", Category: "Tea", Quantity: 1, TotalAmount: decimal.NewFromInt(30), PaymentMode: PaymentCash, SellerName: "anu", TransactionRef: "T2", SaleDate: today, CreatedAt: today.Add(-2 * time.Hour)},
		{ProductName: "Masala Chai", Category: "Tea", Quantity: 5, TotalAmount: decimal.NewFromInt(110), PaymentMode: PaymentCash, SellerName: "anu", TransactionRef: "T0", SaleDate: lastMonth, CreatedAt: lastMonth},
	}

	kpis, err := svc.KPIs(context.Background(), 30)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(220).Equal(kpis.TotalRevenue))
	require.Equal(t, 6, kpis.TotalItems)
	require.Equal(t, 2, kpis.Transactions)
	require.Equal(t, "Masala Chai", kpis.TopProduct)
	require.Equal(t, "Tea", kpis.TopCategory)
	require.InDelta(t, 100.0, kpis.RevenueGrowth, 1e-9)
	require.True(t, decimal.NewFromInt(190).Equal(kpis.RevenueByMode["UPI"]))

	tiles, err := svc.StaffTiles(context.Background())
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	require.Equal(t, "ravi", tiles[0].Seller)
	require.Equal(t, 1, tiles[0].Transactions)
	require.Equal(t, []ProductCount{{ProductName: "Masala Chai", Quantity: 3}, {ProductName: "Cold Coffee", Quantity: 2}}, tiles[0].TopItems)

	seller, err := svc.SellerKPIs(context.Background(), FilterToday)
	require.NoError(t, err)
	require.Equal(t, 6, seller.TotalItems)
	require.Equal(t, "11:00 – 12:00", seller.PeakHour)

	all, err := svc.SellerKPIs(context.Background(), FilterAllTime)
	require.NoError(t, err)
	require.Equal(t, 11, all.TotalItems)
	require.Equal(t, notAvailable, all.PeakHour)

	_, err = svc.SellerKPIs(context.Background(), "yesterday")
	require.ErrorIs(t, err, shared.ErrValidation)
}
