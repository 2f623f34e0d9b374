package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

type memoryRepo struct {
	materials map[int64]Material
	movements []MovementEntry
	failWith  error
}

type memoryTx struct {
	repo    *memoryRepo
	staged  map[int64]Material
	entries []MovementEntry
}

func newMemoryRepo(materials ...Material) *memoryRepo {
	repo := &memoryRepo{materials: make(map[int64]Material)}
	for _, m := range materials {
		repo.materials[m.ID] = m
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, staged: make(map[int64]Material)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if r.failWith != nil {
		return r.failWith
	}
	for id, m := range tx.staged {
		r.materials[id] = m
	}
	r.movements = append(r.movements, tx.entries...)
	return nil
}

func (r *memoryRepo) ListMaterials(ctx context.Context) ([]Material, error) {
	out := make([]Material, 0, len(r.materials))
	for _, m := range r.materials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) GetMaterial(ctx context.Context, id int64) (Material, error) {
	m, ok := r.materials[id]
	if !ok {
		return Material{}, fmt.Errorf("%w %d", ErrMaterialNotFound, id)
	}
	return m, nil
}

func (r *memoryRepo) TopConsumers(ctx context.Context, limit int) ([]ConsumptionRow, error) {
	materials, _ := r.ListMaterials(ctx)
	sort.SliceStable(materials, func(i, j int) bool { return materials[i].AvgDailyUsage > materials[j].AvgDailyUsage })
	out := []ConsumptionRow{}
	for i, m := range materials {
		if i == limit {
			break
		}
		out = append(out, ConsumptionRow{Name: m.Name, Unit: m.Unit, AvgDailyUsage: m.AvgDailyUsage, CurrentStock: m.CurrentStock})
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, materialID int64, limit int) ([]MovementEntry, error) {
	out := []MovementEntry{}
	for i := len(r.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if r.movements[i].MaterialID == materialID {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

func (tx *memoryTx) ApplyMovement(ctx context.Context, m Movement) (Material, error) {
	mat, ok := tx.staged[m.MaterialID]
	if !ok {
		mat, ok = tx.repo.materials[m.MaterialID]
	}
	if !ok {
		return Material{}, fmt.Errorf("%w %d", ErrMaterialNotFound, m.MaterialID)
	}
	mat.CurrentStock = NextStock(mat.CurrentStock, m.Delta)
	tx.staged[m.MaterialID] = mat
	tx.entries = append(tx.entries, MovementEntry{MaterialID: m.MaterialID, Delta: m.Delta, ResultingStock: mat.CurrentStock, Reason: m.Reason, Actor: m.Actor})
	return mat, nil
}

type recordingMetrics struct{ reasons []string }

func (m *recordingMetrics) ObserveStockAdjustment(reason string) {
	m.reasons = append(m.reasons, reason)
}

func milk() Material {
	return Material{ID: 1, Name: "Milk", Unit: "ml", CurrentStock: 100, SafetyStock: 40, AvgDailyUsage: 20, CostPerUnit: 0.065}
}

func TestClassifyBoundaries(t *testing.T) {
	const safety = 40.0
	require.Equal(t, StatusCritical, Classify(19.99, safety))
	require.Equal(t, StatusLow, Classify(safety*0.5, safety))
	require.Equal(t, StatusLow, Classify(safety*0.5+0.001, safety))
	require.Equal(t, StatusLow, Classify(safety, safety))
	require.Equal(t, StatusOK, Classify(safety+0.001, safety))
	require.Equal(t, StatusCritical, Classify(0, safety))
}

func TestDaysRemaining(t *testing.T) {
	require.Equal(t, 5.0, DaysRemaining(100, 20))
	require.Equal(t, 33.3, DaysRemaining(100, 3))
	require.Equal(t, 7.0, DaysRemaining(7, 0))
}

func TestAdjustRoundTrip(t *testing.T) {
	repo := newMemoryRepo(milk())
	metrics := &recordingMetrics{}
	svc := NewService(repo, nil, metrics, nil)
	ctx := context.Background()

	res, err := svc.Adjust(ctx, AdjustInput{MaterialID: 1, Delta: 50, Actor: "meera"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "Stock adjusted by +50.0", res.Message)

	res, err = svc.Adjust(ctx, AdjustInput{MaterialID: 1, Delta: -20, Reason: "spillage"})
	require.NoError(t, err)
	require.Equal(t, "Stock adjusted by -20.0", res.Message)

	rows, err := svc.ListInventory(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InDelta(t, 130, rows[0].CurrentStock, 1e-9)
	require.Equal(t, "Dairy", rows[0].Category)
	require.Equal(t, StatusOK, rows[0].Status)
	require.Equal(t, 6.5, rows[0].DaysRemaining)

	require.Equal(t, []string{ReasonManual, "spillage"}, metrics.reasons)

	history, err := svc.Movements(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "spillage", history[0].Reason)
	require.Equal(t, "meera", history[1].Actor)
}

func TestAdjustClampsAtZero(t *testing.T) {
	repo := newMemoryRepo(milk())
	svc := NewService(repo, nil, nil, nil)

	res, err := svc.Adjust(context.Background(), AdjustInput{MaterialID: 1, Delta: -1000})
	require.NoError(t, err)
	require.Zero(t, res.Material.CurrentStock)
	require.Equal(t, StatusCritical, res.Material.Status)
}

func TestAdjustNeverNegativeAcrossSequence(t *testing.T) {
	repo := newMemoryRepo(milk())
	svc := NewService(repo, nil, nil, nil)
	for _, delta := range []float64{-30, -90, 15, -1, -500, 2.5, -2.5, 10} {
		res, err := svc.Adjust(context.Background(), AdjustInput{MaterialID: 1, Delta: delta})
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.Material.CurrentStock, 0.0)
	}
}

func TestAdjustValidation(t *testing.T) {
	repo := newMemoryRepo(milk())
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, AdjustInput{MaterialID: 1, Delta: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Adjust(ctx, AdjustInput{MaterialID: 99, Delta: 5})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Adjust(ctx, AdjustInput{MaterialID: 1, Delta: 0.0004})
	require.ErrorIs(t, err, ErrZeroAdjustment)

	res, err := svc.Adjust(ctx, AdjustInput{MaterialID: 1, Delta: 2.5004})
	require.NoError(t, err)
	require.Equal(t, 102.5, res.Material.CurrentStock)
}

func TestAdjustStorageFailureIsPersistence(t *testing.T) {
	repo := newMemoryRepo(milk())
	repo.failWith = errors.New("disk full")
	metrics := &recordingMetrics{}
	svc := NewService(repo, nil, metrics, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{MaterialID: 1, Delta: 5})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Equal(t, 100.0, repo.materials[1].CurrentStock)
	require.Empty(t, metrics.reasons)
}

func TestLowStockAndConsumption(t *testing.T) {
	repo := newMemoryRepo(
		milk(),
		Material{ID: 2, Name: "Sugar", Unit: "gm", CurrentStock: 10, SafetyStock: 50, AvgDailyUsage: 90},
		Material{ID: 3, Name: "Straws", Unit: "pcs", CurrentStock: 50, SafetyStock: 50, AvgDailyUsage: 40},
	)
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	names, err := svc.LowStockMaterials(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Straws", "Sugar"}, names)

	top, err := svc.ConsumptionSummary(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "Sugar", top[0].Name)
	require.Equal(t, "Straws", top[1].Name)
}

func TestCategoryRegistry(t *testing.T) {
	require.Equal(t, "Packaging", CategoryOf("Straws"))
	require.Equal(t, CategoryOther, CategoryOf("Saffron"))
	require.Contains(t, Categories(), "Milkshake Mix-ins")
}
