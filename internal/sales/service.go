package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

const idempotencyModule = "sales:checkout"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LinesSince(ctx context.Context, from time.Time) ([]Line, error)
	Live(ctx context.Context, limit int) ([]Line, error)
}

// StockHook runs ledger post-commit work.
type StockHook interface {
	AfterStockChange(ctx context.Context, reason string)
}

// MetricsPort records committed checkouts.
type MetricsPort interface {
	ObserveSale(paymentMode string, revenue float64, lowStockAlerts int)
}

// AlertPublisher hands low-stock alerts to background processing.
type AlertPublisher interface {
	EnqueueLowStockAlert(ctx context.Context, transactionRef string, materials []string) error
}

// IdempotencyPort guards against replayed checkouts.
type IdempotencyPort interface {
	Reserve(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// Deps groups the optional collaborators of Service.
type Deps struct {
	Stock       StockHook
	Metrics     MetricsPort
	Alerts      AlertPublisher
	Idempotency IdempotencyPort
	Logger      *slog.Logger
}

// Service records checkouts and reports on the sales ledger.
type Service struct {
	repo        RepositoryPort
	opts        Options
	stock       StockHook
	metrics     MetricsPort
	alerts      AlertPublisher
	idempotency IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
	newRef      func() string
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, opts Options, deps Deps) *Service {
	if opts.PriceMismatch == "" {
		opts.PriceMismatch = PriceReject
	}
	if opts.Orphans == "" {
		opts.Orphans = OrphanSkip
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		opts:        opts,
		stock:       deps.Stock,
		metrics:     deps.Metrics,
		alerts:      deps.Alerts,
		idempotency: deps.Idempotency,
		logger:      logger,
		now:         time.Now,
		newRef:      newTransactionRef,
	}
}

func newTransactionRef() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// RecordSale records every cart entry under one transaction ref and deducts
// recipe materials from the stock ledger. Either every line and deduction
// persists or none does.
func (s *Service) RecordSale(ctx context.Context, input CheckoutInput) (Result, error) {
	if len(input.Cart) == 0 {
		return Result{}, ErrEmptyCart
	}
	if !input.PaymentMode.Valid() {
		return Result{}, ErrInvalidPaymentMode
	}
	for id, item := range input.Cart {
		if id <= 0 {
			return Result{}, fmt.Errorf("%w: product id %d", shared.ErrValidation, id)
		}
		if err := shared.ValidateStruct(item); err != nil {
			return Result{}, fmt.Errorf("product %d: %w", id, ErrInvalidQuantity)
		}
	}
	seller := strings.TrimSpace(input.Seller)
	if seller == "" {
		seller = "Unknown"
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Reserve(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Result{}, err
			}
			s.logger.Warn("reserve checkout key", slog.Any("error", err))
			input.IdempotencyKey = ""
		}
	}

	ids := make([]int64, 0, len(input.Cart))
	for id := range input.Cart {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ref := s.newRef()
	saleDate := s.now()
	result := Result{TransactionRef: ref, Total: decimal.Zero, LowStockAlerts: []string{}, Skipped: []int64{}}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := tx.ProductSnapshots(ctx, ids)
		if err != nil {
			return err
		}
		sold := make([]int64, 0, len(ids))
		for _, id := range ids {
			item := input.Cart[id]
			product, ok := products[id]
			if !ok {
				if s.opts.Orphans == OrphanAbort {
					return fmt.Errorf("%w %d", ErrProductNotFound, id)
				}
				result.Skipped = append(result.Skipped, id)
				continue
			}
			if !product.IsActive {
				return fmt.Errorf("%w: %s", ErrInactiveProduct, product.Name)
			}
			if item.UnitPrice != nil && !item.UnitPrice.Equal(product.Price) {
				mismatch := fmt.Sprintf("%s is %s, cart showed %s", product.Name, shared.FormatINR(product.Price), shared.FormatINR(*item.UnitPrice))
				if s.opts.PriceMismatch == PriceReject {
					return fmt.Errorf("%w: %s", ErrPriceMismatch, mismatch)
				}
				result.PriceWarnings = append(result.PriceWarnings, mismatch)
			}

			total := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			if err := tx.InsertLine(ctx, Line{
				ProductID:      product.ID,
				ProductName:    product.Name,
				Category:       product.Category,
				Quantity:       item.Quantity,
				UnitPrice:      product.Price,
				TotalAmount:    total,
				PaymentMode:    input.PaymentMode,
				SellerName:     seller,
				TransactionRef: ref,
				SaleDate:       saleDate,
			}); err != nil {
				return err
			}
			result.Total = result.Total.Add(total)
			result.Items += item.Quantity
			sold = append(sold, id)
		}
		if len(sold) == 0 {
			return ErrNothingRecorded
		}

		recipes, err := tx.Recipes(ctx, sold)
		if err != nil {
			return err
		}
		deductions := make(map[int64]float64)
		for _, id := range sold {
			qty := float64(input.Cart[id].Quantity)
			for _, entry := range recipes[id] {
				deductions[entry.MaterialID] += entry.QuantityRequired * qty
			}
		}
		// Deductions apply in ascending material id order.
		materialIDs := make([]int64, 0, len(deductions))
		for id := range deductions {
			materialIDs = append(materialIDs, id)
		}
		sort.Slice(materialIDs, func(i, j int) bool { return materialIDs[i] < materialIDs[j] })

		seen := make(map[string]struct{})
		for _, materialID := range materialIDs {
			mat, err := tx.ApplyMovement(ctx, inventory.Movement{
				MaterialID: materialID,
				Delta:      -deductions[materialID],
				Reason:     inventory.ReasonSale,
				Actor:      seller,
			})
			if err != nil {
				return err
			}
			if !mat.Status().AtRisk() {
				continue
			}
			if _, dup := seen[mat.Name]; dup {
				continue
			}
			seen[mat.Name] = struct{}{}
			result.LowStockAlerts = append(result.LowStockAlerts, mat.Name)
		}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if relErr := s.idempotency.Release(ctx, input.IdempotencyKey, idempotencyModule); relErr != nil {
				s.logger.Warn("release checkout key", slog.Any("error", relErr))
			}
		}
		err = shared.Persistence("sales: record sale", err)
		if !shared.IsDomain(err) {
			s.logger.Error("record sale", slog.String("transaction_ref", ref), slog.Any("error", err))
		}
		return Result{}, err
	}

	result.Success = true
	result.Message = fmt.Sprintf("Sale recorded! %d items — %s", result.Items, shared.FormatINR(result.Total))
	s.afterCommit(ctx, input.PaymentMode, result)
	return result, nil
}

func (s *Service) afterCommit(ctx context.Context, mode PaymentMode, result Result) {
	if s.stock != nil {
		s.stock.AfterStockChange(ctx, inventory.ReasonSale)
	}
	if s.metrics != nil {
		revenue, _ := result.Total.Float64()
		s.metrics.ObserveSale(string(mode), revenue, len(result.LowStockAlerts))
	}
	if len(result.Skipped) > 0 {
		s.logger.Warn("skipped missing products", slog.String("transaction_ref", result.TransactionRef), slog.Any("product_ids", result.Skipped))
	}
	if len(result.LowStockAlerts) == 0 || s.alerts == nil {
		return
	}
	if err := s.alerts.EnqueueLowStockAlert(ctx, result.TransactionRef, result.LowStockAlerts); err != nil {
		s.logger.Warn("enqueue low stock alert", slog.String("transaction_ref", result.TransactionRef), slog.Any("error", err))
	}
}

// KPIs summarises the trailing window of days against the window before it.
func (s *Service) KPIs(ctx context.Context, days int) (KPIs, error) {
	if days <= 0 {
		days = 30
	}
	today := startOfDay(s.now())
	start := today.AddDate(0, 0, -days)
	lines, err := s.repo.LinesSince(ctx, today.AddDate(0, 0, -2*days))
	if err != nil {
		return KPIs{}, s.persistence("sales: kpis", err)
	}

	cutoff := start.Format(time.DateOnly)
	var current []Line
	previous := decimal.Zero
	for _, l := range lines {
		if l.SaleDate.Format(time.DateOnly) >= cutoff {
			current = append(current, l)
			continue
		}
		previous = previous.Add(l.TotalAmount)
	}

	out := KPIs{
		Days:          days,
		TotalRevenue:  decimal.Zero,
		TopProduct:    notAvailable,
		TopCategory:   notAvailable,
		RevenueByMode: map[string]decimal.Decimal{},
	}
	qtyByProduct := map[string]float64{}
	revenueByCategory := map[string]float64{}
	refs := map[string]struct{}{}
	for _, l := range current {
		out.TotalRevenue = out.TotalRevenue.Add(l.TotalAmount)
		out.TotalItems += l.Quantity
		refs[l.TransactionRef] = struct{}{}
		qtyByProduct[l.ProductName] += float64(l.Quantity)
		amount, _ := l.TotalAmount.Float64()
		revenueByCategory[l.Category] += amount
		mode := string(l.PaymentMode)
		out.RevenueByMode[mode] = out.RevenueByMode[mode].Add(l.TotalAmount)
	}
	out.Transactions = len(refs)
	if top, ok := argMax(qtyByProduct); ok {
		out.TopProduct = top
	}
	if top, ok := argMax(revenueByCategory); ok {
		out.TopCategory = top
	}
	if previous.IsPositive() {
		growth, _ := out.TotalRevenue.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(1).Float64()
		out.RevenueGrowth = growth
	}
	out.FormattedRevenue = shared.FormatINR(out.TotalRevenue)
	return out, nil
}

// StaffTiles returns today's performance per seller, best revenue first.
func (s *Service) StaffTiles(ctx context.Context) ([]StaffTile, error) {
	today := startOfDay(s.now())
	lines, err := s.repo.LinesSince(ctx, today)
	if err != nil {
		return nil, s.persistence("sales: staff tiles", err)
	}
	lines = onDay(lines, today)

	type agg struct {
		tile StaffTile
		refs map[string]struct{}
		qty  map[string]int
	}
	bySeller := map[string]*agg{}
	for _, l := range lines {
		a, ok := bySeller[l.SellerName]
		if !ok {
			a = &agg{tile: StaffTile{Seller: l.SellerName, Revenue: decimal.Zero}, refs: map[string]struct{}{}, qty: map[string]int{}}
			bySeller[l.SellerName] = a
		}
		a.tile.Items += l.Quantity
		a.tile.Revenue = a.tile.Revenue.Add(l.TotalAmount)
		a.refs[l.TransactionRef] = struct{}{}
		a.qty[l.ProductName] += l.Quantity
	}

	tiles := make([]StaffTile, 0, len(bySeller))
	for _, a := range bySeller {
		a.tile.Transactions = len(a.refs)
		a.tile.TopItems = topCounts(a.qty, 5)
		tiles = append(tiles, a.tile)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if c := tiles[i].Revenue.Cmp(tiles[j].Revenue); c != 0 {
			return c > 0
		}
		return tiles[i].Seller < tiles[j].Seller
	})
	return tiles, nil
}

// SellerKPIs returns item counts, favourites and the busiest hour.
// The peak hour is only computed for FilterToday.
func (s *Service) SellerKPIs(ctx context.Context, filter string) (SellerKPIs, error) {
	var (
		lines []Line
		err   error
	)
	today := startOfDay(s.now())
	switch filter {
	case "", FilterToday:
		filter = FilterToday
		lines, err = s.repo.LinesSince(ctx, today)
		lines = onDay(lines, today)
	case FilterAllTime:
		lines, err = s.repo.LinesSince(ctx, time.Time{})
	default:
		return SellerKPIs{}, fmt.Errorf("%w: filter must be today or all_time", shared.ErrValidation)
	}
	if err != nil {
		return SellerKPIs{}, s.persistence("sales: seller kpis", err)
	}

	out := SellerKPIs{TopItem: notAvailable, TopCategory: notAvailable, PeakHour: notAvailable}
	if len(lines) == 0 {
		return out, nil
	}
	byProduct := map[string]float64{}
	byCategory := map[string]float64{}
	byHour := map[int]int{}
	for _, l := range lines {
		out.TotalItems += l.Quantity
		byProduct[l.ProductName] += float64(l.Quantity)
		byCategory[l.Category] += float64(l.Quantity)
		if !l.CreatedAt.IsZero() {
			byHour[l.CreatedAt.In(s.now().Location()).Hour()] += l.Quantity
		}
	}
	out.TopItem, _ = argMax(byProduct)
	out.TopCategory, _ = argMax(byCategory)
	if filter == FilterToday && len(byHour) > 0 {
		peak, best := 0, -1
		for hour, qty := range byHour {
			if qty > best || (qty == best && hour < peak) {
				peak, best = hour, qty
			}
		}
		out.PeakHour = fmt.Sprintf("%02d:00 – %02d:00", peak, peak+1)
	}
	return out, nil
}

// LiveSales returns the most recent sale lines.
func (s *Service) LiveSales(ctx context.Context, limit int) ([]Line, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	lines, err := s.repo.Live(ctx, limit)
	if err != nil {
		return nil, s.persistence("sales: live", err)
	}
	return lines, nil
}

func (s *Service) persistence(op string, err error) error {
	err = shared.Persistence(op, err)
	if !shared.IsDomain(err) {
		s.logger.Error(op, slog.Any("error", err))
	}
	return err
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func onDay(lines []Line, day time.Time) []Line {
	key := day.Format(time.DateOnly)
	out := lines[:0:0]
	for _, l := range lines {
		if l.SaleDate.Format(time.DateOnly) == key {
			out = append(out, l)
		}
	}
	return out
}

// argMax picks the key with the largest value, ties broken alphabetically.
func argMax(values map[string]float64) (string, bool) {
	best, bestVal, found := "", 0.0, false
	for k, v := range values {
		if !found || v > bestVal || (v == bestVal && k < best) {
			best, bestVal, found = k, v, true
		}
	}
	return best, found
}

func topCounts(values map[string]int, n int) []ProductCount {
	out := make([]ProductCount, 0, len(values))
	for name, qty := range values {
		out = append(out, ProductCount{ProductName: name, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].ProductName < out[j].ProductName
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
