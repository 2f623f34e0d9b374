package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
	AddVendor(ctx context.Context, input VendorInput) (int64, error)
	DeleteVendor(ctx context.Context, id int64) error
	ListVendorMaterials(ctx context.Context, vendorID int64) ([]VendorMaterial, error)
	LinkVendorMaterial(ctx context.Context, input LinkInput) error
}

// StockHook runs ledger post-commit work.
type StockHook interface {
	AfterStockChange(ctx context.Context, reason string)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Options tunes the delivery rules.
type Options struct {
	AllowOverDelivery bool
}

// Service orchestrates purchase orders and vendors.
type Service struct {
	repo   RepositoryPort
	stock  StockHook
	audit  AuditPort
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs procurement service. stock and audit may be nil.
func NewService(repo RepositoryPort, stock StockHook, audit AuditPort, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, audit: audit, opts: opts, logger: logger, now: time.Now}
}

// CreatePurchaseOrder opens an Initiated order with a fresh sequential number.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreateInput) (CreateResult, error) {
	input.Notes = strings.TrimSpace(input.Notes)
	input.QtyOrdered = shared.RoundQuantity(input.QtyOrdered, shared.StockScale)
	if err := shared.ValidateStruct(input); err != nil {
		return CreateResult{}, err
	}
	if input.UnitCost.IsNegative() {
		return CreateResult{}, ErrNegativeCost
	}

	po := PurchaseOrder{
		VendorID:         input.VendorID,
		MaterialID:       input.MaterialID,
		QtyOrdered:       input.QtyOrdered,
		RemainingQty:     input.QtyOrdered,
		UnitCost:         input.UnitCost,
		Status:           StatusInitiated,
		ExpectedDelivery: input.ExpectedDelivery,
		Notes:            input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		vendor, err := tx.VendorName(ctx, input.VendorID)
		if err != nil {
			return err
		}
		material, cost, err := tx.MaterialCost(ctx, input.MaterialID)
		if err != nil {
			return err
		}
		po.VendorName, po.MaterialName = vendor, material
		if !po.UnitCost.IsPositive() {
			po.UnitCost = cost
		}
		po.TotalCost = po.UnitCost.Mul(decimal.NewFromFloat(po.QtyOrdered)).Round(2)
		if po.Number, err = tx.NextPONumber(ctx, s.now().Year()); err != nil {
			return err
		}
		po.ID, err = tx.InsertPO(ctx, po)
		return err
	})
	if err != nil {
		return CreateResult{}, s.persistence("procurement: create purchase order", err)
	}
	s.recordAudit(ctx, input.Actor, "po:create", po.ID, map[string]any{
		"number":   po.Number,
		"vendor":   po.VendorName,
		"material": po.MaterialName,
		"qty":      po.QtyOrdered,
	})
	return CreateResult{Success: true, Message: fmt.Sprintf("PO %s created!", po.Number), ID: po.ID, PONumber: po.Number}, nil
}

// ReceiveDelivery adds qtyReceived to the order and to the material's stock.
func (s *Service) ReceiveDelivery(ctx context.Context, actor string, poID int64, qtyReceived float64) (DeliveryResult, error) {
	qtyReceived = shared.RoundQuantity(qtyReceived, shared.StockScale)
	if qtyReceived <= 0 {
		return DeliveryResult{}, ErrNonPositiveQty
	}
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.LockPO(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status.Terminal() {
			return fmt.Errorf("%w: cannot receive delivery for a %s PO", ErrInvalidState, po.Status)
		}
		if !s.opts.AllowOverDelivery && qtyReceived > po.RemainingQty {
			return fmt.Errorf("%w: %.0f remaining", ErrOverDelivery, po.RemainingQty)
		}
		po.QtyDelivered = shared.RoundQuantity(po.QtyDelivered+qtyReceived, shared.StockScale)
		po.RemainingQty, po.Status = DeriveDelivery(po.QtyOrdered, po.QtyDelivered)
		if po.Status == StatusDelivered {
			now := s.now()
			po.DeliveredAt = &now
		}
		if err := tx.UpdateDelivery(ctx, po); err != nil {
			return err
		}
		_, err = tx.ApplyMovement(ctx, inventory.Movement{
			MaterialID: po.MaterialID,
			Delta:      qtyReceived,
			Reason:     inventory.ReasonPODelivery,
			Actor:      actor,
		})
		return err
	})
	if err != nil {
		return DeliveryResult{}, s.persistence("procurement: receive delivery", err)
	}
	if s.stock != nil {
		s.stock.AfterStockChange(ctx, inventory.ReasonPODelivery)
	}
	s.recordAudit(ctx, actor, "po:deliver", po.ID, map[string]any{
		"number":    po.Number,
		"received":  qtyReceived,
		"status":    string(po.Status),
		"remaining": po.RemainingQty,
	})
	return DeliveryResult{
		Success:   true,
		Message:   fmt.Sprintf("Received %.0f units. Status: %s. Remaining: %.0f", qtyReceived, po.Status, po.RemainingQty),
		Status:    po.Status,
		Delivered: po.QtyDelivered,
		Remaining: po.RemainingQty,
	}, nil
}

// CancelPurchaseOrder cancels an open order. Stock already received stays.
func (s *Service) CancelPurchaseOrder(ctx context.Context, actor string, poID int64) (Result, error) {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPO(ctx, poID)
		if err != nil {
			return err
		}
		switch po.Status {
		case StatusDelivered:
			return fmt.Errorf("%w: cannot cancel a delivered PO", ErrInvalidState)
		case StatusCancelled:
			return fmt.Errorf("%w: PO is already %s", ErrInvalidState, po.Status)
		}
		number = po.Number
		return tx.UpdateStatus(ctx, poID, StatusCancelled)
	})
	if err != nil {
		return Result{}, s.persistence("procurement: cancel purchase order", err)
	}
	s.recordAudit(ctx, actor, "po:cancel", poID, map[string]any{"number": number})
	return Result{Success: true, Message: "PO cancelled"}, nil
}

// ListPurchaseOrders returns orders newest first.
func (s *Service) ListPurchaseOrders(ctx context.Context) ([]PurchaseOrder, error) {
	orders, err := s.repo.ListPurchaseOrders(ctx)
	if err != nil {
		return nil, s.persistence("procurement: list purchase orders", err)
	}
	return orders, nil
}

// GetPurchaseOrder loads one order.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, s.persistence("procurement: get purchase order", err)
	}
	return po, nil
}

// ListVendors returns vendors ordered by name.
func (s *Service) ListVendors(ctx context.Context) ([]Vendor, error) {
	vendors, err := s.repo.ListVendors(ctx)
	if err != nil {
		return nil, s.persistence("procurement: list vendors", err)
	}
	return vendors, nil
}

// AddVendor registers a vendor.
func (s *Service) AddVendor(ctx context.Context, actor string, input VendorInput) (CreateResult, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Email = strings.TrimSpace(input.Email)
	if err := shared.ValidateStruct(input); err != nil {
		return CreateResult{}, err
	}
	id, err := s.repo.AddVendor(ctx, input)
	if err != nil {
		return CreateResult{}, s.persistence("procurement: add vendor", err)
	}
	s.recordAudit(ctx, actor, "vendor:create", id, map[string]any{"name": input.Name})
	return CreateResult{Success: true, Message: fmt.Sprintf("Vendor '%s' added!", input.Name), ID: id}, nil
}

// DeleteVendor removes a vendor that has no purchase orders.
func (s *Service) DeleteVendor(ctx context.Context, actor string, id int64) (Result, error) {
	if err := s.repo.DeleteVendor(ctx, id); err != nil {
		return Result{}, s.persistence("procurement: delete vendor", err)
	}
	s.recordAudit(ctx, actor, "vendor:delete", id, nil)
	return Result{Success: true, Message: "Vendor deleted"}, nil
}

// ListVendorMaterials returns price links, all of them when vendorID is zero.
func (s *Service) ListVendorMaterials(ctx context.Context, vendorID int64) ([]VendorMaterial, error) {
	links, err := s.repo.ListVendorMaterials(ctx, vendorID)
	if err != nil {
		return nil, s.persistence("procurement: list vendor materials", err)
	}
	return links, nil
}

// LinkVendorMaterial sets the price a vendor charges for a material.
func (s *Service) LinkVendorMaterial(ctx context.Context, actor string, input LinkInput) (Result, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Result{}, err
	}
	if input.PricePerUnit.IsNegative() {
		return Result{}, ErrNegativeCost
	}
	if err := s.repo.LinkVendorMaterial(ctx, input); err != nil {
		return Result{}, s.persistence("procurement: link vendor material", err)
	}
	s.recordAudit(ctx, actor, "vendor:price", input.VendorID, map[string]any{
		"material_id": input.MaterialID,
		"price":       input.PricePerUnit.String(),
	})
	return Result{Success: true, Message: "Vendor price saved"}, nil
}

func (s *Service) persistence(op string, err error) error {
	err = shared.Persistence(op, err)
	if !shared.IsDomain(err) {
		s.logger.Error(op, slog.Any("error", err))
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("audit procurement", slog.String("action", action), slog.Any("error", err))
	}
}
