package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMaterials(ctx context.Context) ([]Material, error)
	GetMaterial(ctx context.Context, id int64) (Material, error)
	TopConsumers(ctx context.Context, limit int) ([]ConsumptionRow, error)
	ListMovements(ctx context.Context, materialID int64, limit int) ([]MovementEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort records ledger activity.
type MetricsPort interface {
	ObserveStockAdjustment(reason string)
}

// Service coordinates inventory operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
}

// NewService builds Service. audit and metrics may be nil.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// Adjust applies a signed manual correction to one material.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (AdjustResult, error) {
	input.Delta = shared.RoundQuantity(input.Delta, shared.StockScale)
	if input.Delta == 0 {
		return AdjustResult{}, ErrZeroAdjustment
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		input.Reason = ReasonManual
	}
	if err := shared.ValidateStruct(input); err != nil {
		return AdjustResult{}, err
	}

	var mat Material
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mat, err = tx.ApplyMovement(ctx, Movement{
			MaterialID: input.MaterialID,
			Delta:      input.Delta,
			Reason:     input.Reason,
			Actor:      input.Actor,
		})
		return err
	})
	if err != nil {
		return AdjustResult{}, s.persistence(fmt.Sprintf("inventory: adjust stock of material %d", input.MaterialID), err)
	}

	s.AfterStockChange(ctx, input.Reason)
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    input.Actor,
			Action:   "inventory:adjust",
			Entity:   "material",
			EntityID: fmt.Sprintf("%d", mat.ID),
			Meta: map[string]any{
				"delta":  input.Delta,
				"reason": input.Reason,
				"stock":  mat.CurrentStock,
			},
		}); err != nil {
			s.logger.Warn("audit stock adjustment", slog.Any("error", err))
		}
	}
	return AdjustResult{
		Success:  true,
		Message:  fmt.Sprintf("Stock adjusted by %+.1f", input.Delta),
		Material: NewRow(mat),
	}, nil
}

// AfterStockChange records a committed ledger mutation. Sales and
// purchase-order deliveries call it once per committed transaction.
func (s *Service) AfterStockChange(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.ObserveStockAdjustment(reason)
	}
}

// ListInventory returns every material with derived status and days remaining.
func (s *Service) ListInventory(ctx context.Context) ([]Row, error) {
	materials, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return nil, s.persistence("inventory: list materials", err)
	}
	rows := make([]Row, 0, len(materials))
	for _, m := range materials {
		rows = append(rows, NewRow(m))
	}
	return rows, nil
}

// GetMaterial returns the listing row of one material.
func (s *Service) GetMaterial(ctx context.Context, id int64) (Row, error) {
	m, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		return Row{}, s.persistence("inventory: get material", err)
	}
	return NewRow(m), nil
}

// LowStockMaterials lists names of materials whose status is Low or Critical.
func (s *Service) LowStockMaterials(ctx context.Context) ([]string, error) {
	materials, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return nil, s.persistence("inventory: list materials", err)
	}
	names := []string{}
	for _, m := range materials {
		if m.Status().AtRisk() {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// ConsumptionSummary lists the materials consumed fastest per day.
func (s *Service) ConsumptionSummary(ctx context.Context, limit int) ([]ConsumptionRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.repo.TopConsumers(ctx, limit)
	if err != nil {
		return nil, s.persistence("inventory: consumption summary", err)
	}
	return rows, nil
}

// Movements returns the stock history of a material, newest first.
func (s *Service) Movements(ctx context.Context, materialID int64, limit int) ([]MovementEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if _, err := s.repo.GetMaterial(ctx, materialID); err != nil {
		return nil, s.persistence("inventory: get material", err)
	}
	entries, err := s.repo.ListMovements(ctx, materialID, limit)
	if err != nil {
		return nil, s.persistence("inventory: list movements", err)
	}
	return entries, nil
}

// persistence classifies err and logs storage faults.
func (s *Service) persistence(op string, err error) error {
	err = shared.Persistence(op, err)
	if !shared.IsDomain(err) {
		s.logger.Error(op, slog.Any("error", err))
	}
	return err
}
