package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kfkafe/cafe-ops/internal/jobs"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditPort persists alert records.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LowStockAlertJob logs and records materials that fell to safety stock.
type LowStockAlertJob struct {
	Audit   AuditPort
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockAlertJob wires dependencies for the alert handler.
func NewLowStockAlertJob(audit AuditPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockAlertJob {
	return &LowStockAlertJob{Audit: audit, Logger: logger, Metrics: metrics}
}

// Handle processes low-stock alert tasks.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("low stock alert: handler not configured")
	}
	var payload LowStockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.Materials) == 0 {
		return nil
	}

	tracker := j.metrics().Track(TaskLowStockAlert)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("transaction_ref", payload.TransactionRef))
	logger.Warn("materials at or below safety stock", slog.String("materials", strings.Join(payload.Materials, ", ")))
	j.metrics().AddAlertedMaterials(payload.Materials)

	if j.Audit == nil {
		return nil
	}
	err := j.Audit.Record(ctx, shared.AuditLog{
		Actor:    "worker",
		Action:   "stock:low-alert",
		Entity:   "sale",
		EntityID: payload.TransactionRef,
		Meta:     map[string]any{"materials": payload.Materials},
	})
	if err != nil {
		logger.Error("record low stock alert", slog.Any("error", err))
		return err
	}
	return nil
}

func (j *LowStockAlertJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockAlert))
	}
	return slog.Default().With(slog.String("job", TaskLowStockAlert))
}

func (j *LowStockAlertJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
