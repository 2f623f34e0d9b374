package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert reports materials a sale left at or below safety stock.
	TaskLowStockAlert = "inventory:low-stock-alert"
	// TaskAtRiskWarmup recomputes and caches the at-risk projection.
	TaskAtRiskWarmup = "inventory:at-risk-warmup"
)

// LowStockAlertPayload carries the sale that triggered the alert.
type LowStockAlertPayload struct {
	TransactionRef string    `json:"transaction_ref"`
	Materials      []string  `json:"materials"`
	RaisedAt       time.Time `json:"raised_at"`
}

// NewLowStockAlertTask constructs an Asynq task.
func NewLowStockAlertTask(payload LowStockAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// AtRiskWarmupPayload records what requested the warmup.
type AtRiskWarmupPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewAtRiskWarmupTask builds a warmup task tagged with what requested it.
func NewAtRiskWarmupTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(AtRiskWarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAtRiskWarmup, data, asynq.Queue(QueueDefault)), nil
}
