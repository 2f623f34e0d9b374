package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kfkafe/cafe-ops/internal/jobs"
)

// Warmer recomputes and caches the at-risk projection.
type Warmer interface {
	Warm(ctx context.Context) (int, error)
}

// AtRiskWarmupJob keeps the at-risk cache populated between requests.
type AtRiskWarmupJob struct {
	Warmer  Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewAtRiskWarmupJob wires dependencies for the warmup handler.
func NewAtRiskWarmupJob(warmer Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AtRiskWarmupJob {
	return &AtRiskWarmupJob{Warmer: warmer, Logger: logger, Metrics: metrics, Timeout: 20 * time.Second}
}

// Handle processes warmup tasks.
func (j *AtRiskWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Warmer == nil {
		return errors.New("at-risk warmup: handler not configured")
	}
	var payload AtRiskWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskAtRiskWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	logger := j.logger()
	start := time.Now()
	count, err := j.Warmer.Warm(ctx)
	if err != nil {
		logger.Error("warm at-risk projection", slog.Any("error", err))
		return err
	}
	j.metrics().SetWarmedProducts(count)
	logger.Info("completed at-risk warmup",
		slog.String("reason", payload.Reason),
		slog.Int("products", count),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *AtRiskWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAtRiskWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAtRiskWarmup))
}

func (j *AtRiskWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
