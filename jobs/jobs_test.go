package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/kfkafe/cafe-ops/internal/jobs"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeAudit struct {
	logs []shared.AuditLog
	err  error
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

type fakeWarmer struct {
	count int
	err   error
	calls int
}

func (f *fakeWarmer) Warm(ctx context.Context) (int, error) {
	f.calls++
	return f.count, f.err
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestClientEnqueuesLowStockAlert(t *testing.T) {
	fake := &fakeEnqueuer{}
	client := &Client{client: fake, now: func() time.Time { return time.Date(2026, 3, 14, 11, 30, 0, 0, time.UTC) }}

	require.NoError(t, client.EnqueueLowStockAlert(context.Background(), "A1B2C3D4", []string{"Milk", "Sugar"}))
	require.NoError(t, client.EnqueueLowStockAlert(context.Background(), "FFFF0000", nil))
	require.Len(t, fake.tasks, 1)
	require.Equal(t, TaskLowStockAlert, fake.tasks[0].Type())

	var payload LowStockAlertPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	require.Equal(t, "A1B2C3D4", payload.TransactionRef)
	require.Equal(t, []string{"Milk", "Sugar"}, payload.Materials)

	fake.err = errors.New("redis: connection refused")
	require.Error(t, client.EnqueueLowStockAlert(context.Background(), "A1B2C3D4", []string{"Milk"}))

	var nilClient *Client
	require.NoError(t, nilClient.EnqueueLowStockAlert(context.Background(), "A1B2C3D4", []string{"Milk"}))
}

func TestLowStockAlertJobRecordsAudit(t *testing.T) {
	audit := &fakeAudit{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewLowStockAlertJob(audit, nil, metrics)

	task, err := NewLowStockAlertTask(LowStockAlertPayload{TransactionRef: "A1B2C3D4", Materials: []string{"Milk"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "stock:low-alert", audit.logs[0].Action)
	require.Equal(t, "A1B2C3D4", audit.logs[0].EntityID)

	audit.err = errors.New("insert failed")
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskLowStockAlert, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestAtRiskWarmupJob(t *testing.T) {
	warmer := &fakeWarmer{count: 3}
	job := NewAtRiskWarmupJob(warmer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewAtRiskWarmupTask("cron")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, warmer.calls)

	warmer.err = errors.New("persistence failure")
	require.Error(t, job.Handle(context.Background(), task))

	var unconfigured *AtRiskWarmupJob
	require.Error(t, unconfigured.Handle(context.Background(), task))
}

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, status: http.StatusOK, pending: 4},
		{name: "redis down", inspector: fakeInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, nil).MountRoutes)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, QueueDefault, body.Queue)
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}
