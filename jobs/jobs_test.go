package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/analytics"
	jobmetrics "github.com/jntims/jntims/internal/jobs"
)

type fakeWarmer struct {
	calls int
	err   error
}

func (f *fakeWarmer) Warm(context.Context) error {
	f.calls++
	return f.err
}

type fakeVerifier struct {
	sales      analytics.SalesVerification
	payable    analytics.PayableReconciliation
	err        error
	salesCalls int
	payCalls   int
}

func (f *fakeVerifier) VerifyTotals(context.Context) (analytics.SalesVerification, error) {
	f.salesCalls++
	return f.sales, f.err
}

func (f *fakeVerifier) ReconcilePayable(context.Context) (analytics.PayableReconciliation, error) {
	f.payCalls++
	return f.payable, f.err
}

type fakeCleaner struct {
	olderThan time.Duration
	removed   int
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	f.olderThan = olderThan
	return f.removed, nil
}

func newMetrics(t *testing.T) (*jobmetrics.Metrics, func() string) {
	t.Helper()
	reg := prometheus.NewRegistry()
	scrape := func() string {
		rr := httptest.NewRecorder()
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rr.Body.String()
	}
	return jobmetrics.NewMetrics(reg), scrape
}

func TestWarmupJob(t *testing.T) {
	metrics, scrape := newMetrics(t)
	warmer := &fakeWarmer{}
	job := NewWarmupJob(warmer, nil, metrics)

	task, err := NewWarmupTask("cron")
	require.NoError(t, err)
	require.Equal(t, TaskAnalyticsWarmup, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, warmer.calls)

	warmer.err = errors.New("redis down")
	require.Error(t, job.Handle(context.Background(), task))
	body := scrape()
	require.Contains(t, body, `jntims_jobs_total{job="analytics:warmup",status="success"} 1`)
	require.Contains(t, body, `jntims_jobs_total{job="analytics:warmup",status="failure"} 1`)

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskAnalyticsWarmup, []byte("{"))), asynq.SkipRetry)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskAnalyticsWarmup, nil)))

	var unset *WarmupJob
	require.Error(t, unset.Handle(context.Background(), task))
}

func TestVerifyJobPublishesDrift(t *testing.T) {
	metrics, scrape := newMetrics(t)
	verifier := &fakeVerifier{
		sales: analytics.SalesVerification{
			Events:          3,
			ReplayedRevenue: decimal.NewFromInt(100),
			StoredRevenue:   decimal.NewFromInt(120),
			Items:           []analytics.ItemDrift{{ItemID: "i1", Sold: 51, Replayed: 50}},
		},
		payable: analytics.PayableReconciliation{
			Companies: 2,
			Drifts:    []analytics.PayableDrift{{CompanyID: "c1"}, {CompanyID: "c2"}},
		},
	}
	job := NewVerifyJob(verifier, nil, metrics)

	task, err := NewVerifyTask(VerifyPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	body := scrape()
	require.Contains(t, body, `jntims_ledger_drift{kind="sales_totals"} 1`)
	require.Contains(t, body, `jntims_ledger_drift{kind="item_sold"} 1`)
	require.Contains(t, body, `jntims_ledger_drift{kind="total_payable"} 2`)
	require.Equal(t, 1, verifier.salesCalls)
	require.Equal(t, 1, verifier.payCalls)

	payableOnly, err := NewVerifyTask(VerifyPayload{PayableOnly: true})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), payableOnly))
	require.Equal(t, 1, verifier.salesCalls)
	require.Equal(t, 2, verifier.payCalls)
}

func TestVerifyJobLoadErrorFails(t *testing.T) {
	metrics, scrape := newMetrics(t)
	job := NewVerifyJob(&fakeVerifier{err: errors.New("store unavailable")}, nil, metrics)
	task, err := NewVerifyTask(VerifyPayload{SalesOnly: true})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
	require.Contains(t, scrape(), `jntims_jobs_failures_total{job="ledger:verify"} 1`)
}

func TestCleanupJobDefaultsMaxAge(t *testing.T) {
	cleaner := &fakeCleaner{removed: 4}
	job := NewCleanupJob(cleaner, nil, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultIdempotencyTTL, cleaner.olderThan)

	task, err := NewCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, cleaner.olderThan)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

type fakeEnqueuer struct{ err error }

func (f fakeEnqueuer) EnqueueVerify(context.Context, VerifyPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "t1", Queue: QueueDefault}, nil
}

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestHandlerHealth(t *testing.T) {
	rr := serve(NewHandler(nil, nil, nil), http.MethodGet, "/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"processedToday":0,"failedToday":0}`, rr.Body.String())

	rr = serve(NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil, nil), http.MethodGet, "/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)
	var health QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	require.Equal(t, 3, health.Pending)
	require.Equal(t, 1, health.Retry)

	rr = serve(NewHandler(fakeInspector{err: errors.New("dial tcp")}, nil, nil), http.MethodGet, "/jobs/health")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.False(t, strings.Contains(rr.Body.String(), "dial tcp"))
}

func TestHandlerVerify(t *testing.T) {
	require.Equal(t, http.StatusServiceUnavailable, serve(NewHandler(nil, nil, nil), http.MethodPost, "/jobs/verify").Code)
	require.Equal(t, http.StatusAccepted, serve(NewHandler(nil, fakeEnqueuer{}, nil), http.MethodPost, "/jobs/verify").Code)
	require.Equal(t, http.StatusConflict, serve(NewHandler(nil, fakeEnqueuer{err: asynq.ErrDuplicateTask}, nil), http.MethodPost, "/jobs/verify").Code)
}
