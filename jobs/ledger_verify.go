package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jntims/jntims/internal/analytics"
	jobmetrics "github.com/jntims/jntims/internal/jobs"
)

// Verifier replays the ledgers against their stored projections.
type Verifier interface {
	VerifyTotals(ctx context.Context) (analytics.SalesVerification, error)
	ReconcilePayable(ctx context.Context) (analytics.PayableReconciliation, error)
}

// VerifyJob reports ledger drift through the job metrics. Drift is not a
// task failure; only load errors are, so asynq retries them.
type VerifyJob struct {
	Verifier Verifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Timeout  time.Duration
}

// NewVerifyJob wires dependencies for the verification handler.
func NewVerifyJob(verifier Verifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *VerifyJob {
	return &VerifyJob{Verifier: verifier, Logger: logger, Metrics: metrics, Timeout: 5 * time.Minute}
}

// Handle processes TaskLedgerVerify tasks.
func (j *VerifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Verifier == nil {
		return errors.New("ledger verify: handler not configured")
	}
	var payload VerifyPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	sales := !payload.PayableOnly || payload.SalesOnly
	payable := !payload.SalesOnly || payload.PayableOnly

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskLedgerVerify)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskLedgerVerify)
	runCtx, cancel := withTimeout(ctx, j.Timeout)
	defer cancel()

	if sales {
		v, err := j.Verifier.VerifyTotals(runCtx)
		if err != nil {
			logger.Error("verify sales totals", slog.Any("error", err))
			return err
		}
		totals := 0
		if v.TotalsDrift() {
			totals = 1
		}
		metrics.SetDrift(jobmetrics.DriftSalesTotals, totals)
		metrics.SetDrift(jobmetrics.DriftItemSold, len(v.Items))
		logger.Info("sales ledger verified",
			slog.Int("events", v.Events),
			slog.Bool("clean", v.Clean()),
			slog.Int("item_drift", len(v.Items)))
	}
	if payable {
		r, err := j.Verifier.ReconcilePayable(runCtx)
		if err != nil {
			logger.Error("reconcile payable", slog.Any("error", err))
			return err
		}
		metrics.SetDrift(jobmetrics.DriftPayable, len(r.Drifts))
		logger.Info("payables reconciled",
			slog.Int("companies", r.Companies),
			slog.Int("drift", len(r.Drifts)))
	}
	return nil
}
