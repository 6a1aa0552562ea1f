package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/jntims/jntims/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Warmer precomputes cached reports.
type Warmer interface {
	Warm(ctx context.Context) error
}

// WarmupJob pre-populates the analytics cache after the nightly rollup window.
type WarmupJob struct {
	Analytics Warmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(analytics Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{Analytics: analytics, Logger: logger, Metrics: metrics, Timeout: time.Minute}
}

// Handle processes TaskAnalyticsWarmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskAnalyticsWarmup)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskAnalyticsWarmup)
	if payload.Reason != "" {
		logger = logger.With(slog.String("reason", payload.Reason))
	}
	start := time.Now()

	runCtx, cancel := withTimeout(ctx, j.Timeout)
	defer cancel()
	if err := j.Analytics.Warm(runCtx); err != nil {
		logger.Error("warm analytics cache", slog.Any("error", err))
		return err
	}
	logger.Info("completed analytics warmup", slog.Duration("duration", time.Since(start)))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
