package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskAnalyticsWarmup rebuilds the cached monthly and stock reports.
	TaskAnalyticsWarmup = "analytics:warmup"
	// TaskLedgerVerify replays the sales ledger and reconciles payables.
	TaskLedgerVerify = "ledger:verify"
	// TaskIdempotencyCleanup expires old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DefaultIdempotencyTTL applies when a cleanup payload leaves MaxAge empty.
const DefaultIdempotencyTTL = 24 * time.Hour

// WarmupPayload carries scheduling metadata for TaskAnalyticsWarmup.
type WarmupPayload struct {
	Reason string `json:"reason,omitempty"`
}

// VerifyPayload selects which checks TaskLedgerVerify runs. Both run when
// neither flag is set.
type VerifyPayload struct {
	SalesOnly   bool `json:"sales_only,omitempty"`
	PayableOnly bool `json:"payable_only,omitempty"`
}

// CleanupPayload bounds the age of idempotency keys that survive a run.
type CleanupPayload struct {
	MaxAge time.Duration `json:"max_age"`
}

// NewWarmupTask constructs an Asynq task for the analytics warmup.
func NewWarmupTask(reason string) (*asynq.Task, error) {
	return newTask(TaskAnalyticsWarmup, WarmupPayload{Reason: reason})
}

// NewVerifyTask constructs an Asynq task for the ledger verification.
func NewVerifyTask(payload VerifyPayload) (*asynq.Task, error) {
	return newTask(TaskLedgerVerify, payload)
}

// NewCleanupTask constructs an Asynq task expiring keys older than maxAge.
func NewCleanupTask(maxAge time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{MaxAge: maxAge})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}

// decodePayload treats an empty body as the zero payload so cron entries and
// manual enqueues can omit it.
func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return asynq.SkipRetry
	}
	return nil
}
