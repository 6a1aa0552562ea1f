package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/analytics"
	"github.com/jntims/jntims/jobs"
)

type stubVerifier struct {
	sales   analytics.SalesVerification
	payable analytics.PayableReconciliation
	err     error
}

func (s stubVerifier) VerifyTotals(context.Context) (analytics.SalesVerification, error) {
	return s.sales, s.err
}

func (s stubVerifier) ReconcilePayable(context.Context) (analytics.PayableReconciliation, error) {
	return s.payable, s.err
}

func TestVerifyCommandJSONClean(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	v := stubVerifier{sales: analytics.SalesVerification{
		Events:          2,
		StoredRevenue:   decimal.RequireFromString("2100"),
		ReplayedRevenue: decimal.RequireFromString("2100"),
	}}
	code := VerifyCommand(context.Background(), v, VerifyOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 0, code, stderr.String())

	var report VerifyReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.True(t, report.Clean)
	require.Equal(t, 2, report.Sales.Events)
}

func TestVerifyCommandTextDrift(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	v := stubVerifier{payable: analytics.PayableReconciliation{Drifts: []analytics.PayableDrift{{
		CompanyID: "c1",
		Name:      "Acme",
		Stored:    decimal.RequireFromString("6400"),
		Declared:  decimal.RequireFromString("5900"),
	}}}}
	code := VerifyCommand(context.Background(), v, VerifyOptions{Stdout: stdout, Stderr: stderr})
	require.Equal(t, 2, code)
	require.Contains(t, stdout.String(), "company c1 (Acme): payable=6400.00 batches=5900.00")
}

func TestVerifyCommandError(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := VerifyCommand(context.Background(), stubVerifier{err: errors.New("store unavailable")}, VerifyOptions{Stdout: stdout, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "store unavailable")
}

func TestTaskFor(t *testing.T) {
	task, err := TaskFor(jobs.TaskLedgerVerify, time.Hour)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLedgerVerify, task.Type())

	task, err = TaskFor(jobs.TaskIdempotencyCleanup, time.Hour)
	require.NoError(t, err)
	var payload jobs.CleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, time.Hour, payload.MaxAge)

	_, err = TaskFor("mail:send", time.Hour)
	require.ErrorContains(t, err, "unsupported job")
}

func TestJobsCLIRequiresRedis(t *testing.T) {
	_, err := NewJobsCLI("")
	require.Error(t, err)

	var c *JobsCLI
	_, err = c.Trigger(context.Background(), jobs.TaskLedgerVerify, time.Hour)
	require.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)
}
