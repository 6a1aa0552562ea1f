package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestTrackerCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("ledger:verify").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:verify").End(boom), boom)

	body := scrape(t, reg)
	require.Contains(t, body, `jntims_jobs_total{job="ledger:verify",status="success"} 1`)
	require.Contains(t, body, `jntims_jobs_total{job="ledger:verify",status="failure"} 1`)
	require.Contains(t, body, `jntims_jobs_failures_total{job="ledger:verify"} 1`)
	require.Contains(t, body, `jntims_job_last_success_timestamp_seconds{job="ledger:verify"}`)
}

func TestSetDriftOverwrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetDrift(DriftPayable, 3)
	require.Contains(t, scrape(t, reg), `jntims_ledger_drift{kind="total_payable"} 3`)

	m.SetDrift(DriftPayable, 0)
	m.SetDrift(DriftItemSold, -2)
	body := scrape(t, reg)
	require.Contains(t, body, `jntims_ledger_drift{kind="total_payable"} 0`)
	require.Contains(t, body, `jntims_ledger_drift{kind="item_sold"} 0`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetDrift(DriftSalesTotals, 1)
	require.NoError(t, m.Track("x").End(nil))
}
