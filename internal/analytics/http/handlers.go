package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/jntims/jntims/internal/analytics"
	"github.com/jntims/jntims/internal/analytics/export"
	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/httpx"
	"github.com/jntims/jntims/internal/shared"
)

const requestTimeout = 10 * time.Second

// ReportService defines the report contract used by the handler.
type ReportService interface {
	MonthlyRevenueProfit(ctx context.Context) (analytics.Monthly, error)
	MonthComparison(ctx context.Context, month string) (analytics.Comparison, error)
	StockOnHand(ctx context.Context) (analytics.StockSnapshot, error)
	CurrentMonthUnitsSold(ctx context.Context) (int64, error)
	VerifyTotals(ctx context.Context) (analytics.SalesVerification, error)
	ReconcilePayable(ctx context.Context) (analytics.PayableReconciliation, error)
}

// Handler serves the aggregation reports.
type Handler struct {
	logger    *slog.Logger
	service   ReportService
	formatter *money.Formatter
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the report HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService, formatter *money.Formatter) *Handler {
	h := &Handler{logger: logger, service: service, formatter: formatter, now: time.Now}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// MonthResponse is one monthly row.
type MonthResponse struct {
	Month          string `json:"month"`
	Revenue        string `json:"revenue"`
	Profit         string `json:"profit"`
	RevenueDisplay string `json:"revenueDisplay"`
	ProfitDisplay  string `json:"profitDisplay"`
	SalesCount     int    `json:"salesCount"`
	UnitsSold      int64  `json:"unitsSold"`
}

// ComparisonResponse renders a month comparison with formatted changes.
type ComparisonResponse struct {
	Current       MonthResponse `json:"current"`
	Previous      MonthResponse `json:"previous"`
	RevenueChange string        `json:"revenueChange"`
	ProfitChange  string        `json:"profitChange"`
	SalesChange   string        `json:"salesChange"`
}

func (h *Handler) month(m analytics.MonthTotals) MonthResponse {
	return MonthResponse{
		Month:          m.Month,
		Revenue:        m.Revenue.StringFixed(money.Scale),
		Profit:         m.Profit.StringFixed(money.Scale),
		RevenueDisplay: h.formatter.Format(m.Revenue),
		ProfitDisplay:  h.formatter.Format(m.Profit),
		SalesCount:     m.SalesCount,
		UnitsSold:      m.UnitsSold,
	}
}

func (h *Handler) handleMonthly(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	monthly, err := h.service.MonthlyRevenueProfit(ctx)
	if err != nil {
		h.handleServerError(w, "monthly report", err)
		return
	}
	rows := make([]MonthResponse, 0, len(monthly))
	for _, m := range monthly.Sorted() {
		rows = append(rows, h.month(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"months": rows})
}

func (h *Handler) handleComparison(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	cmp, err := h.service.MonthComparison(ctx, chi.URLParam(r, "month"))
	if err != nil {
		h.handleServerError(w, "month comparison", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ComparisonResponse{
		Current:       h.month(cmp.Current),
		Previous:      h.month(cmp.Previous),
		RevenueChange: analytics.FormatChange(cmp.RevenueChange),
		ProfitChange:  analytics.FormatChange(cmp.ProfitChange),
		SalesChange:   analytics.FormatChange(cmp.SalesChange),
	})
}

func (h *Handler) handleStockOnHand(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	snap, err := h.service.StockOnHand(ctx)
	if err != nil {
		h.handleServerError(w, "stock on hand", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleCurrentMonthUnits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	units, err := h.service.CurrentMonthUnitsSold(ctx)
	if err != nil {
		h.handleServerError(w, "current month units", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"month":     h.now().Format(analytics.MonthLayout),
		"unitsSold": units,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	var (
		sales   analytics.SalesVerification
		payable analytics.PayableReconciliation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sales, err = h.service.VerifyTotals(gctx)
		return err
	})
	g.Go(func() (err error) {
		payable, err = h.service.ReconcilePayable(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.handleServerError(w, "verify ledgers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"clean":   sales.Clean() && len(payable.Drifts) == 0,
		"sales":   sales,
		"payable": payable,
	})
}

func (h *Handler) handleMonthlyCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	monthly, err := h.service.MonthlyRevenueProfit(ctx)
	if err != nil {
		h.handleServerError(w, "monthly report", err)
		return
	}
	h.writeCSV(w, "monthly-sales.csv", func(buf io.Writer) error { return export.WriteMonthlyCSV(buf, monthly) })
}

func (h *Handler) handleStockCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	snap, err := h.service.StockOnHand(ctx)
	if err != nil {
		h.handleServerError(w, "stock on hand", err)
		return
	}
	filename := fmt.Sprintf("stock-on-hand-%s.csv", h.now().Format("2006-01-02"))
	h.writeCSV(w, filename, func(buf io.Writer) error { return export.WriteStockCSV(buf, snap) })
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, render func(io.Writer) error) {
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := render(buf); err != nil {
		h.handleServerError(w, "write csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleServerError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) {
		h.logError(op, err)
	}
	httpx.RespondError(w, err)
}

func (h *Handler) logError(op string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.Error(op, slog.Any("error", err))
}
