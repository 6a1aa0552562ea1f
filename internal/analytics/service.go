// Package analytics rebuilds revenue, profit and stock reports from the sale
// log and the stock documents. Every operation is read-only.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jntims/jntims/internal/companies"
	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/shared"
	"github.com/jntims/jntims/internal/stock"
)

// scanConcurrency bounds per-company reads during full scans.
const scanConcurrency = 8

// Ledger is the read side of the company and stock ledgers.
type Ledger interface {
	ListCompanies(ctx context.Context) ([]companies.Company, error)
	CompanyIDs(ctx context.Context) (map[string]struct{}, error)
	ListBatches(ctx context.Context, companyID string, status companies.BatchStatus) ([]companies.Batch, error)
	ListItems(ctx context.Context, companyID, batchID string) ([]stock.StockItem, error)
	ListSales(ctx context.Context, itemID string) ([]stock.SaleEvent, error)
	Totals(ctx context.Context) (stock.GlobalTotals, error)
}

// StoreLedger reads both ledgers from one document store.
type StoreLedger struct {
	*companies.Repository
	stock *stock.Repository
}

// NewStoreLedger builds a Ledger over store.
func NewStoreLedger(store docstore.Store) StoreLedger {
	return StoreLedger{Repository: companies.NewRepository(store), stock: stock.NewRepository(store)}
}

func (l StoreLedger) ListItems(ctx context.Context, companyID, batchID string) ([]stock.StockItem, error) {
	return l.stock.ListItems(ctx, companyID, batchID)
}

func (l StoreLedger) ListSales(ctx context.Context, itemID string) ([]stock.SaleEvent, error) {
	return l.stock.ListSales(ctx, itemID)
}

func (l StoreLedger) Totals(ctx context.Context) (stock.GlobalTotals, error) {
	return l.stock.Totals(ctx)
}

// Service computes reports, caching them when a Cache is configured.
type Service struct {
	ledger Ledger
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Ledger with a Cache helper. cache may be nil.
func NewService(ledger Ledger, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, cache: cache, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// cached serves key from the cache. A cache failure degrades to computing
// the report directly; a load failure is returned as is.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	if !s.cache.enabled() {
		return load(ctx)
	}
	versioned, err := s.cache.BuildKey(ctx, key)
	if err != nil {
		s.logger.Warn("analytics cache unavailable", slog.String("key", key), slog.Any("error", err))
		return load(ctx)
	}
	var (
		out     T
		loadErr error
	)
	err = s.cache.FetchJSON(ctx, versioned, &out, func(ctx context.Context) (any, error) {
		v, err := load(ctx)
		loadErr = err
		return v, err
	})
	if loadErr != nil {
		return out, loadErr
	}
	if err != nil {
		s.logger.Warn("analytics cache unavailable", slog.String("key", key), slog.Any("error", err))
		return load(ctx)
	}
	return out, nil
}

// MonthlyRevenueProfit buckets sale events by the month of their date.
// Events of companies that no longer exist are skipped.
func (s *Service) MonthlyRevenueProfit(ctx context.Context) (Monthly, error) {
	return cached(ctx, s, keyMonthly(), s.monthly)
}

func (s *Service) monthly(ctx context.Context) (Monthly, error) {
	var (
		ids    map[string]struct{}
		events []stock.SaleEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ids, err = s.ledger.CompanyIDs(gctx)
		return err
	})
	g.Go(func() (err error) {
		events, err = s.ledger.ListSales(gctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := Monthly{}
	skipped := 0
	for _, e := range events {
		if _, ok := ids[e.CompanyID]; !ok {
			skipped++
			continue
		}
		month := e.Month()
		t := out[month]
		t.Month = month
		t.Revenue = t.Revenue.Add(e.Revenue)
		t.Profit = t.Profit.Add(e.Profit)
		t.SalesCount++
		t.UnitsSold += e.UnitsSold
		out[month] = t
	}
	if skipped > 0 {
		s.logger.Debug("orphaned sale events skipped", slog.Int("count", skipped))
	}
	return out, nil
}

// StockOnHand lists every item with units left.
func (s *Service) StockOnHand(ctx context.Context) (StockSnapshot, error) {
	return cached(ctx, s, keyStockOnHand(), func(ctx context.Context) (StockSnapshot, error) {
		rows, err := s.scanItems(ctx)
		if err != nil {
			return StockSnapshot{}, err
		}
		snap := StockSnapshot{Items: []StockLine{}}
		for _, row := range rows {
			remaining := row.item.Remaining()
			if remaining <= 0 {
				continue
			}
			snap.TotalVarieties++
			snap.TotalUnits += remaining
			snap.Items = append(snap.Items, StockLine{
				CompanyID:   row.company.ID,
				CompanyName: row.company.Name,
				BatchID:     row.batch.ID,
				BatchDate:   row.batch.Date,
				ItemID:      row.item.ID,
				Name:        row.item.Name,
				Remaining:   remaining,
			})
		}
		sort.SliceStable(snap.Items, func(i, j int) bool {
			a, b := snap.Items[i], snap.Items[j]
			if a.CompanyName != b.CompanyName {
				return a.CompanyName < b.CompanyName
			}
			if a.BatchDate != b.BatchDate {
				return a.BatchDate < b.BatchDate
			}
			return a.Name < b.Name
		})
		return snap, nil
	})
}

// CurrentMonthUnitsSold sums the units of sale events dated in the current
// calendar month.
func (s *Service) CurrentMonthUnitsSold(ctx context.Context) (int64, error) {
	month := s.now().Format(MonthLayout)
	return cached(ctx, s, keyUnitsSold(month), func(ctx context.Context) (int64, error) {
		events, err := s.ledger.ListSales(ctx, "")
		if err != nil {
			return 0, err
		}
		var units int64
		for _, e := range events {
			if e.Month() == month {
				units += e.UnitsSold
			}
		}
		return units, nil
	})
}

// MonthComparison compares month with the closest earlier month that has
// sales.
func (s *Service) MonthComparison(ctx context.Context, month string) (Comparison, error) {
	if _, err := time.Parse(MonthLayout, month); err != nil {
		return Comparison{}, shared.NewValidationError("month", "must be a YYYY-MM month")
	}
	monthly, err := s.MonthlyRevenueProfit(ctx)
	if err != nil {
		return Comparison{}, err
	}
	cmp := Comparison{Current: monthly[month]}
	cmp.Current.Month = month
	for _, m := range monthly.Months() {
		if m < month {
			cmp.Previous = monthly[m]
			break
		}
	}
	cmp.RevenueChange = percentChange(cmp.Current.Revenue, cmp.Previous.Revenue)
	cmp.ProfitChange = percentChange(cmp.Current.Profit, cmp.Previous.Profit)
	cmp.SalesChange = percentChange(decimal.NewFromInt(int64(cmp.Current.SalesCount)), decimal.NewFromInt(int64(cmp.Previous.SalesCount)))
	return cmp, nil
}

// VerifyTotals replays the sale log and reports where the global totals or
// item sold counters disagree with it. Nothing is corrected.
func (s *Service) VerifyTotals(ctx context.Context) (SalesVerification, error) {
	var (
		events []stock.SaleEvent
		totals stock.GlobalTotals
		rows   []itemRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		events, err = s.ledger.ListSales(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		totals, err = s.ledger.Totals(gctx)
		return err
	})
	g.Go(func() (err error) {
		rows, err = s.scanItems(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return SalesVerification{}, err
	}

	v := SalesVerification{
		CheckedAt:       s.now(),
		Events:          len(events),
		ReplayedRevenue: decimal.Zero,
		ReplayedProfit:  decimal.Zero,
		StoredRevenue:   totals.TotalRevenue,
		StoredProfit:    totals.TotalProfit,
		Items:           []ItemDrift{},
	}
	replayed := make(map[string]int64, len(rows))
	for _, e := range events {
		v.ReplayedRevenue = v.ReplayedRevenue.Add(e.Revenue)
		v.ReplayedProfit = v.ReplayedProfit.Add(e.Profit)
		replayed[e.ItemID] += e.UnitsSold
	}
	for _, row := range rows {
		if got := replayed[row.item.ID]; got != row.item.Sold {
			v.Items = append(v.Items, ItemDrift{
				CompanyID: row.company.ID,
				BatchID:   row.batch.ID,
				ItemID:    row.item.ID,
				Name:      row.item.Name,
				Sold:      row.item.Sold,
				Replayed:  got,
			})
		}
	}
	if !v.Clean() {
		s.logger.Warn("sale ledger drift detected",
			slog.Bool("totals", v.TotalsDrift()),
			slog.Int("items", len(v.Items)),
			slog.String("replayed_revenue", v.ReplayedRevenue.StringFixed(2)),
			slog.String("stored_revenue", v.StoredRevenue.StringFixed(2)))
	}
	return v, nil
}

// ReconcilePayable compares each company's totalPayable with the sum of its
// batch declared amounts.
func (s *Service) ReconcilePayable(ctx context.Context) (PayableReconciliation, error) {
	list, err := s.ledger.ListCompanies(ctx)
	if err != nil {
		return PayableReconciliation{}, err
	}
	declared := make([]decimal.Decimal, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, c := range list {
		g.Go(func() error {
			batches, err := s.ledger.ListBatches(gctx, c.ID, "")
			if err != nil {
				return err
			}
			sum := decimal.Zero
			for _, b := range batches {
				sum = sum.Add(b.DeclaredAmount)
			}
			declared[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PayableReconciliation{}, err
	}

	out := PayableReconciliation{CheckedAt: s.now(), Companies: len(list), Drifts: []PayableDrift{}}
	for i, c := range list {
		if !c.TotalPayable.Equal(declared[i]) {
			out.Drifts = append(out.Drifts, PayableDrift{
				CompanyID: c.ID,
				Name:      c.Name,
				Stored:    c.TotalPayable,
				Declared:  declared[i],
			})
		}
	}
	if len(out.Drifts) > 0 {
		s.logger.Warn("payable drift detected", slog.Int("companies", len(out.Drifts)))
	}
	return out, nil
}

// Warm precomputes the cached reports for the current cache version.
func (s *Service) Warm(ctx context.Context) error {
	if _, err := s.MonthlyRevenueProfit(ctx); err != nil {
		return err
	}
	if _, err := s.StockOnHand(ctx); err != nil {
		return err
	}
	_, err := s.CurrentMonthUnitsSold(ctx)
	return err
}

type itemRow struct {
	company companies.Company
	batch   companies.Batch
	item    stock.StockItem
}

// scanItems walks companies, their stock batches and items. Manual
// adjustment batches carry no items and are not read.
func (s *Service) scanItems(ctx context.Context) ([]itemRow, error) {
	list, err := s.ledger.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	perCompany := make([][]itemRow, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, c := range list {
		g.Go(func() error {
			batches, err := s.ledger.ListBatches(gctx, c.ID, "")
			if err != nil {
				return err
			}
			for _, b := range batches {
				if b.Manual {
					continue
				}
				items, err := s.ledger.ListItems(gctx, c.ID, b.ID)
				if err != nil {
					return err
				}
				for _, item := range items {
					perCompany[i] = append(perCompany[i], itemRow{company: c, batch: b, item: item})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var rows []itemRow
	for _, r := range perCompany {
		rows = append(rows, r...)
	}
	return rows, nil
}
