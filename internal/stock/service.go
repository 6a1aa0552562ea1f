package stock

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jntims/jntims/internal/companies"
	"github.com/jntims/jntims/internal/pricing"
	"github.com/jntims/jntims/internal/shared"
)

// BatchPort is the slice of the company repository the ledger needs.
type BatchPort interface {
	GetBatch(ctx context.Context, companyID, batchID string) (companies.Batch, error)
	SetBatchStatus(ctx context.Context, companyID, batchID string, status companies.BatchStatus) error
	MarkBatchSold(ctx context.Context, companyID, batchID string, version int64) error
}

// statusAttempts bounds RecalculateBatchStatus retries when the batch keeps
// changing underneath it.
const statusAttempts = 8

// Invalidator drops derived report caches after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service owns the stock item lifecycle and the sold-units ledger.
type Service struct {
	repo    *Repository
	batches BatchPort
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. cache may be nil.
func NewService(repo *Repository, batches BatchPort, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, batches: batches, cache: cache, logger: logger, now: time.Now}
}

// WithClock overrides the time source used for sale dates.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Repository exposes the underlying repository to the aggregation engine.
func (s *Service) Repository() *Repository { return s.repo }

// CreateItem prices and stores a new item with nothing sold.
func (s *Service) CreateItem(ctx context.Context, companyID, batchID, name string, in pricing.Input) (StockItem, error) {
	name = strings.TrimSpace(name)
	v := &shared.ValidationError{}
	switch {
	case name == "":
		v.Add(FieldName, "is required")
	case len(name) > MaxNameLength:
		v.Add(FieldName, "is too long")
	}
	if err := pricing.Validate(in); err != nil {
		var perr *shared.ValidationError
		if errors.As(err, &perr) {
			for field, msg := range perr.Fields {
				v.Add(field, msg)
			}
		}
	}
	if err := v.Err(); err != nil {
		return StockItem{}, err
	}
	res, err := pricing.Calculate(in)
	if err != nil {
		return StockItem{}, err
	}

	batch, err := s.batches.GetBatch(ctx, companyID, batchID)
	if err != nil {
		return StockItem{}, err
	}
	if batch.Manual {
		return StockItem{}, shared.NewValidationError(FieldBatchID, "manual adjustments hold no stock")
	}
	item, err := s.repo.InsertItem(ctx, companyID, batchID, name, res, s.now())
	if err != nil {
		return StockItem{}, err
	}
	// The write also bumps the batch version, which makes a concurrent
	// sold-out transition that missed this item retry.
	if err := s.batches.SetBatchStatus(ctx, companyID, batchID, companies.BatchActive); err != nil {
		s.logger.Warn("batch not reactivated after new item", slog.String("batch_id", batchID), slog.Any("error", err))
	}
	s.invalidate(ctx)
	s.logger.Info("stock item created",
		slog.String("company_id", companyID),
		slog.String("batch_id", batchID),
		slog.String("item_id", item.ID),
		slog.Int64("units", item.Units))
	return item, nil
}

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, ref ItemRef) (StockItem, error) {
	return s.repo.GetItem(ctx, ref)
}

// ListItems returns the items of a batch.
func (s *Service) ListItems(ctx context.Context, companyID, batchID string) ([]StockItem, error) {
	if _, err := s.batches.GetBatch(ctx, companyID, batchID); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, companyID, batchID)
}

// ItemSales returns the sale history of an item.
func (s *Service) ItemSales(ctx context.Context, ref ItemRef) ([]SaleEvent, error) {
	if _, err := s.repo.GetItem(ctx, ref); err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, ref.ItemID)
}

// RecordSale adds unitsToAdd to the item's running sold count and appends
// the matching sale event. date defaults to today.
func (s *Service) RecordSale(ctx context.Context, ref ItemRef, unitsToAdd int64, date string) (SaleEvent, error) {
	if unitsToAdd <= 0 {
		return SaleEvent{}, shared.NewValidationError(FieldUnitsSold, "must be greater than zero")
	}
	if date == "" {
		date = s.now().Format(companies.DateLayout)
	} else if _, err := time.Parse(companies.DateLayout, date); err != nil {
		return SaleEvent{}, shared.NewValidationError(FieldDate, "must be a YYYY-MM-DD date")
	}

	item, err := s.repo.ReserveUnits(ctx, ref, unitsToAdd)
	if err != nil {
		return SaleEvent{}, err
	}

	units := decimal.NewFromInt(unitsToAdd)
	event, err := s.repo.AppendSale(ctx, SaleEvent{
		ItemID:    ref.ItemID,
		BatchID:   ref.BatchID,
		CompanyID: ref.CompanyID,
		ItemName:  item.Name,
		UnitsSold: unitsToAdd,
		Date:      date,
		Revenue:   item.SellingPricePerUnit.Mul(units),
		Profit:    item.ProfitPerUnit().Mul(units),
	}, s.now())
	if err != nil {
		if rerr := s.repo.ReleaseUnits(ctx, ref, unitsToAdd); rerr != nil {
			s.logger.Error("sold count not released after failed sale append",
				slog.String("item_id", ref.ItemID), slog.Int64("units", unitsToAdd), slog.Any("error", rerr))
		}
		return SaleEvent{}, err
	}

	// The sale stands once the event exists; totals drift is left for
	// VerifyTotals to report.
	if err := s.repo.AddTotals(ctx, event.Revenue, event.Profit); err != nil {
		s.logger.Error("global totals not incremented",
			slog.String("sale_id", event.ID), slog.Any("error", err))
	}
	if _, err := s.RecalculateBatchStatus(ctx, ref.CompanyID, ref.BatchID); err != nil {
		s.logger.Warn("batch status not recalculated", slog.String("batch_id", ref.BatchID), slog.Any("error", err))
	}
	s.invalidate(ctx)
	s.logger.Info("sale recorded",
		slog.String("item_id", ref.ItemID),
		slog.String("sale_id", event.ID),
		slog.Int64("units", unitsToAdd),
		slog.Int64("sold", item.Sold))
	return event, nil
}

// RecalculateBatchStatus marks the batch Sold once every item is sold out.
// It never reverts a batch to Active.
func (s *Service) RecalculateBatchStatus(ctx context.Context, companyID, batchID string) (companies.BatchStatus, error) {
	for attempt := 0; attempt < statusAttempts; attempt++ {
		batch, err := s.batches.GetBatch(ctx, companyID, batchID)
		if err != nil {
			return "", err
		}
		if batch.Status == companies.BatchSold {
			return batch.Status, nil
		}
		items, err := s.repo.ListItems(ctx, companyID, batchID)
		if err != nil {
			return "", err
		}
		if len(items) == 0 || hasRemaining(items) {
			return batch.Status, nil
		}
		err = s.batches.MarkBatchSold(ctx, companyID, batchID, batch.Version)
		if errors.Is(err, companies.ErrBatchChanged) {
			continue
		}
		if err != nil {
			return "", err
		}
		s.logger.Info("batch sold out", slog.String("company_id", companyID), slog.String("batch_id", batchID))
		return companies.BatchSold, nil
	}
	return "", &shared.StoreUnavailableError{Op: "recalculate batch status", Err: companies.ErrBatchChanged}
}

func hasRemaining(items []StockItem) bool {
	for _, item := range items {
		if item.Sold < item.Units {
			return true
		}
	}
	return false
}

// Restock reverts a batch to Active.
func (s *Service) Restock(ctx context.Context, companyID, batchID string) (companies.Batch, error) {
	batch, err := s.batches.GetBatch(ctx, companyID, batchID)
	if err != nil {
		return companies.Batch{}, err
	}
	if batch.Status != companies.BatchActive {
		if err := s.batches.SetBatchStatus(ctx, companyID, batchID, companies.BatchActive); err != nil {
			return companies.Batch{}, err
		}
		batch.Status = companies.BatchActive
		s.invalidate(ctx)
	}
	return batch, nil
}

// DeleteItem removes an item. Its sale events and the global totals keep
// the history it produced.
func (s *Service) DeleteItem(ctx context.Context, ref ItemRef) error {
	if err := s.repo.DeleteItem(ctx, ref); err != nil {
		return err
	}
	if _, err := s.RecalculateBatchStatus(ctx, ref.CompanyID, ref.BatchID); err != nil {
		s.logger.Warn("batch status not recalculated", slog.String("batch_id", ref.BatchID), slog.Any("error", err))
	}
	s.invalidate(ctx)
	s.logger.Info("stock item deleted", slog.String("item_id", ref.ItemID))
	return nil
}

// Summary totals the bill and profit of one batch.
func (s *Service) Summary(ctx context.Context, companyID, batchID string) (BatchSummary, error) {
	items, err := s.ListItems(ctx, companyID, batchID)
	if err != nil {
		return BatchSummary{}, err
	}
	sum := BatchSummary{
		Items:           items,
		TotalBill:       decimal.Zero,
		RealisedProfit:  decimal.Zero,
		PotentialProfit: decimal.Zero,
	}
	for _, item := range items {
		sum.TotalBill = sum.TotalBill.Add(item.TotalCostWithGST)
		sum.TotalUnits += item.Units
		sum.SoldUnits += item.Sold
		sum.RealisedProfit = sum.RealisedProfit.Add(item.ProfitPerUnit().Mul(decimal.NewFromInt(item.Sold)))
		sum.PotentialProfit = sum.PotentialProfit.Add(item.ProfitPerUnit().Mul(decimal.NewFromInt(item.Units)))
	}
	return sum, nil
}

// Totals returns the global revenue and profit accumulator.
func (s *Service) Totals(ctx context.Context) (GlobalTotals, error) {
	return s.repo.Totals(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("analytics cache bump failed", slog.Any("error", err))
	}
}
