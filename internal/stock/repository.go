package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/pricing"
	"github.com/jntims/jntims/internal/shared"
)

// Repository persists stock items, sale events and the totals singleton.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs the repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

func itemPath(ref ItemRef) docstore.Path {
	return shared.ItemPath(ref.CompanyID, ref.BatchID, ref.ItemID)
}

func cents(doc docstore.Document, field string) decimal.Decimal {
	return money.FromCents(doc.Int(field))
}

// DecodeItem converts a stored item document.
func DecodeItem(doc docstore.Document) StockItem {
	gst, err := decimal.NewFromString(doc.String(FieldGSTPercent))
	if err != nil {
		gst = decimal.Zero
	}
	return StockItem{
		ID:                  doc.ID(),
		CompanyID:           doc.String(FieldCompanyID),
		BatchID:             doc.String(FieldBatchID),
		Name:                doc.String(FieldName),
		Boxes:               doc.Int(FieldBoxes),
		UnitsPerBox:         doc.Int(FieldUnitsPerBox),
		Units:               doc.Int(FieldUnits),
		Sold:                doc.Int(FieldSold),
		GSTPercent:          gst,
		BoxPrice:            cents(doc, FieldBoxPrice),
		BoxPriceWithGST:     cents(doc, FieldBoxPriceWithGST),
		TotalCostWithoutGST: cents(doc, FieldTotalCostWithoutGST),
		TotalCostWithGST:    cents(doc, FieldTotalCostWithGST),
		PerUnitWithoutGST:   cents(doc, FieldPerUnitWithoutGST),
		PerUnitWithGST:      cents(doc, FieldPerUnitWithGST),
		SellingPricePerUnit: cents(doc, FieldSellingPricePerUnit),
		CreatedAt:           doc.Timestamp(),
	}
}

// DecodeSale converts a stored sale event.
func DecodeSale(doc docstore.Document) SaleEvent {
	return SaleEvent{
		ID:        doc.ID(),
		ItemID:    doc.String(FieldItemID),
		BatchID:   doc.String(FieldBatchID),
		CompanyID: doc.String(FieldCompanyID),
		ItemName:  doc.String(FieldName),
		UnitsSold: doc.Int(FieldUnitsSold),
		Date:      doc.String(FieldDate),
		Revenue:   cents(doc, FieldRevenue),
		Profit:    cents(doc, FieldProfit),
		CreatedAt: doc.Timestamp(),
	}
}

// DecodeTotals converts the totals singleton.
func DecodeTotals(doc docstore.Document) GlobalTotals {
	return GlobalTotals{
		TotalRevenue: cents(doc, FieldTotalRevenue),
		TotalProfit:  cents(doc, FieldTotalProfit),
	}
}

// InsertItem stores a freshly priced item with sold=0.
func (r *Repository) InsertItem(ctx context.Context, companyID, batchID, name string, res pricing.Result, now time.Time) (StockItem, error) {
	doc, err := r.store.Create(ctx, shared.ItemsPath(companyID, batchID), docstore.Fields{
		FieldCompanyID:           companyID,
		FieldBatchID:             batchID,
		FieldName:                name,
		FieldBoxes:               res.Boxes,
		FieldUnitsPerBox:         res.UnitsPerBox,
		FieldUnits:               res.Units,
		FieldSold:                int64(0),
		FieldGSTPercent:          res.GSTPercent.String(),
		FieldBoxPrice:            money.Cents(res.BoxPrice),
		FieldBoxPriceWithGST:     money.Cents(res.BoxPriceWithGST),
		FieldTotalCostWithoutGST: money.Cents(res.TotalCostWithoutGST),
		FieldTotalCostWithGST:    money.Cents(res.TotalCostWithGST),
		FieldPerUnitWithoutGST:   money.Cents(res.PerUnitWithoutGST),
		FieldPerUnitWithGST:      money.Cents(res.PerUnitWithGST),
		FieldSellingPricePerUnit: money.Cents(res.SellingPricePerUnit),
		docstore.TimestampField:  now,
	})
	if err != nil {
		return StockItem{}, shared.StoreError("insert item", "item", "", err)
	}
	return DecodeItem(doc), nil
}

// GetItem loads one item.
func (r *Repository) GetItem(ctx context.Context, ref ItemRef) (StockItem, error) {
	doc, err := r.store.Get(ctx, itemPath(ref))
	if err != nil {
		return StockItem{}, shared.StoreError("get item", "item", ref.ItemID, err)
	}
	return DecodeItem(doc), nil
}

// ListItems returns the items of a batch oldest first.
func (r *Repository) ListItems(ctx context.Context, companyID, batchID string) ([]StockItem, error) {
	docs, err := r.store.List(ctx, shared.ItemsPath(companyID, batchID), docstore.Query{})
	if err != nil {
		return nil, shared.StoreError("list items", "batch", batchID, err)
	}
	out := make([]StockItem, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DecodeItem(doc))
	}
	return out, nil
}

// ReserveUnits adds n to sold in one atomic read-modify-write, refusing to
// pass units.
func (r *Repository) ReserveUnits(ctx context.Context, ref ItemRef, n int64) (StockItem, error) {
	doc, err := r.store.Update(ctx, itemPath(ref), func(cur docstore.Document) (docstore.Fields, error) {
		units, sold := cur.Int(FieldUnits), cur.Int(FieldSold)
		if remaining := units - sold; n > remaining {
			return nil, &shared.InsufficientStockError{ItemID: ref.ItemID, Requested: n, Remaining: remaining}
		}
		return docstore.Fields{FieldSold: sold + n}, nil
	})
	if err != nil {
		return StockItem{}, shared.StoreError("reserve units", "item", ref.ItemID, err)
	}
	return DecodeItem(doc), nil
}

// ReleaseUnits atomically subtracts n from sold.
func (r *Repository) ReleaseUnits(ctx context.Context, ref ItemRef, n int64) error {
	err := r.store.Increment(ctx, itemPath(ref), map[string]int64{FieldSold: -n})
	return shared.StoreError("release units", "item", ref.ItemID, err)
}

// DeleteItem removes one item.
func (r *Repository) DeleteItem(ctx context.Context, ref ItemRef) error {
	err := r.store.Delete(ctx, itemPath(ref))
	return shared.StoreError("delete item", "item", ref.ItemID, err)
}

// AppendSale writes an immutable sale event.
func (r *Repository) AppendSale(ctx context.Context, e SaleEvent, now time.Time) (SaleEvent, error) {
	doc, err := r.store.Create(ctx, shared.SalesPath(), docstore.Fields{
		FieldItemID:             e.ItemID,
		FieldBatchID:            e.BatchID,
		FieldCompanyID:          e.CompanyID,
		FieldName:               e.ItemName,
		FieldUnitsSold:          e.UnitsSold,
		FieldDate:               e.Date,
		FieldRevenue:            money.Cents(e.Revenue),
		FieldProfit:             money.Cents(e.Profit),
		docstore.TimestampField: now,
	})
	if err != nil {
		return SaleEvent{}, shared.StoreError("append sale", "sale", "", err)
	}
	return DecodeSale(doc), nil
}

// ListSales returns sale events oldest first, optionally for one item.
func (r *Repository) ListSales(ctx context.Context, itemID string) ([]SaleEvent, error) {
	q := docstore.Query{}
	if itemID != "" {
		q.Where = []docstore.Filter{{Field: FieldItemID, Value: itemID}}
	}
	docs, err := r.store.List(ctx, shared.SalesPath(), q)
	if err != nil {
		return nil, shared.StoreError("list sales", "sale", itemID, err)
	}
	out := make([]SaleEvent, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DecodeSale(doc))
	}
	return out, nil
}

// AddTotals atomically moves the totals singleton.
func (r *Repository) AddTotals(ctx context.Context, revenue, profit decimal.Decimal) error {
	err := r.store.Increment(ctx, shared.GlobalTotalsPath(), map[string]int64{
		FieldTotalRevenue: money.Cents(revenue),
		FieldTotalProfit:  money.Cents(profit),
	}, docstore.WithUpsert())
	return shared.StoreError("add totals", "totals", shared.GlobalTotalsID, err)
}

// Totals reads the totals singleton; a missing document reads as zero.
func (r *Repository) Totals(ctx context.Context) (GlobalTotals, error) {
	doc, err := r.store.Get(ctx, shared.GlobalTotalsPath())
	if err != nil {
		mapped := shared.StoreError("get totals", "totals", shared.GlobalTotalsID, err)
		if shared.IsRetryable(mapped) {
			return GlobalTotals{}, mapped
		}
		return GlobalTotals{TotalRevenue: decimal.Zero, TotalProfit: decimal.Zero}, nil
	}
	return DecodeTotals(doc), nil
}
