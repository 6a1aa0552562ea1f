package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document field names of items, sale events and the totals singleton.
const (
	FieldCompanyID           = "companyId"
	FieldBatchID             = "batchId"
	FieldItemID              = "itemId"
	FieldName                = "name"
	FieldBoxes               = "boxes"
	FieldUnitsPerBox         = "unitsPerBox"
	FieldUnits               = "units"
	FieldSold                = "sold"
	FieldGSTPercent          = "gstPercent"
	FieldBoxPrice            = "boxPrice"
	FieldBoxPriceWithGST     = "boxPriceWithGst"
	FieldTotalCostWithoutGST = "totalCostWithoutGst"
	FieldTotalCostWithGST    = "totalCostWithGst"
	FieldPerUnitWithoutGST   = "perUnitWithoutGst"
	FieldPerUnitWithGST      = "perUnitWithGst"
	FieldSellingPricePerUnit = "sellingPricePerUnit"
	FieldUnitsSold           = "unitsSold"
	FieldDate                = "date"
	FieldRevenue             = "revenue"
	FieldProfit              = "profit"
	FieldTotalRevenue        = "totalRevenue"
	FieldTotalProfit         = "totalProfit"
)

// MaxNameLength bounds item names.
const MaxNameLength = 120

// ItemRef addresses a stock item.
type ItemRef struct {
	CompanyID string
	BatchID   string
	ItemID    string
}

// StockItem is a priced line of an arrival batch.
type StockItem struct {
	ID                  string
	CompanyID           string
	BatchID             string
	Name                string
	Boxes               int64
	UnitsPerBox         int64
	Units               int64
	Sold                int64
	GSTPercent          decimal.Decimal
	BoxPrice            decimal.Decimal
	BoxPriceWithGST     decimal.Decimal
	TotalCostWithoutGST decimal.Decimal
	TotalCostWithGST    decimal.Decimal
	PerUnitWithoutGST   decimal.Decimal
	PerUnitWithGST      decimal.Decimal
	SellingPricePerUnit decimal.Decimal
	CreatedAt           time.Time
}

// Ref returns the item address.
func (i StockItem) Ref() ItemRef {
	return ItemRef{CompanyID: i.CompanyID, BatchID: i.BatchID, ItemID: i.ID}
}

// Remaining returns units still available.
func (i StockItem) Remaining() int64 { return i.Units - i.Sold }

// ProfitPerUnit is the margin over the tax-inclusive unit cost.
func (i StockItem) ProfitPerUnit() decimal.Decimal {
	return i.SellingPricePerUnit.Sub(i.PerUnitWithGST)
}

// SaleEvent is one immutable sell action.
type SaleEvent struct {
	ID        string
	ItemID    string
	BatchID   string
	CompanyID string
	ItemName  string
	UnitsSold int64
	Date      string
	Revenue   decimal.Decimal
	Profit    decimal.Decimal
	CreatedAt time.Time
}

// Month returns the YYYY-MM bucket of the event date.
func (e SaleEvent) Month() string {
	if len(e.Date) < 7 {
		return e.Date
	}
	return e.Date[:7]
}

// GlobalTotals mirrors the sum of every SaleEvent.
type GlobalTotals struct {
	TotalRevenue decimal.Decimal
	TotalProfit  decimal.Decimal
}

// BatchSummary is the bill and profit view of one batch.
type BatchSummary struct {
	Items           []StockItem
	TotalBill       decimal.Decimal
	TotalUnits      int64
	SoldUnits       int64
	RealisedProfit  decimal.Decimal
	PotentialProfit decimal.Decimal
}
