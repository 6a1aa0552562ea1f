package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MonthLayout is the YYYY-MM bucket format.
const MonthLayout = "2006-01"

// MonthTotals aggregates the sale events of one calendar month.
type MonthTotals struct {
	Month      string          `json:"month"`
	Revenue    decimal.Decimal `json:"revenue"`
	Profit     decimal.Decimal `json:"profit"`
	SalesCount int             `json:"salesCount"`
	UnitsSold  int64           `json:"unitsSold"`
}

// Monthly maps YYYY-MM buckets to their totals.
type Monthly map[string]MonthTotals

// Months returns the bucket keys newest first.
func (m Monthly) Months() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// Sorted returns the buckets newest first.
func (m Monthly) Sorted() []MonthTotals {
	months := m.Months()
	out := make([]MonthTotals, 0, len(months))
	for _, month := range months {
		out = append(out, m[month])
	}
	return out
}

// StockLine is one item that still has units on hand.
type StockLine struct {
	CompanyID   string `json:"companyId"`
	CompanyName string `json:"companyName"`
	BatchID     string `json:"batchId"`
	BatchDate   string `json:"batchDate"`
	ItemID      string `json:"itemId"`
	Name        string `json:"name"`
	Remaining   int64  `json:"remaining"`
}

// StockSnapshot summarises remaining stock across every company.
type StockSnapshot struct {
	TotalVarieties int         `json:"totalVarieties"`
	TotalUnits     int64       `json:"totalUnits"`
	Items          []StockLine `json:"items"`
}

// Comparison sets a month against the closest earlier month with sales.
// Change fields are percentages and nil when the earlier value is zero.
type Comparison struct {
	Current       MonthTotals      `json:"current"`
	Previous      MonthTotals      `json:"previous"`
	RevenueChange *decimal.Decimal `json:"revenueChange"`
	ProfitChange  *decimal.Decimal `json:"profitChange"`
	SalesChange   *decimal.Decimal `json:"salesChange"`
}

var hundred = decimal.NewFromInt(100)

func percentChange(current, previous decimal.Decimal) *decimal.Decimal {
	if previous.IsZero() {
		return nil
	}
	change := current.Sub(previous).Div(previous).Mul(hundred).Round(2)
	return &change
}

// FormatChange renders a percentage change or "N/A".
func FormatChange(change *decimal.Decimal) string {
	if change == nil {
		return "N/A"
	}
	return change.StringFixed(2) + "%"
}

// ItemDrift is an item whose sold counter disagrees with its sale events.
type ItemDrift struct {
	CompanyID string `json:"companyId"`
	BatchID   string `json:"batchId"`
	ItemID    string `json:"itemId"`
	Name      string `json:"name"`
	Sold      int64  `json:"sold"`
	Replayed  int64  `json:"replayed"`
}

// SalesVerification compares the sale log against the counters derived from it.
type SalesVerification struct {
	CheckedAt       time.Time       `json:"checkedAt"`
	Events          int             `json:"events"`
	ReplayedRevenue decimal.Decimal `json:"replayedRevenue"`
	ReplayedProfit  decimal.Decimal `json:"replayedProfit"`
	StoredRevenue   decimal.Decimal `json:"storedRevenue"`
	StoredProfit    decimal.Decimal `json:"storedProfit"`
	Items           []ItemDrift     `json:"items"`
}

// TotalsDrift reports whether the global totals differ from the replay.
func (v SalesVerification) TotalsDrift() bool {
	return !v.ReplayedRevenue.Equal(v.StoredRevenue) || !v.ReplayedProfit.Equal(v.StoredProfit)
}

// Clean reports whether nothing drifted.
func (v SalesVerification) Clean() bool { return !v.TotalsDrift() && len(v.Items) == 0 }

// PayableDrift is a company whose totalPayable differs from its batches.
type PayableDrift struct {
	CompanyID string          `json:"companyId"`
	Name      string          `json:"name"`
	Stored    decimal.Decimal `json:"stored"`
	Declared  decimal.Decimal `json:"declared"`
}

// PayableReconciliation lists companies whose payable projection drifted.
type PayableReconciliation struct {
	CheckedAt time.Time      `json:"checkedAt"`
	Companies int            `json:"companies"`
	Drifts    []PayableDrift `json:"drifts"`
}
