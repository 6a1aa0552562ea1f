// Package export renders analytics reports for download.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/jntims/jntims/internal/analytics"
	"github.com/jntims/jntims/internal/money"
)

// WriteMonthlyCSV emits the monthly revenue and profit table, newest first.
func WriteMonthlyCSV(w io.Writer, monthly analytics.Monthly) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Month", "Revenue", "Profit", "Sales", "Units Sold"}); err != nil {
		return err
	}
	for _, m := range monthly.Sorted() {
		if err := writer.Write([]string{
			m.Month,
			m.Revenue.StringFixed(money.Scale),
			m.Profit.StringFixed(money.Scale),
			strconv.Itoa(m.SalesCount),
			strconv.FormatInt(m.UnitsSold, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteStockCSV emits the stock-on-hand lines followed by a totals row.
func WriteStockCSV(w io.Writer, snap analytics.StockSnapshot) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Company", "Batch Date", "Item", "Remaining"}); err != nil {
		return err
	}
	for _, line := range snap.Items {
		if err := writer.Write([]string{
			line.CompanyName,
			line.BatchDate,
			line.Name,
			strconv.FormatInt(line.Remaining, 10),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"Total", "", strconv.Itoa(snap.TotalVarieties) + " varieties", strconv.FormatInt(snap.TotalUnits, 10)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
