package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/analytics"
)

func TestWriteMonthlyCSV(t *testing.T) {
	monthly := analytics.Monthly{
		"2024-02": {Month: "2024-02", Revenue: decimal.NewFromInt(100), Profit: decimal.NewFromInt(10), SalesCount: 1, UnitsSold: 4},
		"2024-03": {Month: "2024-03", Revenue: decimal.RequireFromString("1750"), Profit: decimal.RequireFromString("275"), SalesCount: 2, UnitsSold: 50},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteMonthlyCSV(buf, monthly))

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"Month", "Revenue", "Profit", "Sales", "Units Sold"},
		{"2024-03", "1750.00", "275.00", "2", "50"},
		{"2024-02", "100.00", "10.00", "1", "4"},
	}, records)
}

func TestWriteStockCSV(t *testing.T) {
	snap := analytics.StockSnapshot{
		TotalVarieties: 1,
		TotalUnits:     150,
		Items:          []analytics.StockLine{{CompanyName: "Acme", BatchDate: "2024-03-01", Name: "Soap", Remaining: 150}},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteStockCSV(buf, snap))

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, []string{"Acme", "2024-03-01", "Soap", "150"}, records[1])
	require.Equal(t, "150", records[2][3])
}
