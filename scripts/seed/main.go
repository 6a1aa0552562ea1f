// Command seed loads a small demo ledger into the configured store: two
// suppliers with arrival batches, priced items, a few months of sales and
// some payments.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jntims/jntims/internal/app"
	"github.com/jntims/jntims/internal/companies"
	"github.com/jntims/jntims/internal/pricing"
	"github.com/jntims/jntims/internal/stock"
)

type seedItem struct {
	name        string
	boxes       int64
	unitsPerBox int64
	boxPrice    string
	gst         string
	sell        string
	// sales maps a day offset from the batch date to units sold.
	sales map[int]int64
}

type seedBatch struct {
	date  string
	items []seedItem
}

type seedCompany struct {
	name     string
	batches  []seedBatch
	payments []string
}

var demo = []seedCompany{
	{
		name: "Sharma Traders",
		batches: []seedBatch{
			{date: "2024-03-01", items: []seedItem{
				{name: "Soap", boxes: 10, unitsPerBox: 20, boxPrice: "500", gst: "18", sell: "35", sales: map[int]int64{9: 50, 20: 30}},
				{name: "Shampoo", boxes: 4, unitsPerBox: 12, boxPrice: "960", gst: "12", sell: "99", sales: map[int]int64{12: 10}},
			}},
			{date: "2024-04-02", items: []seedItem{
				{name: "Toothpaste", boxes: 6, unitsPerBox: 24, boxPrice: "1080", gst: "18", sell: "60", sales: map[int]int64{1: 24, 15: 40}},
			}},
		},
		payments: []string{"4000", "2500"},
	},
	{
		name: "Gupta Wholesale",
		batches: []seedBatch{
			{date: "2024-03-15", items: []seedItem{
				{name: "Rice 5kg", boxes: 20, unitsPerBox: 4, boxPrice: "1200", gst: "5", sell: "340", sales: map[int]int64{3: 16, 25: 20}},
				{name: "Oil 1L", boxes: 5, unitsPerBox: 12, boxPrice: "1500", gst: "5", sell: "145", sales: map[int]int64{10: 12}},
			}},
		},
		payments: []string{"15000"},
	},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.StoreBackend == app.BackendMemory {
		log.Fatalf("STORE_BACKEND=memory would discard the seed; use redis or postgres")
	}
	ctx := context.Background()
	logger := app.NewLogger(cfg)
	backends, err := app.OpenBackends(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open backends: %v", err)
	}
	defer backends.Close()
	svc := app.NewServices(cfg, backends, logger)

	for _, c := range demo {
		fmt.Println("→ Seeding", c.name)
		if err := seedCompanyLedger(ctx, svc, c); err != nil {
			log.Fatalf("seed %s: %v", c.name, err)
		}
	}
	if err := svc.Analytics.Warm(ctx); err != nil {
		log.Printf("warm analytics cache: %v", err)
	}
	totals, err := svc.Stock.Totals(ctx)
	if err != nil {
		log.Fatalf("read totals: %v", err)
	}
	fmt.Printf("✓ Seed complete: revenue=%s profit=%s\n", svc.Formatter.Format(totals.TotalRevenue), svc.Formatter.Format(totals.TotalProfit))
}

func seedCompanyLedger(ctx context.Context, svc *app.Services, c seedCompany) error {
	company, err := svc.Companies.Register(ctx, c.name)
	if err != nil {
		return err
	}
	for _, b := range c.batches {
		if err := seedBatchLedger(ctx, svc, company, b); err != nil {
			return err
		}
	}
	for i, amount := range c.payments {
		if _, err := svc.Payments.AddPayment(ctx, company.ID, fmt.Sprintf("CHK-%03d", i+1), decimal.RequireFromString(amount)); err != nil {
			return fmt.Errorf("payment %s: %w", amount, err)
		}
	}
	return nil
}

func seedBatchLedger(ctx context.Context, svc *app.Services, company companies.Company, b seedBatch) error {
	var declared decimal.Decimal
	inputs := make([]pricing.Input, len(b.items))
	for i, item := range b.items {
		inputs[i] = pricing.Input{
			Boxes:               item.boxes,
			UnitsPerBox:         item.unitsPerBox,
			BoxPrice:            decimal.RequireFromString(item.boxPrice),
			GSTPercent:          decimal.RequireFromString(item.gst),
			SellingPricePerUnit: decimal.RequireFromString(item.sell),
		}
		result, err := pricing.Calculate(inputs[i])
		if err != nil {
			return fmt.Errorf("price %s: %w", item.name, err)
		}
		declared = declared.Add(result.TotalCostWithGST)
	}
	batch, err := svc.Companies.CreateBatch(ctx, company.ID, companies.BatchInput{Date: b.date, DeclaredAmount: declared})
	if err != nil {
		return err
	}
	arrived, err := time.Parse(time.DateOnly, b.date)
	if err != nil {
		return err
	}
	for i, item := range b.items {
		created, err := svc.Stock.CreateItem(ctx, company.ID, batch.ID, item.name, inputs[i])
		if err != nil {
			return fmt.Errorf("item %s: %w", item.name, err)
		}
		ref := stock.ItemRef{CompanyID: company.ID, BatchID: batch.ID, ItemID: created.ID}
		for offset, units := range item.sales {
			date := arrived.AddDate(0, 0, offset).Format(time.DateOnly)
			if _, err := svc.Stock.RecordSale(ctx, ref, units, date); err != nil {
				return fmt.Errorf("sale %s on %s: %w", item.name, date, err)
			}
		}
	}
	return nil
}
