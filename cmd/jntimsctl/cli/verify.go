package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jntims/jntims/internal/analytics"
)

// Verifier runs the ledger checks inline.
type Verifier interface {
	VerifyTotals(ctx context.Context) (analytics.SalesVerification, error)
	ReconcilePayable(ctx context.Context) (analytics.PayableReconciliation, error)
}

// VerifyReport is printed by VerifyCommand.
type VerifyReport struct {
	Clean   bool                            `json:"clean"`
	Sales   analytics.SalesVerification     `json:"sales"`
	Payable analytics.PayableReconciliation `json:"payable"`
}

// VerifyOptions controls VerifyCommand output.
type VerifyOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifyCommand runs both checks and returns a process exit code: 0 when
// clean, 2 when drift was found and 1 on errors.
func VerifyCommand(ctx context.Context, v Verifier, opts VerifyOptions) int {
	sales, err := v.VerifyTotals(ctx)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "verify sales: %v\n", err)
		return 1
	}
	payable, err := v.ReconcilePayable(ctx)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "reconcile payable: %v\n", err)
		return 1
	}
	report := VerifyReport{Clean: sales.Clean() && len(payable.Drifts) == 0, Sales: sales, Payable: payable}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(opts.Stderr, "encode report: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintf(opts.Stdout, "sales events: %d\n", sales.Events)
		fmt.Fprintf(opts.Stdout, "revenue stored=%s replayed=%s\n", sales.StoredRevenue.StringFixed(2), sales.ReplayedRevenue.StringFixed(2))
		fmt.Fprintf(opts.Stdout, "profit  stored=%s replayed=%s\n", sales.StoredProfit.StringFixed(2), sales.ReplayedProfit.StringFixed(2))
		for _, d := range sales.Items {
			fmt.Fprintf(opts.Stdout, "item %s (%s): sold=%d replayed=%d\n", d.ItemID, d.Name, d.Sold, d.Replayed)
		}
		for _, d := range payable.Drifts {
			fmt.Fprintf(opts.Stdout, "company %s (%s): payable=%s batches=%s\n", d.CompanyID, d.Name, d.Stored.StringFixed(2), d.Declared.StringFixed(2))
		}
	}
	if !report.Clean {
		return 2
	}
	return 0
}
