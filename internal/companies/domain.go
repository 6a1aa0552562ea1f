package companies

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jntims/jntims/internal/shared"
)

// DateLayout is the calendar date format of batches and sales.
const DateLayout = "2006-01-02"

// BatchStatus enumerates arrival batch states.
type BatchStatus string

const (
	// BatchActive has stock left to sell.
	BatchActive BatchStatus = "Active"
	// BatchSold has every item fully sold.
	BatchSold BatchStatus = "Sold"
)

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool { return s == BatchActive || s == BatchSold }

// Document field names.
const (
	FieldName           = "name"
	FieldCumulativePaid = "cumulativePaid"
	FieldTotalPayable   = "totalPayable"
	FieldCompanyID      = "companyId"
	FieldDate           = "date"
	FieldAmount         = "amount"
	FieldStatus         = "status"
	FieldManual         = "manual"
)

// Company is a supplier with its running balance fields.
type Company struct {
	ID             string
	Name           string
	CumulativePaid decimal.Decimal
	TotalPayable   decimal.Decimal
	CreatedAt      time.Time
}

// Remaining returns the signed balance still owed.
func (c Company) Remaining() decimal.Decimal {
	return c.TotalPayable.Sub(c.CumulativePaid)
}

// Batch is a stock arrival or a manual payable adjustment.
type Batch struct {
	ID             string
	CompanyID      string
	Date           string
	DeclaredAmount decimal.Decimal
	Status         BatchStatus
	Manual         bool
	CreatedAt      time.Time
	// Version is the store version the batch was read at.
	Version int64
}

// BatchInput describes a batch to create.
type BatchInput struct {
	Date           string
	DeclaredAmount decimal.Decimal
	Manual         bool
}

// ErrBatchChanged indicates the batch was written after it was read.
var ErrBatchChanged = errors.New("companies: batch changed concurrently")

// ErrLocked indicates a concurrent cascade on the same company.
var ErrLocked = fmt.Errorf("companies: company is being modified: %w", shared.ErrBusy)

// CascadeError lists the documents a cascade failed to delete. The parent
// document is left in place whenever it is returned.
type CascadeError struct {
	Target string
	Failed map[string]error
}

func (e *CascadeError) Error() string {
	paths := make([]string, 0, len(e.Failed))
	for p := range e.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return fmt.Sprintf("companies: cascade delete of %s incomplete, %d failed: %s", e.Target, len(paths), strings.Join(paths, ", "))
}

// ProblemFields maps each failed path to its client safe message.
func (e *CascadeError) ProblemFields() map[string]string {
	out := make(map[string]string, len(e.Failed))
	for p, err := range e.Failed {
		out[p] = shared.UserSafeMessage(err)
	}
	return out
}

// Unwrap exposes the underlying failures.
func (e *CascadeError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}
