package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document field names.
const (
	FieldCompanyID   = "companyId"
	FieldCheckNumber = "checkNumber"
	FieldAmountPaid  = "amountPaid"
)

// MaxCheckNumberLength bounds cheque references.
const MaxCheckNumberLength = 64

// Payment is one recorded payment to a company.
type Payment struct {
	ID          string
	CompanyID   string
	CheckNumber string
	AmountPaid  decimal.Decimal
	CreatedAt   time.Time
}

// Balance is the payable position of a company. Remaining keeps its sign;
// Display is never below zero.
type Balance struct {
	CompanyID      string
	TotalPayable   decimal.Decimal
	CumulativePaid decimal.Decimal
	Remaining      decimal.Decimal
	Display        decimal.Decimal
}
