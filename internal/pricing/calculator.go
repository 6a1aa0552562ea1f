// Package pricing derives the tax-inclusive cost fields of a stock item from
// its box-level purchase data. Every function is pure.
package pricing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/shared"
)

// MaxUnits bounds boxes*unitsPerBox.
const MaxUnits = 1_000_000_000

var maxGST = decimal.NewFromInt(100)

// Field names reported in validation errors.
const (
	FieldBoxes        = "boxes"
	FieldUnitsPerBox  = "unitsPerBox"
	FieldBoxPrice     = "boxPrice"
	FieldGSTPercent   = "gstPercent"
	FieldSellingPrice = "sellingPricePerUnit"
)

// Input is the typed calculator input.
type Input struct {
	Boxes               int64
	UnitsPerBox         int64
	BoxPrice            decimal.Decimal
	GSTPercent          decimal.Decimal
	SellingPricePerUnit decimal.Decimal
}

// RawInput carries form values as typed by the user.
type RawInput struct {
	Boxes               string
	UnitsPerBox         string
	BoxPrice            string
	GSTPercent          string
	SellingPricePerUnit string
}

// Result holds the derived monetary fields, each rounded to two places.
type Result struct {
	Input
	Units               int64
	BoxPriceWithGST     decimal.Decimal
	TotalCostWithoutGST decimal.Decimal
	TotalCostWithGST    decimal.Decimal
	PerUnitWithoutGST   decimal.Decimal
	PerUnitWithGST      decimal.Decimal
	ProfitPerUnit       decimal.Decimal
}

// Validate reports every invalid field at once.
func Validate(in Input) error {
	v := &shared.ValidationError{}
	if in.Boxes <= 0 {
		v.Add(FieldBoxes, "must be greater than zero")
	}
	if in.UnitsPerBox <= 0 {
		v.Add(FieldUnitsPerBox, "must be greater than zero")
	}
	if in.Boxes > 0 && in.UnitsPerBox > MaxUnits/in.Boxes {
		v.Add(FieldUnitsPerBox, "total units too large")
	}
	if !in.BoxPrice.IsPositive() {
		v.Add(FieldBoxPrice, "must be greater than zero")
	}
	if in.GSTPercent.IsNegative() || in.GSTPercent.GreaterThan(maxGST) {
		v.Add(FieldGSTPercent, "must be between 0 and 100")
	}
	if !in.SellingPricePerUnit.IsPositive() {
		v.Add(FieldSellingPrice, "must be greater than zero")
	}
	return v.Err()
}

// Calculate validates in and derives the stored pricing fields.
func Calculate(in Input) (Result, error) {
	if err := Validate(in); err != nil {
		return Result{}, err
	}
	units := in.Boxes * in.UnitsPerBox
	boxes := decimal.NewFromInt(in.Boxes)
	unitCount := decimal.NewFromInt(units)

	boxPriceWithGST := money.Round(in.BoxPrice.Mul(decimal.NewFromInt(1).Add(money.Percent(in.GSTPercent))))
	totalWithout := money.Round(in.BoxPrice.Mul(boxes))
	totalWith := money.Round(boxPriceWithGST.Mul(boxes))
	perUnitWith := money.Round(totalWith.Div(unitCount))

	return Result{
		Input:               in,
		Units:               units,
		BoxPriceWithGST:     boxPriceWithGST,
		TotalCostWithoutGST: totalWithout,
		TotalCostWithGST:    totalWith,
		PerUnitWithoutGST:   money.Round(totalWithout.Div(unitCount)),
		PerUnitWithGST:      perUnitWith,
		ProfitPerUnit:       money.Round(in.SellingPricePerUnit).Sub(perUnitWith),
	}, nil
}

// ParseInput converts raw form values, reporting unparsable or missing fields
// as a ValidationError.
func ParseInput(raw RawInput) (Input, error) {
	v := &shared.ValidationError{}
	in := Input{
		Boxes:               parseCount(v, FieldBoxes, raw.Boxes),
		UnitsPerBox:         parseCount(v, FieldUnitsPerBox, raw.UnitsPerBox),
		BoxPrice:            parseAmount(v, FieldBoxPrice, raw.BoxPrice),
		GSTPercent:          parseAmount(v, FieldGSTPercent, raw.GSTPercent),
		SellingPricePerUnit: parseAmount(v, FieldSellingPrice, raw.SellingPricePerUnit),
	}
	if err := v.Err(); err != nil {
		return Input{}, err
	}
	return in, nil
}

func parseCount(v *shared.ValidationError, field, raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		v.Add(field, "is required")
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		v.Add(field, "must be a whole number")
		return 0
	}
	return n
}

func parseAmount(v *shared.ValidationError, field, raw string) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		v.Add(field, "is required")
		return decimal.Zero
	}
	d, err := money.Parse(raw)
	if err != nil {
		v.Add(field, "must be a number")
		return decimal.Zero
	}
	return d
}

// Preview is the live form feedback: either a result or the field problems.
type Preview struct {
	Result *Result           `json:"result,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// PreviewRaw never fails; invalid input is reported in Preview.Errors.
func PreviewRaw(raw RawInput) Preview {
	in, err := ParseInput(raw)
	if err == nil {
		var res Result
		res, err = Calculate(in)
		if err == nil {
			return Preview{Result: &res}
		}
	}
	if verr, ok := err.(*shared.ValidationError); ok {
		return Preview{Errors: verr.Fields}
	}
	return Preview{Errors: map[string]string{"input": err.Error()}}
}
