package pricing

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateScenario(t *testing.T) {
	res, err := Calculate(Input{
		Boxes:               10,
		UnitsPerBox:         20,
		BoxPrice:            dec("500"),
		GSTPercent:          dec("18"),
		SellingPricePerUnit: dec("35"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(200), res.Units)
	require.Equal(t, "590.00", res.BoxPriceWithGST.StringFixed(2))
	require.Equal(t, "5000.00", res.TotalCostWithoutGST.StringFixed(2))
	require.Equal(t, "5900.00", res.TotalCostWithGST.StringFixed(2))
	require.Equal(t, "25.00", res.PerUnitWithoutGST.StringFixed(2))
	require.Equal(t, "29.50", res.PerUnitWithGST.StringFixed(2))
	require.Equal(t, "5.50", res.ProfitPerUnit.StringFixed(2))
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	res, err := Calculate(Input{
		Boxes:               3,
		UnitsPerBox:         1,
		BoxPrice:            dec("10.05"),
		GSTPercent:          dec("10"),
		SellingPricePerUnit: dec("12"),
	})
	require.NoError(t, err)
	// 10.05 * 1.10 = 11.055
	require.Equal(t, "11.06", res.BoxPriceWithGST.StringFixed(2))
	require.Equal(t, "33.18", res.TotalCostWithGST.StringFixed(2))
}

func TestCalculateValidation(t *testing.T) {
	_, err := Calculate(Input{
		Boxes:      0,
		BoxPrice:   dec("-1"),
		GSTPercent: dec("101"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 5)
	require.Contains(t, verr.Fields, FieldBoxes)
	require.Contains(t, verr.Fields, FieldUnitsPerBox)
	require.Contains(t, verr.Fields, FieldBoxPrice)
	require.Contains(t, verr.Fields, FieldGSTPercent)
	require.Contains(t, verr.Fields, FieldSellingPrice)

	_, err = Calculate(Input{Boxes: 1, UnitsPerBox: 1, BoxPrice: dec("1"), GSTPercent: dec("0"), SellingPricePerUnit: dec("1")})
	require.NoError(t, err)
	_, err = Calculate(Input{Boxes: 1, UnitsPerBox: 1, BoxPrice: dec("1"), GSTPercent: dec("100"), SellingPricePerUnit: dec("1")})
	require.NoError(t, err)
	_, err = Calculate(Input{Boxes: MaxUnits, UnitsPerBox: 2, BoxPrice: dec("1"), SellingPricePerUnit: dec("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestParseInput(t *testing.T) {
	in, err := ParseInput(RawInput{
		Boxes:               "10",
		UnitsPerBox:         " 20 ",
		BoxPrice:            "₹500",
		GSTPercent:          "18",
		SellingPricePerUnit: "35.00",
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), in.Boxes)
	require.Equal(t, int64(20), in.UnitsPerBox)
	require.True(t, in.BoxPrice.Equal(dec("500")))

	_, err = ParseInput(RawInput{Boxes: "2.5", BoxPrice: "abc"})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "must be a whole number", verr.Fields[FieldBoxes])
	require.Equal(t, "is required", verr.Fields[FieldUnitsPerBox])
	require.Equal(t, "must be a number", verr.Fields[FieldBoxPrice])
}

func TestPreviewRaw(t *testing.T) {
	p := PreviewRaw(RawInput{Boxes: "10", UnitsPerBox: "20", BoxPrice: "500", GSTPercent: "18", SellingPricePerUnit: "35"})
	require.Empty(t, p.Errors)
	require.NotNil(t, p.Result)
	require.Equal(t, "29.50", p.Result.PerUnitWithGST.StringFixed(2))

	p = PreviewRaw(RawInput{Boxes: "10", UnitsPerBox: "20", BoxPrice: "500", GSTPercent: "180", SellingPricePerUnit: "35"})
	require.Nil(t, p.Result)
	require.Equal(t, "must be between 0 and 100", p.Errors[FieldGSTPercent])
}

// The per-unit figures are rounded once, so multiplying back can only drift
// by the half cent lost per unit.
func TestPerUnitWithinOneCentPerUnit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	halfCent := dec("0.005")
	for i := 0; i < 2000; i++ {
		in := Input{
			Boxes:               int64(rng.Intn(500) + 1),
			UnitsPerBox:         int64(rng.Intn(100) + 1),
			BoxPrice:            decimal.New(int64(rng.Intn(1_000_000)+1), -2),
			GSTPercent:          decimal.New(int64(rng.Intn(10001)), -2),
			SellingPricePerUnit: dec("1"),
		}
		res, err := Calculate(in)
		require.NoError(t, err)
		units := decimal.NewFromInt(res.Units)
		drift := res.PerUnitWithGST.Mul(units).Sub(res.TotalCostWithGST).Abs()
		require.True(t, drift.LessThanOrEqual(halfCent.Mul(units)), "input %+v drift %s", in, drift)
		exact := res.TotalCostWithGST.Div(units)
		require.True(t, res.PerUnitWithGST.Sub(exact).Abs().LessThanOrEqual(halfCent), "input %+v", in)
	}
}
