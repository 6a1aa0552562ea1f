package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/platform/docstore"
)

func TestErrorTaxonomy(t *testing.T) {
	v := &ValidationError{}
	require.NoError(t, v.Err())
	v.Add("boxes", "must be greater than zero")
	v.Add("boxes", "ignored")
	v.Add("gstPercent", "must be between 0 and 100")
	err := v.Err()
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, "validation failed: boxes: must be greater than zero; gstPercent: must be between 0 and 100", err.Error())

	stock := fmt.Errorf("record sale: %w", &InsufficientStockError{ItemID: "i1", Requested: 5, Remaining: 2})
	require.ErrorIs(t, stock, ErrInsufficientStock)
	var ise *InsufficientStockError
	require.True(t, errors.As(stock, &ise))
	require.Equal(t, int64(2), ise.Remaining)

	over := &OverpaymentError{CompanyID: "c1", Amount: decimal.NewFromInt(12000), Remaining: decimal.NewFromInt(10000)}
	require.ErrorIs(t, over, ErrOverpayment)
	require.Contains(t, over.Error(), "12000.00")
	require.False(t, IsRetryable(over))
}

func TestStoreErrorMapping(t *testing.T) {
	err := StoreError("get company", "company", "c1", docstore.ErrNotFound)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "company c1 not found", err.Error())

	boom := errors.New("connection reset")
	err = StoreError("get company", "company", "c1", boom)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.ErrorIs(t, err, boom)
	require.True(t, IsRetryable(err))
	require.Equal(t, "storage temporarily unavailable, please retry", UserSafeMessage(err))

	for _, malformed := range []error{docstore.ErrInvalidPath, docstore.ErrUnsupportedValue} {
		err = StoreError("delete payment", "payment", "", malformed)
		require.ErrorIs(t, err, ErrValidation)
		require.False(t, IsRetryable(err))
	}

	passthrough := NewValidationError("amount", "must be greater than zero")
	require.Same(t, passthrough, StoreError("add payment", "company", "c1", passthrough))
	require.NoError(t, StoreError("noop", "company", "c1", nil))
	require.Equal(t, "internal error", UserSafeMessage(errors.New("secret")))
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore(docstore.NewMemory())
	require.NoError(t, store.CheckAndInsert(ctx, "abc/123", "sales"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "abc/123", "sales"), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "abc/123", "payments"))

	require.NoError(t, store.Delete(ctx, "abc/123", "sales"))
	require.NoError(t, store.CheckAndInsert(ctx, "abc/123", "sales"))

	store.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	removed, err := store.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
}

func TestPaths(t *testing.T) {
	require.Equal(t, "companies/c1/arrivalDates/b1/stockItems/i1", ItemPath("c1", "b1", "i1").String())
	require.Equal(t, "companies/c1/payments", PaymentsPath("c1").String())
	require.Equal(t, "totals/global", GlobalTotalsPath().String())
}

func TestPaginationBounds(t *testing.T) {
	p := NewPagination(2, 10, 25)
	require.Equal(t, 3, p.TotalPages)
	start, end := p.Bounds()
	require.Equal(t, 10, start)
	require.Equal(t, 20, end)
	start, end = NewPagination(4, 10, 25).Bounds()
	require.Equal(t, 25, start)
	require.Equal(t, 25, end)
}
