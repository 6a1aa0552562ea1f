package companies

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/shared"
)

type failingStore struct {
	docstore.Store
	mu       sync.Mutex
	failPath map[docstore.Path]bool
}

func (f *failingStore) Delete(ctx context.Context, path docstore.Path) error {
	f.mu.Lock()
	fail := f.failPath[path]
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.Store.Delete(ctx, path)
}

func (f *failingStore) heal() {
	f.mu.Lock()
	f.failPath = map[docstore.Path]bool{}
	f.mu.Unlock()
}

type countingCache struct{ bumps int }

func (c *countingCache) Bump(context.Context) error { c.bumps++; return nil }

type heldLocker struct{}

func (heldLocker) Obtain(context.Context, string, time.Duration) (shared.Lock, error) {
	return nil, shared.ErrLockHeld
}

func newTestService(t *testing.T) (*Service, *failingStore, *countingCache) {
	t.Helper()
	store := &failingStore{Store: docstore.NewMemory(), failPath: map[docstore.Path]bool{}}
	cache := &countingCache{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(NewRepository(store), nil, cache, logger), store, cache
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "   ")
	require.ErrorIs(t, err, shared.ErrValidation)

	c, err := svc.Register(ctx, " Sharma Traders ")
	require.NoError(t, err)
	require.Equal(t, "Sharma Traders", c.Name)
	require.True(t, c.CumulativePaid.IsZero())

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateBatchRaisesPayable(t *testing.T) {
	svc, _, cache := newTestService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, "Acme")
	require.NoError(t, err)

	_, err = svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-13-01", DeclaredAmount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-03-01", DeclaredAmount: decimal.RequireFromString("0.004")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateBatch(ctx, "missing", BatchInput{Date: "2024-03-01", DeclaredAmount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, shared.ErrNotFound)

	b, err := svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-03-01", DeclaredAmount: decimal.RequireFromString("6000.555")})
	require.NoError(t, err)
	require.Equal(t, BatchActive, b.Status)
	require.Equal(t, "6000.56", b.DeclaredAmount.StringFixed(2))
	_, err = svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-03-05", DeclaredAmount: decimal.NewFromInt(4000)})
	require.NoError(t, err)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "10000.56", got.TotalPayable.StringFixed(2))
	require.Equal(t, 2, cache.bumps)
}

func TestListBatchesByStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, "Acme")
	require.NoError(t, err)
	first, err := svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-03-01", DeclaredAmount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-03-02", DeclaredAmount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.NoError(t, svc.Repository().SetBatchStatus(ctx, c.ID, first.ID, BatchSold))

	sold, err := svc.ListBatches(ctx, c.ID, BatchSold)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	require.Equal(t, first.ID, sold[0].ID)

	all, err := svc.ListBatches(ctx, c.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = svc.ListBatches(ctx, c.ID, "Pending")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteBatchLowersPayable(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, "Acme")
	require.NoError(t, err)
	b, err := svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-03-01", DeclaredAmount: decimal.NewFromInt(2500)})
	require.NoError(t, err)
	_, err = store.Create(ctx, shared.ItemsPath(c.ID, b.ID), docstore.Fields{"name": "Soap"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBatch(ctx, c.ID, b.ID))
	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, got.TotalPayable.IsZero())

	items, err := store.List(ctx, shared.ItemsPath(c.ID, b.ID), docstore.Query{})
	require.NoError(t, err)
	require.Empty(t, items)

	require.ErrorIs(t, svc.DeleteBatch(ctx, c.ID, b.ID), shared.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, "Acme")
	require.NoError(t, err)
	other, err := svc.Register(ctx, "Other")
	require.NoError(t, err)
	b, err := svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-03-01", DeclaredAmount: decimal.NewFromInt(2500)})
	require.NoError(t, err)
	_, err = store.Create(ctx, shared.ItemsPath(c.ID, b.ID), docstore.Fields{"name": "Soap"})
	require.NoError(t, err)
	payment, err := store.Create(ctx, shared.PaymentsPath(c.ID), docstore.Fields{"amountPaid": int64(100)})
	require.NoError(t, err)

	store.failPath[payment.Path] = true
	err = svc.Delete(ctx, c.ID)
	var cascade *CascadeError
	require.True(t, errors.As(err, &cascade))
	require.Contains(t, cascade.Failed, payment.Path.String())
	require.ErrorIs(t, err, shared.ErrStoreUnavailable)

	_, err = svc.Get(ctx, c.ID)
	require.NoError(t, err, "company must survive a partial cascade")

	store.heal()
	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	for _, col := range []docstore.Path{shared.BatchesPath(c.ID), shared.ItemsPath(c.ID, b.ID), shared.PaymentsPath(c.ID)} {
		docs, err := store.List(ctx, col, docstore.Query{})
		require.NoError(t, err)
		require.Empty(t, docs, col.String())
	}

	_, err = svc.Get(ctx, other.ID)
	require.NoError(t, err)
}

func TestDeleteBatchKeepsBatchWhenItemsFail(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, "Acme")
	require.NoError(t, err)
	b, err := svc.CreateBatch(ctx, c.ID, BatchInput{Date: "2024-03-01", DeclaredAmount: decimal.NewFromInt(2500)})
	require.NoError(t, err)
	item, err := store.Create(ctx, shared.ItemsPath(c.ID, b.ID), docstore.Fields{"name": "Soap"})
	require.NoError(t, err)
	store.failPath[item.Path] = true

	err = svc.DeleteBatch(ctx, c.ID, b.ID)
	var cascade *CascadeError
	require.True(t, errors.As(err, &cascade))
	require.Equal(t, "store unavailable: delete child: connection reset", cascade.Failed[item.Path.String()].Error())

	_, err = svc.GetBatch(ctx, c.ID, b.ID)
	require.NoError(t, err)
	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "2500.00", got.TotalPayable.StringFixed(2))
}

func TestDeleteRespectsLock(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.locker = heldLocker{}
	ctx := context.Background()
	c, err := svc.Register(ctx, "Acme")
	require.NoError(t, err)
	err = svc.Delete(ctx, c.ID)
	require.ErrorIs(t, err, ErrLocked)
	require.ErrorIs(t, err, shared.ErrBusy)
}
