package companies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/shared"
)

// MaxNameLength bounds company names.
const MaxNameLength = 120

// Invalidator drops derived report caches after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates company registration, arrival batches and cascades.
type Service struct {
	repo    *Repository
	locker  shared.Locker
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time
	lockTTL time.Duration
}

// NewService builds Service. locker and cache may be nil.
func NewService(repo *Repository, locker shared.Locker, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, cache: cache, logger: logger, now: time.Now, lockTTL: time.Minute}
}

// Repository exposes the underlying repository to sibling ledgers.
func (s *Service) Repository() *Repository { return s.repo }

// Register creates a company with zero balances.
func (s *Service) Register(ctx context.Context, name string) (Company, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return Company{}, shared.NewValidationError(FieldName, "is required")
	case len(name) > MaxNameLength:
		return Company{}, shared.NewValidationError(FieldName, fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
	company, err := s.repo.InsertCompany(ctx, name, s.now())
	if err != nil {
		return Company{}, err
	}
	s.logger.Info("company registered", slog.String("company_id", company.ID))
	return company, nil
}

// List returns every company.
func (s *Service) List(ctx context.Context) ([]Company, error) {
	return s.repo.ListCompanies(ctx)
}

// Get returns one company.
func (s *Service) Get(ctx context.Context, companyID string) (Company, error) {
	return s.repo.GetCompany(ctx, companyID)
}

// ValidateBatchInput checks the date and declared amount.
func ValidateBatchInput(in BatchInput) error {
	v := &shared.ValidationError{}
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		v.Add(FieldDate, "must be a YYYY-MM-DD date")
	}
	if money.Cents(in.DeclaredAmount) <= 0 {
		v.Add(FieldAmount, "must be greater than zero")
	}
	return v.Err()
}

// CreateBatch records an arrival and raises the company's total payable by
// its declared amount.
func (s *Service) CreateBatch(ctx context.Context, companyID string, in BatchInput) (Batch, error) {
	if err := ValidateBatchInput(in); err != nil {
		return Batch{}, err
	}
	in.DeclaredAmount = money.Round(in.DeclaredAmount)
	if _, err := s.repo.GetCompany(ctx, companyID); err != nil {
		return Batch{}, err
	}
	batch, err := s.repo.InsertBatch(ctx, companyID, in, s.now())
	if err != nil {
		return Batch{}, err
	}
	if err := s.repo.AdjustPayable(ctx, companyID, money.Cents(in.DeclaredAmount)); err != nil {
		if _, rerr := s.repo.Remove(ctx, shared.BatchPath(companyID, batch.ID)); rerr != nil {
			s.logger.Error("rollback batch insert failed",
				slog.String("company_id", companyID), slog.String("batch_id", batch.ID), slog.Any("error", rerr))
		}
		return Batch{}, err
	}
	s.invalidate(ctx)
	s.logger.Info("batch created",
		slog.String("company_id", companyID),
		slog.String("batch_id", batch.ID),
		slog.Bool("manual", in.Manual),
		slog.String("amount", in.DeclaredAmount.StringFixed(money.Scale)))
	return batch, nil
}

// ListBatches returns batches, filtered by status when non-empty.
func (s *Service) ListBatches(ctx context.Context, companyID string, status BatchStatus) ([]Batch, error) {
	if status != "" && !status.Valid() {
		return nil, shared.NewValidationError(FieldStatus, "must be Active or Sold")
	}
	if _, err := s.repo.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.repo.ListBatches(ctx, companyID, status)
}

// GetBatch returns one batch.
func (s *Service) GetBatch(ctx context.Context, companyID, batchID string) (Batch, error) {
	return s.repo.GetBatch(ctx, companyID, batchID)
}

// DeleteBatch removes a batch with its items and lowers total payable by the
// declared amount. Recorded sales are kept.
func (s *Service) DeleteBatch(ctx context.Context, companyID, batchID string) error {
	batch, err := s.repo.GetBatch(ctx, companyID, batchID)
	if err != nil {
		return err
	}
	batchPath := shared.BatchPath(companyID, batchID)
	failed := map[string]error{}
	s.deleteChildren(ctx, shared.ItemsPath(companyID, batchID), failed)
	if len(failed) > 0 {
		return &CascadeError{Target: batchPath.String(), Failed: failed}
	}
	existed, err := s.repo.Remove(ctx, batchPath)
	if err != nil {
		return shared.StoreError("delete batch", "batch", batchID, err)
	}
	if !existed {
		return &shared.NotFoundError{Entity: "batch", ID: batchID}
	}
	if err := s.repo.AdjustPayable(ctx, companyID, -money.Cents(batch.DeclaredAmount)); err != nil {
		s.logger.Error("total payable not lowered after batch delete",
			slog.String("company_id", companyID), slog.String("batch_id", batchID), slog.Any("error", err))
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("batch deleted", slog.String("company_id", companyID), slog.String("batch_id", batchID))
	return nil
}

// Delete cascades items, batches and payments before removing the company.
// On any child failure the company document stays and a CascadeError lists
// what could not be removed; calling Delete again resumes the cascade.
func (s *Service) Delete(ctx context.Context, companyID string) error {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, shared.CompanyLockKey(companyID), s.lockTTL)
		if errors.Is(err, shared.ErrLockHeld) {
			return ErrLocked
		}
		if err != nil {
			return &shared.StoreUnavailableError{Op: "lock company", Err: err}
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release company lock", slog.String("company_id", companyID), slog.Any("error", err))
			}
		}()
	}

	if _, err := s.repo.GetCompany(ctx, companyID); err != nil {
		return err
	}

	failed := map[string]error{}
	batches, err := s.repo.Children(ctx, shared.BatchesPath(companyID))
	if err != nil {
		failed[shared.BatchesPath(companyID).String()] = shared.StoreError("list batches", "company", companyID, err)
	}
	for _, batch := range batches {
		before := len(failed)
		s.deleteChildren(ctx, batch.Collection(shared.ItemsCollection), failed)
		if len(failed) > before {
			continue
		}
		if _, err := s.repo.Remove(ctx, batch); err != nil {
			failed[batch.String()] = shared.StoreError("delete batch", "batch", batch.ID(), err)
		}
	}
	s.deleteChildren(ctx, shared.PaymentsPath(companyID), failed)

	target := shared.CompanyPath(companyID)
	if len(failed) > 0 {
		s.logger.Error("company cascade incomplete",
			slog.String("company_id", companyID), slog.Int("failed", len(failed)))
		return &CascadeError{Target: target.String(), Failed: failed}
	}
	if _, err := s.repo.Remove(ctx, target); err != nil {
		return shared.StoreError("delete company", "company", companyID, err)
	}
	s.invalidate(ctx)
	s.logger.Info("company deleted", slog.String("company_id", companyID), slog.Int("batches", len(batches)))
	return nil
}

func (s *Service) deleteChildren(ctx context.Context, collection docstore.Path, failed map[string]error) {
	children, err := s.repo.Children(ctx, collection)
	if err != nil {
		failed[collection.String()] = shared.StoreError("list children", "collection", collection.String(), err)
		return
	}
	for _, child := range children {
		if _, err := s.repo.Remove(ctx, child); err != nil {
			failed[child.String()] = shared.StoreError("delete child", "document", child.String(), err)
		}
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("analytics cache bump failed", slog.Any("error", err))
	}
}
