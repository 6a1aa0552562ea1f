package payments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jntims/jntims/internal/companies"
	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/shared"
)

// BatchCreator records synthetic payable batches.
type BatchCreator interface {
	CreateBatch(ctx context.Context, companyID string, in companies.BatchInput) (companies.Batch, error)
}

// Invalidator drops derived report caches after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service owns payment records and the company's cumulative paid balance.
type Service struct {
	repo    *Repository
	batches BatchCreator
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. cache may be nil.
func NewService(repo *Repository, batches BatchCreator, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, batches: batches, cache: cache, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RemainingBalance returns total payable minus cumulative paid.
func (s *Service) RemainingBalance(ctx context.Context, companyID string) (Balance, error) {
	c, err := s.repo.Company(ctx, companyID)
	if err != nil {
		return Balance{}, err
	}
	remaining := c.Remaining()
	return Balance{
		CompanyID:      companyID,
		TotalPayable:   c.TotalPayable,
		CumulativePaid: c.CumulativePaid,
		Remaining:      remaining,
		Display:        money.ClampZero(remaining),
	}, nil
}

// AddPayment records a payment that must not exceed the remaining balance.
// The check and the cumulativePaid increment are one atomic step.
func (s *Service) AddPayment(ctx context.Context, companyID, checkNumber string, amount decimal.Decimal) (Payment, error) {
	checkNumber = strings.TrimSpace(checkNumber)
	v := &shared.ValidationError{}
	switch {
	case checkNumber == "":
		v.Add(FieldCheckNumber, "is required")
	case len(checkNumber) > MaxCheckNumberLength:
		v.Add(FieldCheckNumber, "is too long")
	}
	cents := money.Cents(amount)
	if cents <= 0 {
		v.Add(FieldAmountPaid, "must be greater than zero")
	}
	if err := v.Err(); err != nil {
		return Payment{}, err
	}

	company, err := s.repo.ChargePaid(ctx, companyID, cents)
	if err != nil {
		return Payment{}, err
	}
	payment, err := s.repo.Insert(ctx, Payment{
		CompanyID:   companyID,
		CheckNumber: checkNumber,
		AmountPaid:  money.FromCents(cents),
		CreatedAt:   s.now(),
	})
	if err != nil {
		if rerr := s.repo.AdjustPaid(ctx, companyID, -cents); rerr != nil {
			s.logger.Error("cumulative paid not compensated after failed payment insert",
				slog.String("company_id", companyID), slog.Int64("cents", cents), slog.Any("error", rerr))
		}
		return Payment{}, err
	}
	s.invalidate(ctx)
	s.logger.Info("payment added",
		slog.String("company_id", companyID),
		slog.String("payment_id", payment.ID),
		slog.String("amount", payment.AmountPaid.StringFixed(money.Scale)),
		slog.String("cumulative_paid", company.CumulativePaid.StringFixed(money.Scale)))
	return payment, nil
}

// DeletePayment hides a payment record. The money stays paid.
func (s *Service) DeletePayment(ctx context.Context, companyID, paymentID string) error {
	if err := s.repo.Delete(ctx, companyID, paymentID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("payment deleted", slog.String("company_id", companyID), slog.String("payment_id", paymentID))
	return nil
}

// RestorePayment reverses a payment: the record goes away and cumulativePaid
// drops by exactly its amount. A zero amount selects the stored amount; any
// other value must match it.
func (s *Service) RestorePayment(ctx context.Context, companyID, paymentID string, amount decimal.Decimal) (Payment, error) {
	if amount.IsNegative() {
		return Payment{}, shared.NewValidationError(FieldAmountPaid, "must not be negative")
	}
	payment, err := s.repo.Get(ctx, companyID, paymentID)
	if err != nil {
		return Payment{}, err
	}
	cents := money.Cents(payment.AmountPaid)
	if !amount.IsZero() && money.Cents(amount) != cents {
		return Payment{}, shared.NewValidationError(FieldAmountPaid, "must equal the recorded payment amount "+payment.AmountPaid.StringFixed(money.Scale))
	}

	// The delete is the claim: of concurrent restores only one gets past it.
	if err := s.repo.Delete(ctx, companyID, paymentID); err != nil {
		return Payment{}, err
	}
	if err := s.repo.AdjustPaid(ctx, companyID, -cents); err != nil {
		if perr := s.repo.Put(ctx, payment); perr != nil {
			s.logger.Error("payment record lost after failed restore",
				slog.String("company_id", companyID), slog.String("payment_id", paymentID), slog.Any("error", perr))
		}
		return Payment{}, err
	}
	s.invalidate(ctx)
	s.logger.Info("payment restored",
		slog.String("company_id", companyID),
		slog.String("payment_id", paymentID),
		slog.String("amount", payment.AmountPaid.StringFixed(money.Scale)))
	return payment, nil
}

// AddManualAdjustment raises the total payable outside the arrival flow by
// recording a synthetic batch with no items. date defaults to today.
func (s *Service) AddManualAdjustment(ctx context.Context, companyID string, amount decimal.Decimal, date string) (companies.Batch, error) {
	if money.Cents(amount) <= 0 {
		return companies.Batch{}, shared.NewValidationError(companies.FieldAmount, "must be greater than zero")
	}
	if date == "" {
		date = s.now().Format(companies.DateLayout)
	}
	return s.batches.CreateBatch(ctx, companyID, companies.BatchInput{Date: date, DeclaredAmount: amount, Manual: true})
}

// ListPayments returns payments newest first.
func (s *Service) ListPayments(ctx context.Context, companyID string) ([]Payment, error) {
	if _, err := s.repo.Company(ctx, companyID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, companyID)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("analytics cache bump failed", slog.Any("error", err))
	}
}
