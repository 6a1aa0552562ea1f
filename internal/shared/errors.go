package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jntims/jntims/internal/platform/docstore"
)

var (
	// ErrValidation marks malformed, missing or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock marks a sale larger than the remaining units.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverpayment marks a payment larger than the remaining balance.
	ErrOverpayment = errors.New("payment exceeds remaining balance")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrBusy marks a resource locked by a concurrent operation.
	ErrBusy = errors.New("resource busy")
	// ErrStoreUnavailable marks a backing store failure. It is the only class
	// a caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError collects per-field problems.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an error for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a problem for field, keeping the first message per field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientStockError reports a sale that would push sold past units.
type InsufficientStockError struct {
	ItemID    string
	Requested int64
	Remaining int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, remaining %d", e.ItemID, e.Requested, e.Remaining)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// OverpaymentError reports a payment larger than the company's remaining balance.
type OverpaymentError struct {
	CompanyID string
	Amount    decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds remaining balance %s for company %s",
		e.Amount.StringFixed(2), e.Remaining.StringFixed(2), e.CompanyID)
}

func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpayment }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StoreUnavailableError wraps a transport or backing-store failure.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	if e.Err == nil {
		return "store unavailable: " + e.Op
	}
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// IsRetryable reports whether a caller may retry the failed operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// StoreError maps document store failures onto the error taxonomy. Errors that
// already belong to the taxonomy pass through unchanged.
func StoreError(op, entity, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return &NotFoundError{Entity: entity, ID: id}
	case errors.Is(err, docstore.ErrInvalidPath):
		return NewValidationError(entity, fmt.Sprintf("invalid %s reference %q", entity, id))
	case errors.Is(err, docstore.ErrUnsupportedValue):
		return NewValidationError(entity, "contains an unsupported value")
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrOverpayment), errors.Is(err, ErrNotFound), errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrBusy):
		return err
	default:
		return &StoreUnavailableError{Op: op, Err: err}
	}
}

// UserSafeMessage returns a message that can be shown to API clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrOverpayment), errors.Is(err, ErrNotFound), errors.Is(err, ErrBusy):
		return err.Error()
	case errors.Is(err, ErrStoreUnavailable):
		return "storage temporarily unavailable, please retry"
	default:
		return "internal error"
	}
}
