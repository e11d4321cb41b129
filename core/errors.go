/*
errors.go - Error taxonomy for the front-desk engines

PURPOSE:
  All error types in one place. Business outcomes (Denied, expired, no
  credit during a check-in) are results, not errors; only the conditions
  below are returned as errors.

ERROR CATEGORIES:
  1. Client errors - InvalidInput, NotFound, DuplicatePayment, shift state,
     OutOfStock, HasHistory
  2. Infrastructure errors - Persistence, Timeout

USAGE:
    if errors.Is(err, core.ErrDuplicatePayment) {
        // ask staff whether to override
    }

SEE ALSO:
  - guard.go: maps raw store errors onto this taxonomy
*/
package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a member, plan, subscription or shift is missing.
	ErrNotFound = errors.New("not found")

	// ErrNoCredit is returned when a visit pack balance is exhausted.
	ErrNoCredit = errors.New("no visits available")

	// ErrDuplicatePayment is returned when an identical payment was just recorded.
	ErrDuplicatePayment = errors.New("duplicate payment")

	// ErrPersistence is returned when a store read or write did not complete.
	ErrPersistence = errors.New("persistence failure")

	// ErrTimeout is returned when a store call exceeded its deadline.
	ErrTimeout = errors.New("store timeout")

	// ErrInvalidInput is returned for missing fields or negative amounts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrShiftAlreadyOpen is returned when the staff member already has an open shift.
	ErrShiftAlreadyOpen = errors.New("shift already open")

	// ErrShiftNotOpen is returned when writing to a closed or missing shift.
	ErrShiftNotOpen = errors.New("shift not open")

	// ErrOutOfStock is returned when a sale asks for more units than are on the shelf.
	ErrOutOfStock = errors.New("out of stock")

	// ErrHasHistory is returned when removing a member who has payments,
	// attendance or subscriptions on record.
	ErrHasHistory = errors.New("record has history")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InputError names the offending field.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// Invalid is shorthand for an InputError.
func Invalid(field, message string) error {
	return &InputError{Field: field, Message: message}
}

// DuplicatePaymentError describes the earlier payment that matched.
type DuplicatePaymentError struct {
	MemberID   MemberID
	Amount     decimal.Decimal
	ExistingID string
	RecordedAt time.Time
}

func (e *DuplicatePaymentError) Error() string {
	return fmt.Sprintf("payment of %s for member %s already recorded at %s (payment %s)",
		e.Amount.StringFixed(2), e.MemberID, e.RecordedAt.Format(time.RFC3339), e.ExistingID)
}

func (e *DuplicatePaymentError) Unwrap() error { return ErrDuplicatePayment }

// StockError reports how many units were left when a sale was refused.
type StockError struct {
	ProductID ProductID
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %s: %d requested, %d in stock", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrOutOfStock }

// PersistenceError wraps a driver error with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the driver error.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicatePayment) ||
		errors.Is(err, ErrShiftAlreadyOpen) ||
		errors.Is(err, ErrShiftNotOpen) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrHasHistory)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrPersistence)
}
