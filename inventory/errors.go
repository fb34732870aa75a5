/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with the helpers at the bottom instead of
  matching on strings.

ERROR CATEGORIES:
  1. Validation errors - Malformed movement requests (never retried)
  2. Domain errors     - Stock rule violations (client errors)
  3. Store errors      - Infrastructure failures (Conflict is retryable)

USAGE:
  tx, err := ledger.RecordMovement(ctx, req)
  switch {
  case errors.Is(err, inventory.ErrInsufficientStock):
      // 409 with shortfall detail
  case inventory.IsNotFound(err):
      // 404
  case inventory.IsRetryable(err):
      // safe to resubmit: nothing was committed
  }

SEE ALSO:
  - ledger.go: Produces these errors
  - store/sqlite: Maps driver errors onto ErrConflict
*/
package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRequest is returned when a movement request is malformed:
	// unknown type, non-positive quantity, or bad transfer destination.
	ErrInvalidRequest = errors.New("invalid movement request")

	// ErrItemNotFound is returned when the source or destination item
	// does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrTransactionNotFound is returned when a transaction id does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInsufficientStock is returned when a movement would drive an
	// item's quantity on hand negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConflict is returned on lock contention or storage timeout
	// during the atomic apply. Nothing was committed; the request may
	// be retried as-is.
	ErrConflict = errors.New("storage conflict")

	// ErrDuplicateCode is returned when creating an item whose code is
	// already taken.
	ErrDuplicateCode = errors.New("duplicate item code")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRequestError identifies which field of a movement request
// failed validation.
type InvalidRequestError struct {
	Field   string
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid movement request: %s: %s", e.Field, e.Message)
}

func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

// InsufficientStockError describes a stock shortage on the item whose
// quantity would have gone negative.
type InsufficientStockError struct {
	ItemID    ItemID
	Available decimal.Decimal
	Requested decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock on %s: available %s, requested %s, shortfall %s",
		e.ItemID, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry. Only
// infrastructure conflicts qualify: nothing was committed, so the same
// request can be resubmitted safely.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicateCode)
}

// IsNotFound returns true if the error indicates a missing item or transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
