/*
Package inventory provides the core stock movement ledger.

PURPOSE:
  This package contains the types and algorithms for mutating an
  inventory item's on-hand quantity and weighted-average unit cost in
  response to discrete movement events: stock receipts, consumption,
  manual corrections, and inter-item transfers. Cost accounting stays
  consistent, stock never goes negative, and every change is recorded
  as an immutable transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Item: Current mutable state of an inventory item (quantity + cost)
  - Transaction: An immutable ledger entry recording one movement leg
  - MovementType: A closed enum of exactly four movement kinds
  - MovementRequest: A strongly typed request to change an item's stock

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified; corrections are
     made by recording new movements
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for ids; unknown movement types are
     rejected at the boundary, not deep in the cost math
  4. Auditability: Every transaction carries actor attribution,
     reference, and notes

USAGE:
  req := inventory.MovementRequest{
      ItemID:   "item-123",
      Type:     inventory.MovementIn,
      Quantity: decimal.NewFromInt(10),
      UnitCost: inventory.Cost(100),
      ActionBy: "warehouse@acme",
  }
  tx, err := ledger.RecordMovement(ctx, req)

SEE ALSO:
  - ledger.go: Validation and atomic apply
  - cost.go: Weighted-average cost recomputation
  - store.go: Persistence interfaces
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type TransactionID string

// =============================================================================
// MOVEMENT TYPE - Closed enum of exactly four values
// =============================================================================

type MovementType string

const (
	MovementIn         MovementType = "IN"         // Stock receipt at a price
	MovementOut        MovementType = "OUT"        // Consumption, stock check enforced
	MovementAdjustment MovementType = "ADJUSTMENT" // Manual correction (increase-only channel)
	MovementTransfer   MovementType = "TRANSFER"   // Outflow leg of an inter-item transfer
)

// ParseMovementType converts an external string into a MovementType,
// rejecting anything outside the closed enum.
func ParseMovementType(s string) (MovementType, error) {
	switch MovementType(s) {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer:
		return MovementType(s), nil
	}
	return "", &InvalidRequestError{Field: "type", Message: "unknown movement type: " + s}
}

// IsValid reports whether t is one of the four known movement types.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer:
		return true
	}
	return false
}

// =============================================================================
// ITEM - Current mutable state of an inventory item
// =============================================================================

// Item holds an inventory item's identity, descriptive attributes, and
// the two fields the ledger owns: QuantityOnHand and UnitCost.
//
// INVARIANT: QuantityOnHand >= 0 at all times. The ledger enforces this
// before any commit; the stores never see a delta that would violate it.
type Item struct {
	ID   ItemID
	Code string // immutable once assigned
	Name string
	Unit string // unit of measure, e.g. "pcs", "kg"

	QuantityOnHand decimal.Decimal
	UnitCost       *decimal.Decimal // weighted average; nil until first costed receipt

	// Stock thresholds, outside the ledger's concern but carried for
	// the catalog surface.
	MinStock decimal.Decimal
	MaxStock decimal.Decimal

	CreatedAt time.Time
}

// =============================================================================
// TRANSACTION - Immutable record of one movement leg
// =============================================================================

// Transaction is an append-only ledger entry. Quantity is always
// positive; direction is implied by Type, never encoded as a sign.
//
// A TRANSFER produces exactly two transactions: the source leg (type
// TRANSFER) and the destination leg (type IN), each pointing at the
// other via RelatedTransactionID. Every other type produces exactly
// one transaction with no related id.
type Transaction struct {
	ID       TransactionID
	ItemID   ItemID
	Type     MovementType
	Quantity decimal.Decimal
	UnitCost *decimal.Decimal

	Reference string
	Notes     string
	ActionBy  string

	RelatedTransactionID TransactionID

	TransactionDate time.Time
	CreatedAt       time.Time
}

// =============================================================================
// MOVEMENT REQUEST - Input to the ledger
// =============================================================================

// MovementRequest describes a single movement to apply. Callers submit
// exactly one request per movement; a TRANSFER also names the
// destination item.
type MovementRequest struct {
	ItemID   ItemID
	Type     MovementType
	Quantity decimal.Decimal
	UnitCost *decimal.Decimal

	Reference string
	Notes     string
	ActionBy  string

	// DestinationItemID is required for TRANSFER and must differ from
	// ItemID. Ignored for every other type.
	DestinationItemID ItemID

	// TransactionDate defaults to the time of apply when zero.
	TransactionDate time.Time
}

// Cost wraps a float into an optional unit cost. Convenience for
// callers and tests; production callers parse decimals directly.
func Cost(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

// CostFromDecimal returns a pointer to d.
func CostFromDecimal(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// MustParseDecimal parses s, returning zero on failure.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
