/*
store.go - Persistence interfaces for items and transactions

PURPOSE:
  Defines the interface between the ledger and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   Item state + transaction persistence
  TxStore: Store plus WithTx for atomic multi-write units of work

APPEND-ONLY CONTRACT:
  Transactions are append-only: AppendTransaction is the only
  transaction write, and no update or delete methods exist.
  Corrections are made by recording new movements.

ITEM STATE:
  ApplyDelta is the single mutation point for an item's quantity and
  cost. The ledger validates before calling it, so implementations
  never receive a delta that would drive quantity negative — but a
  guarded write (reject on negative result) is a legitimate backstop
  against interleavings the validation read missed.

ATOMIC UNITS:
  WithTx wraps a movement's writes (one or two transaction records plus
  one or two ApplyDelta calls) into a single all-or-nothing unit. There
  is no legitimate reason to ever observe a transaction record whose
  item-side effect has not also been applied, or vice versa.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - inventory/store: In-memory for testing

SEE ALSO:
  - ledger.go: The only caller of ApplyDelta
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Item state and append-only transaction log
// =============================================================================

// Store handles persistence of item state and transactions.
// Transactions are APPEND-ONLY: no update, no delete.
type Store interface {
	// GetItem returns the item or ErrItemNotFound.
	GetItem(ctx context.Context, id ItemID) (*Item, error)

	// GetItemByCode returns the item with the given code or ErrItemNotFound.
	GetItemByCode(ctx context.Context, code string) (*Item, error)

	// ListItems returns all items ordered by code.
	ListItems(ctx context.Context) ([]Item, error)

	// SaveItem creates an item. Catalog-management surface; the ledger
	// itself never creates items. Returns ErrDuplicateCode if the code
	// is taken.
	SaveItem(ctx context.Context, item Item) error

	// ApplyDelta adds delta to the item's quantity on hand and, when
	// newUnitCost is non-nil, replaces its unit cost. Must only be
	// called from within a WithTx unit of work, after the ledger has
	// validated the result stays non-negative.
	ApplyDelta(ctx context.Context, id ItemID, delta Delta) (*Item, error)

	// AppendTransaction persists a transaction record. The only
	// transaction write operation.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns a transaction or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// ListTransactions returns an item's transactions, most recent
	// first, honoring the filter.
	ListTransactions(ctx context.Context, itemID ItemID, filter HistoryFilter) ([]Transaction, error)

	// CountTransactions returns how many transactions match the filter
	// (ignoring Limit/Offset), for pagination.
	CountTransactions(ctx context.Context, itemID ItemID, filter HistoryFilter) (int, error)
}

// Delta is the effect of one movement leg on one item.
type Delta struct {
	// Quantity is signed: positive for inflows, negative for outflows.
	Quantity decimal.Decimal

	// NewUnitCost, when non-nil, replaces the item's unit cost.
	// Nil leaves the cost untouched.
	NewUnitCost *decimal.Decimal
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic unit of work
// =============================================================================

// TxStore wraps Store with transaction support. The ledger requires a
// TxStore; a bare Store cannot provide the atomicity the movement
// apply depends on.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error,
	// every write made through the Store it received is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
