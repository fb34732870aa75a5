/*
ledger.go - Movement validation and atomic apply

PURPOSE:
  The Ledger is the only component that mutates item state. It validates
  a movement request against current item state, computes the quantity
  and cost effect, and persists the transaction record(s) plus the item
  update(s) as one all-or-nothing unit of work.

CRITICAL INVARIANTS:
  1. NON-NEGATIVITY: QuantityOnHand >= 0, always. An OUT or TRANSFER
     that would violate this is rejected with zero side effects.
  2. APPEND-ONLY: Transaction records are never edited or deleted.
  3. CONSERVATION: A transfer of q moves exactly q from source to
     destination; the sum across both items is unchanged.
  4. PAIRED SYMMETRY: A transfer's two legs point at each other via
     RelatedTransactionID.

VALIDATION ORDER:
  Static checks (type, quantity sign, transfer destination) run before
  any store access. Existence and stock checks run inside the store
  transaction so the read used to decide InsufficientStock is isolated
  from concurrent writers to the same item.

TRANSFER LEGS:
  Transaction ids are minted before insert, so both legs are written
  already linked inside the one unit of work. The source leg (type
  TRANSFER) is the primary record returned to the caller; the
  destination leg is an ordinary IN at the transferred quantity and the
  transfer's stated unit cost.

RETRY:
  Storage conflicts roll the whole unit back, so the ledger retries
  them a bounded number of times with backoff before surfacing
  ErrConflict. Validation errors are never retried.

SEE ALSO:
  - cost.go: Weighted-average recomputation rule
  - store.go: TxStore contract
  - history.go: Read-only query surface
*/
package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger validates and applies stock movements on top of a TxStore.
type Ledger struct {
	store TxStore

	maxAttempts int
	backoff     time.Duration

	now   func() time.Time
	newID func() TransactionID

	commitHooks []func(ids ...ItemID)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetry sets how many attempts a conflicted apply gets and the base
// backoff between them. Backoff doubles per attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(l *Ledger) {
		if attempts > 0 {
			l.maxAttempts = attempts
		}
		l.backoff = backoff
	}
}

// WithClock overrides the clock. Tests use this to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides transaction id minting.
func WithIDGenerator(gen func() TransactionID) Option {
	return func(l *Ledger) { l.newID = gen }
}

// WithCommitHook registers fn to run after a movement commits, with the
// ids of the items it touched. Read caches sitting in front of item
// queries invalidate here; the hook runs on every successful commit and
// never on rollback.
func WithCommitHook(fn func(ids ...ItemID)) Option {
	return func(l *Ledger) { l.commitHooks = append(l.commitHooks, fn) }
}

// NewLedger creates a Ledger backed by store.
func NewLedger(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		maxAttempts: 3,
		backoff:     25 * time.Millisecond,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() TransactionID { return TransactionID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// RECORD MOVEMENT - The public operation
// =============================================================================

// RecordMovement validates req, applies its effect atomically, and
// returns the primary transaction record (the source leg for
// transfers). On any error, no state was changed.
func (l *Ledger) RecordMovement(ctx context.Context, req MovementRequest) (*Transaction, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var primary *Transaction
	var lastErr error

	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, l.backoff<<(attempt-1)); err != nil {
				return nil, err
			}
		}

		lastErr = l.store.WithTx(ctx, func(s Store) error {
			tx, err := l.apply(ctx, s, req)
			if err != nil {
				return err
			}
			primary = tx
			return nil
		})
		if lastErr == nil {
			l.notifyCommit(req)
			return primary, nil
		}
		if !IsRetryable(lastErr) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (l *Ledger) notifyCommit(req MovementRequest) {
	ids := []ItemID{req.ItemID}
	if req.Type == MovementTransfer {
		ids = append(ids, req.DestinationItemID)
	}
	for _, hook := range l.commitHooks {
		hook(ids...)
	}
}

// =============================================================================
// VALIDATION - Static checks, no store access
// =============================================================================

func validateRequest(req MovementRequest) error {
	if !req.Type.IsValid() {
		return &InvalidRequestError{Field: "type", Message: "unknown movement type: " + string(req.Type)}
	}
	if req.ItemID == "" {
		return &InvalidRequestError{Field: "itemId", Message: "item id is required"}
	}
	if !req.Quantity.IsPositive() {
		return &InvalidRequestError{Field: "quantity", Message: "quantity must be positive"}
	}
	if req.UnitCost != nil && req.UnitCost.IsNegative() {
		return &InvalidRequestError{Field: "unitCost", Message: "unit cost must not be negative"}
	}
	if req.Type == MovementTransfer {
		if req.DestinationItemID == "" {
			return &InvalidRequestError{Field: "destinationItemId", Message: "transfer requires a destination item"}
		}
		if req.DestinationItemID == req.ItemID {
			return &InvalidRequestError{Field: "destinationItemId", Message: "cannot transfer an item to itself"}
		}
	}
	return nil
}

// =============================================================================
// ATOMIC APPLY - Runs inside the store transaction
// =============================================================================

func (l *Ledger) apply(ctx context.Context, s Store, req MovementRequest) (*Transaction, error) {
	source, err := s.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	if req.Type == MovementTransfer {
		return l.applyTransfer(ctx, s, req, source)
	}
	return l.applySingle(ctx, s, req, source)
}

// applySingle handles IN, OUT, and ADJUSTMENT: one record, one delta.
func (l *Ledger) applySingle(ctx context.Context, s Store, req MovementRequest, source *Item) (*Transaction, error) {
	delta := Delta{Quantity: req.Quantity}

	switch req.Type {
	case MovementIn:
		// Cost basis moves only when new stock enters at a price.
		if req.UnitCost != nil {
			delta.NewUnitCost = CostFromDecimal(
				WeightedAverageCost(source.QuantityOnHand, source.UnitCost, req.Quantity, *req.UnitCost))
		}
	case MovementAdjustment:
		// Increase-only correction channel. Decreases go through OUT,
		// and cost is never recomputed here.
	case MovementOut:
		if err := checkStock(source, req.Quantity); err != nil {
			return nil, err
		}
		delta.Quantity = req.Quantity.Neg()
	}

	record := l.buildTransaction(req, req.ItemID, req.Type, "")
	if err := s.AppendTransaction(ctx, record); err != nil {
		return nil, err
	}
	if _, err := s.ApplyDelta(ctx, req.ItemID, delta); err != nil {
		return nil, err
	}
	return &record, nil
}

// applyTransfer handles TRANSFER: two linked records, two deltas.
func (l *Ledger) applyTransfer(ctx context.Context, s Store, req MovementRequest, source *Item) (*Transaction, error) {
	dest, err := s.GetItem(ctx, req.DestinationItemID)
	if err != nil {
		return nil, err
	}
	if err := checkStock(source, req.Quantity); err != nil {
		return nil, err
	}

	sourceLeg := l.buildTransaction(req, req.ItemID, MovementTransfer, "")
	destLeg := l.buildTransaction(req, req.DestinationItemID, MovementIn, sourceLeg.ID)
	sourceLeg.RelatedTransactionID = destLeg.ID

	if err := s.AppendTransaction(ctx, sourceLeg); err != nil {
		return nil, err
	}
	if err := s.AppendTransaction(ctx, destLeg); err != nil {
		return nil, err
	}

	sourceDelta := Delta{Quantity: req.Quantity.Neg()}
	destDelta := Delta{Quantity: req.Quantity}
	if req.UnitCost != nil {
		// The destination receives an ordinary IN at the transfer's
		// stated cost; the source item's cost is untouched.
		destDelta.NewUnitCost = CostFromDecimal(
			WeightedAverageCost(dest.QuantityOnHand, dest.UnitCost, req.Quantity, *req.UnitCost))
	}

	// Apply in ascending item-id order so concurrent opposite-direction
	// transfers between the same pair never deadlock on row locks.
	updates := []struct {
		id    ItemID
		delta Delta
	}{
		{req.ItemID, sourceDelta},
		{req.DestinationItemID, destDelta},
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].id < updates[j].id })

	for _, u := range updates {
		if _, err := s.ApplyDelta(ctx, u.id, u.delta); err != nil {
			return nil, err
		}
	}
	return &sourceLeg, nil
}

func (l *Ledger) buildTransaction(req MovementRequest, itemID ItemID, mType MovementType, related TransactionID) Transaction {
	now := l.now()
	date := req.TransactionDate
	if date.IsZero() {
		date = now
	}
	return Transaction{
		ID:                   l.newID(),
		ItemID:               itemID,
		Type:                 mType,
		Quantity:             req.Quantity,
		UnitCost:             req.UnitCost,
		Reference:            req.Reference,
		Notes:                req.Notes,
		ActionBy:             req.ActionBy,
		RelatedTransactionID: related,
		TransactionDate:      date,
		CreatedAt:            now,
	}
}

func checkStock(item *Item, requested decimal.Decimal) error {
	if item.QuantityOnHand.LessThan(requested) {
		return &InsufficientStockError{
			ItemID:    item.ID,
			Available: item.QuantityOnHand,
			Requested: requested,
			Shortfall: requested.Sub(item.QuantityOnHand),
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
