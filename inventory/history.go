/*
history.go - Read-only transaction history

PURPOSE:
  Retrieval of an item's transactions, paginated and optionally
  filtered by movement type, ordered most recent first. Not part of
  the mutation path; report and export collaborators consume this.

SEE ALSO:
  - store.go: ListTransactions/CountTransactions contract
*/
package inventory

import "context"

// HistoryFilter narrows and pages a transaction listing.
type HistoryFilter struct {
	// Type, when non-empty, restricts results to one movement type.
	Type MovementType

	// Limit caps the number of results. Zero means no cap.
	Limit int

	// Offset skips that many results from the newest end.
	Offset int
}

// HistoryPage is one page of an item's transaction history.
type HistoryPage struct {
	Transactions []Transaction
	Total        int // matching transactions across all pages
}

// History is the read-only query surface over a Store.
type History struct {
	store Store
}

// NewHistory creates a History backed by store.
func NewHistory(store Store) *History {
	return &History{store: store}
}

// ForItem returns one page of the item's transactions, newest first.
// Returns ErrItemNotFound if the item does not exist.
func (h *History) ForItem(ctx context.Context, itemID ItemID, filter HistoryFilter) (*HistoryPage, error) {
	if _, err := h.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, &InvalidRequestError{Field: "type", Message: "unknown movement type: " + string(filter.Type)}
	}

	txs, err := h.store.ListTransactions(ctx, itemID, filter)
	if err != nil {
		return nil, err
	}
	total, err := h.store.CountTransactions(ctx, itemID, filter)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{Transactions: txs, Total: total}, nil
}

// Get returns a single transaction by id.
func (h *History) Get(ctx context.Context, id TransactionID) (*Transaction, error) {
	return h.store.GetTransaction(ctx, id)
}

// Related resolves a transaction's paired leg. Returns (nil, nil) when
// the transaction has no related record (every type except transfer
// legs), and ErrTransactionNotFound if id itself does not exist.
func (h *History) Related(ctx context.Context, id TransactionID) (*Transaction, error) {
	tx, err := h.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.RelatedTransactionID == "" {
		return nil, nil
	}
	return h.store.GetTransaction(ctx, tx.RelatedTransactionID)
}
