// Package store provides an in-memory Store implementation (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/stock-ledger/inventory"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory is an in-memory inventory.TxStore. A single mutex serializes
// units of work, which gives the same isolation the sqlite store gets
// from its single writer.
type Memory struct {
	mu           sync.RWMutex
	items        map[inventory.ItemID]inventory.Item
	codes        map[string]inventory.ItemID
	transactions []inventory.Transaction
	byID         map[inventory.TransactionID]int
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[inventory.ItemID]inventory.Item),
		codes: make(map[string]inventory.ItemID),
		byID:  make(map[inventory.TransactionID]int),
	}
}

// =============================================================================
// ITEM STATE
// =============================================================================

func (m *Memory) GetItem(_ context.Context, id inventory.ItemID) (*inventory.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItemLocked(id)
}

func (m *Memory) getItemLocked(id inventory.ItemID) (*inventory.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	out := item
	return &out, nil
}

func (m *Memory) GetItemByCode(_ context.Context, code string) (*inventory.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[code]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return m.getItemLocked(id)
}

func (m *Memory) ListItems(_ context.Context) ([]inventory.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]inventory.Item, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	sortItemsByCode(items)
	return items, nil
}

func (m *Memory) SaveItem(_ context.Context, item inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveItemLocked(item)
}

func (m *Memory) saveItemLocked(item inventory.Item) error {
	if existing, ok := m.codes[item.Code]; ok && existing != item.ID {
		return inventory.ErrDuplicateCode
	}
	m.items[item.ID] = item
	m.codes[item.Code] = item.ID
	return nil
}

func (m *Memory) ApplyDelta(_ context.Context, id inventory.ItemID, delta inventory.Delta) (*inventory.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDeltaLocked(id, delta)
}

func (m *Memory) applyDeltaLocked(id inventory.ItemID, delta inventory.Delta) (*inventory.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	item.QuantityOnHand = item.QuantityOnHand.Add(delta.Quantity)
	if delta.NewUnitCost != nil {
		cost := *delta.NewUnitCost
		item.UnitCost = &cost
	}
	m.items[id] = item
	out := item
	return &out, nil
}

// =============================================================================
// TRANSACTION LOG (append-only)
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, tx inventory.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx inventory.Transaction) error {
	m.byID[tx.ID] = len(m.transactions)
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransactionLocked(id)
}

func (m *Memory) getTransactionLocked(id inventory.TransactionID) (*inventory.Transaction, error) {
	i, ok := m.byID[id]
	if !ok {
		return nil, inventory.ErrTransactionNotFound
	}
	out := m.transactions[i]
	return &out, nil
}

func (m *Memory) ListTransactions(_ context.Context, itemID inventory.ItemID, filter inventory.HistoryFilter) ([]inventory.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.matchLocked(itemID, filter.Type)

	// Newest first: the slice is append-ordered, so walk it backwards.
	reverse(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (m *Memory) CountTransactions(_ context.Context, itemID inventory.ItemID, filter inventory.HistoryFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matchLocked(itemID, filter.Type)), nil
}

func (m *Memory) matchLocked(itemID inventory.ItemID, mType inventory.MovementType) []inventory.Transaction {
	var matched []inventory.Transaction
	for _, tx := range m.transactions {
		if tx.ItemID != itemID {
			continue
		}
		if mType != "" && tx.Type != mType {
			continue
		}
		matched = append(matched, tx)
	}
	return matched
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with snapshot/rollback units of work.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a unit of work, simulated with a snapshot
// taken under the store mutex and restored if fn fails. Holding the
// mutex for the whole unit serializes concurrent movements.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	itemsCopy := make(map[inventory.ItemID]inventory.Item, len(tm.items))
	for k, v := range tm.items {
		itemsCopy[k] = v
	}
	codesCopy := make(map[string]inventory.ItemID, len(tm.codes))
	for k, v := range tm.codes {
		codesCopy[k] = v
	}
	txsCopy := append([]inventory.Transaction{}, tm.transactions...)
	byIDCopy := make(map[inventory.TransactionID]int, len(tm.byID))
	for k, v := range tm.byID {
		byIDCopy[k] = v
	}
	return memorySnapshot{items: itemsCopy, codes: codesCopy, transactions: txsCopy, byID: byIDCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.items = s.items
	tm.codes = s.codes
	tm.transactions = s.transactions
	tm.byID = s.byID
}

type memorySnapshot struct {
	items        map[inventory.ItemID]inventory.Item
	codes        map[string]inventory.ItemID
	transactions []inventory.Transaction
	byID         map[inventory.TransactionID]int
}

// txMemoryView bypasses the parent mutex: WithTx already holds it.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetItem(_ context.Context, id inventory.ItemID) (*inventory.Item, error) {
	return tv.parent.getItemLocked(id)
}

func (tv *txMemoryView) GetItemByCode(_ context.Context, code string) (*inventory.Item, error) {
	id, ok := tv.parent.codes[code]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return tv.parent.getItemLocked(id)
}

func (tv *txMemoryView) ListItems(ctx context.Context) ([]inventory.Item, error) {
	items := make([]inventory.Item, 0, len(tv.parent.items))
	for _, item := range tv.parent.items {
		items = append(items, item)
	}
	sortItemsByCode(items)
	return items, nil
}

func (tv *txMemoryView) SaveItem(_ context.Context, item inventory.Item) error {
	return tv.parent.saveItemLocked(item)
}

func (tv *txMemoryView) ApplyDelta(_ context.Context, id inventory.ItemID, delta inventory.Delta) (*inventory.Item, error) {
	return tv.parent.applyDeltaLocked(id, delta)
}

func (tv *txMemoryView) AppendTransaction(_ context.Context, tx inventory.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) GetTransaction(_ context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	return tv.parent.getTransactionLocked(id)
}

func (tv *txMemoryView) ListTransactions(ctx context.Context, itemID inventory.ItemID, filter inventory.HistoryFilter) ([]inventory.Transaction, error) {
	matched := tv.parent.matchLocked(itemID, filter.Type)
	reverse(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (tv *txMemoryView) CountTransactions(_ context.Context, itemID inventory.ItemID, filter inventory.HistoryFilter) (int, error) {
	return len(tv.parent.matchLocked(itemID, filter.Type)), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func sortItemsByCode(items []inventory.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
}

func reverse(txs []inventory.Transaction) {
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
}
