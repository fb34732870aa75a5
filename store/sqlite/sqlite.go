/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements inventory.TxStore using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences
  (and row-level locking instead of the single-writer model).

APPEND-ONLY ENFORCEMENT:
  The transactions table sees INSERTs only. No UPDATE, no DELETE.
  Corrections happen by recording new movements.

KEY TABLES:
  items:        Current quantity on hand and weighted-average unit cost
  transactions: Immutable ledger of all movements

GUARDED UPDATES:
  ApplyDelta refuses to write a negative quantity, so the non-negativity
  invariant holds even under an interleaving the ledger's validation
  read missed. The refusal maps onto inventory.ErrConflict, which the
  ledger retries.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

BUSY HANDLING:
  SQLITE_BUSY / "database is locked" surfaces as inventory.ErrConflict,
  the retry-safe infrastructure error: the enclosing unit of work rolled
  back, so nothing was committed.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := inventory.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/inventory"
)

// Store implements inventory.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Items (current state: quantity on hand + weighted-average cost)
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		quantity_on_hand TEXT NOT NULL DEFAULT '0',
		unit_cost TEXT,
		min_stock TEXT NOT NULL DEFAULT '0',
		max_stock TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		CHECK (CAST(quantity_on_hand AS REAL) >= 0)
	);

	-- Transactions (append-only ledger, one row per movement leg)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id),
		tx_type TEXT NOT NULL CHECK (tx_type IN ('IN','OUT','ADJUSTMENT','TRANSFER')),
		quantity TEXT NOT NULL,
		unit_cost TEXT,
		reference TEXT,
		notes TEXT,
		action_by TEXT NOT NULL DEFAULT '',
		related_transaction_id TEXT,
		transaction_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- History listing (hot path): newest first per item
	CREATE INDEX IF NOT EXISTS idx_transactions_item_created
		ON transactions(item_id, created_at DESC);

	-- Type-filtered history
	CREATE INDEX IF NOT EXISTS idx_transactions_item_type
		ON transactions(item_id, tx_type);

	-- Pair resolution
	CREATE INDEX IF NOT EXISTS idx_transactions_related
		ON transactions(related_transaction_id) WHERE related_transaction_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// timeFormat is RFC 3339 with zero-padded nanoseconds. Timestamps are
// TEXT columns sorted lexicographically, and RFC3339Nano trims trailing
// zeros, which misorders rows at whole-second boundaries ('Z' compares
// greater than '.'). The fixed width keeps ORDER BY chronological.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// querier covers both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ITEM STATE
// =============================================================================

// GetItem returns the item or inventory.ErrItemNotFound.
func (s *Store) GetItem(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q querier, id inventory.ItemID) (*inventory.Item, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, code, name, unit, quantity_on_hand, unit_cost, min_stock, max_stock, created_at
		FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// GetItemByCode returns the item with the given code or inventory.ErrItemNotFound.
func (s *Store) GetItemByCode(ctx context.Context, code string) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItemByCode(ctx, s.db, code)
}

func getItemByCode(ctx context.Context, q querier, code string) (*inventory.Item, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, code, name, unit, quantity_on_hand, unit_cost, min_stock, max_stock, created_at
		FROM items WHERE code = ?`, code)
	return scanItem(row)
}

// ListItems returns all items ordered by code.
func (s *Store) ListItems(ctx context.Context) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listItems(ctx, s.db)
}

func listItems(ctx context.Context, q querier) ([]inventory.Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, code, name, unit, quantity_on_hand, unit_cost, min_stock, max_stock, created_at
		FROM items ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// SaveItem creates an item.
func (s *Store) SaveItem(ctx context.Context, item inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveItem(ctx, s.db, item)
}

func saveItem(ctx context.Context, q querier, item inventory.Item) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO items (id, code, name, unit, quantity_on_hand, unit_cost, min_stock, max_stock, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Code,
		item.Name,
		item.Unit,
		item.QuantityOnHand.String(),
		nullDecimal(item.UnitCost),
		item.MinStock.String(),
		item.MaxStock.String(),
		createdAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return inventory.ErrDuplicateCode
		}
		return mapStoreError("failed to save item", err)
	}
	return nil
}

// ApplyDelta adjusts the item's quantity and optionally replaces its cost.
func (s *Store) ApplyDelta(ctx context.Context, id inventory.ItemID, delta inventory.Delta) (*inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyDelta(ctx, s.db, id, delta)
}

func applyDelta(ctx context.Context, q querier, id inventory.ItemID, delta inventory.Delta) (*inventory.Item, error) {
	item, err := getItem(ctx, q, id)
	if err != nil {
		return nil, err
	}

	newQty := item.QuantityOnHand.Add(delta.Quantity)

	// Guarded write: refuse to go negative even if a concurrent writer
	// got between the ledger's validation read and this update.
	if newQty.IsNegative() {
		return nil, inventory.ErrConflict
	}

	if delta.NewUnitCost != nil {
		_, err = q.ExecContext(ctx, `
			UPDATE items SET quantity_on_hand = ?, unit_cost = ? WHERE id = ?`,
			newQty.String(), delta.NewUnitCost.String(), id)
	} else {
		_, err = q.ExecContext(ctx, `
			UPDATE items SET quantity_on_hand = ? WHERE id = ?`,
			newQty.String(), id)
	}
	if err != nil {
		return nil, mapStoreError("failed to apply delta", err)
	}

	item.QuantityOnHand = newQty
	if delta.NewUnitCost != nil {
		cost := *delta.NewUnitCost
		item.UnitCost = &cost
	}
	return item, nil
}

// =============================================================================
// TRANSACTION LOG (append-only)
// =============================================================================

// AppendTransaction adds a transaction to the ledger.
func (s *Store) AppendTransaction(ctx context.Context, tx inventory.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, q querier, tx inventory.Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, item_id, tx_type, quantity, unit_cost, reference, notes, action_by,
		 related_transaction_id, transaction_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.ItemID,
		tx.Type,
		tx.Quantity.String(),
		nullDecimal(tx.UnitCost),
		nullString(tx.Reference),
		nullString(tx.Notes),
		tx.ActionBy,
		nullString(string(tx.RelatedTransactionID)),
		tx.TransactionDate.UTC().Format(timeFormat),
		tx.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return mapStoreError("failed to append transaction", err)
	}
	return nil
}

// GetTransaction returns a transaction or inventory.ErrTransactionNotFound.
func (s *Store) GetTransaction(ctx context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, q querier, id inventory.TransactionID) (*inventory.Transaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, item_id, tx_type, quantity, unit_cost, reference, notes, action_by,
		       related_transaction_id, transaction_date, created_at
		FROM transactions WHERE id = ?`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrTransactionNotFound
	}
	return tx, err
}

// ListTransactions returns an item's transactions, newest first.
func (s *Store) ListTransactions(ctx context.Context, itemID inventory.ItemID, filter inventory.HistoryFilter) ([]inventory.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, itemID, filter)
}

func listTransactions(ctx context.Context, q querier, itemID inventory.ItemID, filter inventory.HistoryFilter) ([]inventory.Transaction, error) {
	query := `
		SELECT id, item_id, tx_type, quantity, unit_cost, reference, notes, action_by,
		       related_transaction_id, transaction_date, created_at
		FROM transactions
		WHERE item_id = ?`
	args := []any{itemID}

	if filter.Type != "" {
		query += " AND tx_type = ?"
		args = append(args, filter.Type)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unbounded.
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapStoreError("failed to list transactions", err)
	}
	defer rows.Close()

	var txs []inventory.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// CountTransactions returns how many transactions match the filter.
func (s *Store) CountTransactions(ctx context.Context, itemID inventory.ItemID, filter inventory.HistoryFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countTransactions(ctx, s.db, itemID, filter)
}

func countTransactions(ctx context.Context, q querier, itemID inventory.ItemID, filter inventory.HistoryFilter) (int, error) {
	query := "SELECT COUNT(*) FROM transactions WHERE item_id = ?"
	args := []any{itemID}
	if filter.Type != "" {
		query += " AND tx_type = ?"
		args = append(args, filter.Type)
	}

	var count int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, mapStoreError("failed to count transactions", err)
	}
	return count, nil
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. All writes
// made through the Store fn receives commit together or roll back
// together.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapStoreError("failed to begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapStoreError("failed to commit transaction", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetItem(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	return getItem(ctx, ts.tx, id)
}

func (ts *txStore) GetItemByCode(ctx context.Context, code string) (*inventory.Item, error) {
	return getItemByCode(ctx, ts.tx, code)
}

func (ts *txStore) ListItems(ctx context.Context) ([]inventory.Item, error) {
	return listItems(ctx, ts.tx)
}

func (ts *txStore) SaveItem(ctx context.Context, item inventory.Item) error {
	return saveItem(ctx, ts.tx, item)
}

func (ts *txStore) ApplyDelta(ctx context.Context, id inventory.ItemID, delta inventory.Delta) (*inventory.Item, error) {
	return applyDelta(ctx, ts.tx, id, delta)
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx inventory.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) GetTransaction(ctx context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}

func (ts *txStore) ListTransactions(ctx context.Context, itemID inventory.ItemID, filter inventory.HistoryFilter) ([]inventory.Transaction, error) {
	return listTransactions(ctx, ts.tx, itemID, filter)
}

func (ts *txStore) CountTransactions(ctx context.Context, itemID inventory.ItemID, filter inventory.HistoryFilter) (int, error) {
	return countTransactions(ctx, ts.tx, itemID, filter)
}

// =============================================================================
// SCANNING & HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*inventory.Item, error) {
	var (
		item      inventory.Item
		qty       string
		unitCost  sql.NullString
		minStock  string
		maxStock  string
		createdAt string
	)

	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Unit,
		&qty, &unitCost, &minStock, &maxStock, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	item.QuantityOnHand = inventory.MustParseDecimal(qty)
	item.MinStock = inventory.MustParseDecimal(minStock)
	item.MaxStock = inventory.MustParseDecimal(maxStock)
	if unitCost.Valid {
		cost := inventory.MustParseDecimal(unitCost.String)
		item.UnitCost = &cost
	}
	item.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return &item, nil
}

func scanTransaction(row rowScanner) (*inventory.Transaction, error) {
	var (
		tx              inventory.Transaction
		qty             string
		unitCost        sql.NullString
		reference       sql.NullString
		notes           sql.NullString
		relatedID       sql.NullString
		transactionDate string
		createdAt       string
	)

	err := row.Scan(&tx.ID, &tx.ItemID, &tx.Type, &qty, &unitCost,
		&reference, &notes, &tx.ActionBy, &relatedID, &transactionDate, &createdAt)
	if err != nil {
		return nil, err
	}

	tx.Quantity = inventory.MustParseDecimal(qty)
	if unitCost.Valid {
		cost := inventory.MustParseDecimal(unitCost.String)
		tx.UnitCost = &cost
	}
	tx.Reference = reference.String
	tx.Notes = notes.String
	tx.RelatedTransactionID = inventory.TransactionID(relatedID.String)
	tx.TransactionDate, err = time.Parse(timeFormat, transactionDate)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	tx.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return &tx, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

func mapStoreError(msg string, err error) error {
	if isBusyError(err) {
		return fmt.Errorf("%s: %w", msg, inventory.ErrConflict)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
