package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testItem(id string, qty float64, cost *decimal.Decimal) inventory.Item {
	return inventory.Item{
		ID:             inventory.ItemID(id),
		Code:           "code-" + id,
		Name:           "Item " + id,
		Unit:           "pcs",
		QuantityOnHand: decimal.NewFromFloat(qty),
		UnitCost:       cost,
		CreatedAt:      time.Now().UTC(),
	}
}

func testTransaction(id, itemID string, mType inventory.MovementType, createdAt time.Time) inventory.Transaction {
	return inventory.Transaction{
		ID:              inventory.TransactionID(id),
		ItemID:          inventory.ItemID(itemID),
		Type:            mType,
		Quantity:        decimal.NewFromInt(1),
		ActionBy:        "tester",
		TransactionDate: createdAt,
		CreatedAt:       createdAt,
	}
}

// =============================================================================
// ITEM STATE
// =============================================================================

func TestStore_SaveAndGetItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := testItem("item-1", 12.5, inventory.Cost(3.75))
	require.NoError(t, store.SaveItem(ctx, item))

	got, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, item.Code, got.Code)
	assert.True(t, got.QuantityOnHand.Equal(decimal.NewFromFloat(12.5)))
	require.NotNil(t, got.UnitCost)
	assert.True(t, got.UnitCost.Equal(decimal.NewFromFloat(3.75)))
}

func TestStore_GetItem_NilCostSurvivesRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 0, nil)))

	got, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Nil(t, got.UnitCost, "no cost basis until first costed receipt")
}

func TestStore_GetItem_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetItem(context.Background(), "ghost")
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
}

func TestStore_GetItemByCode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 5, nil)))

	got, err := store.GetItemByCode(ctx, "code-item-1")
	require.NoError(t, err)
	assert.Equal(t, inventory.ItemID("item-1"), got.ID)

	_, err = store.GetItemByCode(ctx, "nope")
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
}

func TestStore_SaveItem_DuplicateCode_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testItem("item-1", 0, nil)
	require.NoError(t, store.SaveItem(ctx, first))

	second := testItem("item-2", 0, nil)
	second.Code = first.Code
	err := store.SaveItem(ctx, second)
	assert.ErrorIs(t, err, inventory.ErrDuplicateCode)
}

func TestStore_ListItems_OrderedByCode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("b", 0, nil)))
	require.NoError(t, store.SaveItem(ctx, testItem("a", 0, nil)))

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "code-a", items[0].Code)
	assert.Equal(t, "code-b", items[1].Code)
}

func TestStore_ApplyDelta_UpdatesQuantityAndCost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 10, inventory.Cost(4))))

	newCost := decimal.NewFromInt(6)
	updated, err := store.ApplyDelta(ctx, "item-1", inventory.Delta{
		Quantity:    decimal.NewFromInt(5),
		NewUnitCost: &newCost,
	})
	require.NoError(t, err)
	assert.True(t, updated.QuantityOnHand.Equal(decimal.NewFromInt(15)))
	assert.True(t, updated.UnitCost.Equal(newCost))

	// Nil cost leaves the stored cost alone.
	updated, err = store.ApplyDelta(ctx, "item-1", inventory.Delta{Quantity: decimal.NewFromInt(-3)})
	require.NoError(t, err)
	assert.True(t, updated.QuantityOnHand.Equal(decimal.NewFromInt(12)))
	assert.True(t, updated.UnitCost.Equal(newCost))
}

func TestStore_ApplyDelta_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ApplyDelta(context.Background(), "ghost", inventory.Delta{Quantity: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
}

func TestStore_ApplyDelta_NegativeResultRefused(t *testing.T) {
	// The ledger validates first, so this only fires when a concurrent
	// writer got in between. The guarded write refuses the update and
	// the caller retries.

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 2, nil)))

	_, err := store.ApplyDelta(ctx, "item-1", inventory.Delta{Quantity: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, inventory.ErrConflict)

	got, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, got.QuantityOnHand.Equal(decimal.NewFromInt(2)))
}

// =============================================================================
// TRANSACTION LOG
// =============================================================================

func TestStore_AppendAndGetTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 0, nil)))

	now := time.Now().UTC().Truncate(time.Second)
	tx := testTransaction("tx-1", "item-1", inventory.MovementIn, now)
	tx.UnitCost = inventory.Cost(9.99)
	tx.Reference = "PO-42"
	tx.Notes = "first receipt"
	require.NoError(t, store.AppendTransaction(ctx, tx))

	got, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementIn, got.Type)
	assert.Equal(t, "PO-42", got.Reference)
	assert.Equal(t, "first receipt", got.Notes)
	assert.Equal(t, "tester", got.ActionBy)
	assert.Empty(t, got.RelatedTransactionID)
	require.NotNil(t, got.UnitCost)
	assert.True(t, got.UnitCost.Equal(decimal.NewFromFloat(9.99)))
	assert.True(t, got.TransactionDate.Equal(now))
}

func TestStore_GetTransaction_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTransaction(context.Background(), "ghost")
	assert.ErrorIs(t, err, inventory.ErrTransactionNotFound)
}

func TestStore_ListTransactions_NewestFirstWithFilterAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 0, nil)))
	require.NoError(t, store.SaveItem(ctx, testItem("item-2", 0, nil)))

	base := time.Now().UTC()
	require.NoError(t, store.AppendTransaction(ctx, testTransaction("tx-1", "item-1", inventory.MovementIn, base)))
	require.NoError(t, store.AppendTransaction(ctx, testTransaction("tx-2", "item-1", inventory.MovementOut, base.Add(time.Second))))
	require.NoError(t, store.AppendTransaction(ctx, testTransaction("tx-3", "item-1", inventory.MovementIn, base.Add(2*time.Second))))
	require.NoError(t, store.AppendTransaction(ctx, testTransaction("tx-4", "item-2", inventory.MovementIn, base.Add(3*time.Second))))

	// Newest first, scoped to the item
	txs, err := store.ListTransactions(ctx, "item-1", inventory.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, inventory.TransactionID("tx-3"), txs[0].ID)
	assert.Equal(t, inventory.TransactionID("tx-1"), txs[2].ID)

	// Type filter
	ins, err := store.ListTransactions(ctx, "item-1", inventory.HistoryFilter{Type: inventory.MovementIn})
	require.NoError(t, err)
	require.Len(t, ins, 2)

	// Paging
	page, err := store.ListTransactions(ctx, "item-1", inventory.HistoryFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, inventory.TransactionID("tx-2"), page[0].ID)

	// Offset without limit
	rest, err := store.ListTransactions(ctx, "item-1", inventory.HistoryFilter{Offset: 1})
	require.NoError(t, err)
	require.Len(t, rest, 2)

	// Counts ignore paging
	n, err := store.CountTransactions(ctx, "item-1", inventory.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.CountTransactions(ctx, "item-1", inventory.HistoryFilter{Type: inventory.MovementOut})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ListTransactions_OrderAcrossWholeSecondBoundary(t *testing.T) {
	// Timestamps are TEXT columns compared lexicographically, so a
	// whole-second timestamp must not sort as newer than one with a
	// fractional part in the same second.

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 0, nil)))

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.AppendTransaction(ctx, testTransaction("tx-early", "item-1", inventory.MovementIn, base)))
	require.NoError(t, store.AppendTransaction(ctx, testTransaction("tx-late", "item-1", inventory.MovementIn, base.Add(500*time.Millisecond))))

	txs, err := store.ListTransactions(ctx, "item-1", inventory.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, inventory.TransactionID("tx-late"), txs[0].ID)
	assert.Equal(t, inventory.TransactionID("tx-early"), txs[1].ID)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 5, nil)))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s inventory.Store) error {
		if err := s.AppendTransaction(ctx, testTransaction("tx-1", "item-1", inventory.MovementIn, time.Now().UTC())); err != nil {
			return err
		}
		if _, err := s.ApplyDelta(ctx, "item-1", inventory.Delta{Quantity: decimal.NewFromInt(1)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetTransaction(ctx, "tx-1")
	assert.ErrorIs(t, err, inventory.ErrTransactionNotFound, "insert rolled back")

	item, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, item.QuantityOnHand.Equal(decimal.NewFromInt(5)), "delta rolled back")
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, testItem("item-1", 5, nil)))

	err := store.WithTx(ctx, func(s inventory.Store) error {
		if err := s.AppendTransaction(ctx, testTransaction("tx-1", "item-1", inventory.MovementIn, time.Now().UTC())); err != nil {
			return err
		}
		_, err := s.ApplyDelta(ctx, "item-1", inventory.Delta{Quantity: decimal.NewFromInt(1)})
		return err
	})
	require.NoError(t, err)

	_, err = store.GetTransaction(ctx, "tx-1")
	assert.NoError(t, err)

	item, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, item.QuantityOnHand.Equal(decimal.NewFromInt(6)))
}

// =============================================================================
// LEDGER OVER SQLITE - end to end through the real store
// =============================================================================

func TestLedgerOverSQLite_TransferScenario(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ledger := inventory.NewLedger(store)

	a := testItem("A", 20, inventory.Cost(5))
	b := testItem("B", 0, nil)
	require.NoError(t, store.SaveItem(ctx, a))
	require.NoError(t, store.SaveItem(ctx, b))

	sourceLeg, err := ledger.RecordMovement(ctx, inventory.MovementRequest{
		ItemID:            "A",
		Type:              inventory.MovementTransfer,
		Quantity:          decimal.NewFromInt(10),
		UnitCost:          inventory.Cost(5),
		ActionBy:          "tester",
		DestinationItemID: "B",
	})
	require.NoError(t, err)

	gotA, err := store.GetItem(ctx, "A")
	require.NoError(t, err)
	gotB, err := store.GetItem(ctx, "B")
	require.NoError(t, err)

	assert.True(t, gotA.QuantityOnHand.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, gotA.UnitCost)
	assert.True(t, gotA.UnitCost.Equal(decimal.NewFromInt(5)))
	assert.True(t, gotB.QuantityOnHand.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, gotB.UnitCost)
	assert.True(t, gotB.UnitCost.Equal(decimal.NewFromInt(5)))

	destLeg, err := store.GetTransaction(ctx, sourceLeg.RelatedTransactionID)
	require.NoError(t, err)
	assert.Equal(t, sourceLeg.ID, destLeg.RelatedTransactionID)
	assert.Equal(t, inventory.MovementIn, destLeg.Type)
	assert.Equal(t, inventory.ItemID("B"), destLeg.ItemID)
}

func TestLedgerOverSQLite_InsufficientStockLeavesNoTrace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ledger := inventory.NewLedger(store)

	require.NoError(t, store.SaveItem(ctx, testItem("A", 3, nil)))

	_, err := ledger.RecordMovement(ctx, inventory.MovementRequest{
		ItemID:   "A",
		Type:     inventory.MovementOut,
		Quantity: decimal.NewFromInt(9),
		ActionBy: "tester",
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	n, err := store.CountTransactions(ctx, "A", inventory.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
