package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/inventory"
)

func seedHistory(t *testing.T) (*inventory.History, inventory.TransactionID) {
	t.Helper()
	ledger, mem := newTestLedger(t)
	ctx := context.Background()

	seedItem(t, mem, "item-1", 0, nil)
	seedItem(t, mem, "item-2", 0, nil)

	in := movement("item-1", inventory.MovementIn, 10)
	in.UnitCost = inventory.Cost(5)
	_, err := ledger.RecordMovement(ctx, in)
	require.NoError(t, err)

	_, err = ledger.RecordMovement(ctx, movement("item-1", inventory.MovementOut, 2))
	require.NoError(t, err)

	_, err = ledger.RecordMovement(ctx, movement("item-1", inventory.MovementAdjustment, 1))
	require.NoError(t, err)

	transfer := movement("item-1", inventory.MovementTransfer, 3)
	transfer.DestinationItemID = "item-2"
	sourceLeg, err := ledger.RecordMovement(ctx, transfer)
	require.NoError(t, err)

	return inventory.NewHistory(mem), sourceLeg.ID
}

func TestHistory_ForItem_NewestFirst(t *testing.T) {
	history, _ := seedHistory(t)

	page, err := history.ForItem(context.Background(), "item-1", inventory.HistoryFilter{})
	require.NoError(t, err)

	require.Len(t, page.Transactions, 4)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, inventory.MovementTransfer, page.Transactions[0].Type)
	assert.Equal(t, inventory.MovementAdjustment, page.Transactions[1].Type)
	assert.Equal(t, inventory.MovementOut, page.Transactions[2].Type)
	assert.Equal(t, inventory.MovementIn, page.Transactions[3].Type)
}

func TestHistory_ForItem_TypeFilter(t *testing.T) {
	history, _ := seedHistory(t)

	page, err := history.ForItem(context.Background(), "item-1", inventory.HistoryFilter{Type: inventory.MovementOut})
	require.NoError(t, err)

	require.Len(t, page.Transactions, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, inventory.MovementOut, page.Transactions[0].Type)
}

func TestHistory_ForItem_UnknownTypeFilter_Rejected(t *testing.T) {
	history, _ := seedHistory(t)

	_, err := history.ForItem(context.Background(), "item-1", inventory.HistoryFilter{Type: "bogus"})
	assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
}

func TestHistory_ForItem_Pagination(t *testing.T) {
	history, _ := seedHistory(t)
	ctx := context.Background()

	page, err := history.ForItem(ctx, "item-1", inventory.HistoryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, 4, page.Total, "total counts all matches, not just the page")

	page2, err := history.ForItem(ctx, "item-1", inventory.HistoryFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2.Transactions, 2)
	assert.NotEqual(t, page.Transactions[0].ID, page2.Transactions[0].ID)

	empty, err := history.ForItem(ctx, "item-1", inventory.HistoryFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty.Transactions)
}

func TestHistory_ForItem_MissingItem_NotFound(t *testing.T) {
	history, _ := seedHistory(t)

	_, err := history.ForItem(context.Background(), "ghost", inventory.HistoryFilter{})
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
}

func TestHistory_Related_ResolvesBothDirections(t *testing.T) {
	history, sourceID := seedHistory(t)
	ctx := context.Background()

	destLeg, err := history.Related(ctx, sourceID)
	require.NoError(t, err)
	require.NotNil(t, destLeg)
	assert.Equal(t, inventory.ItemID("item-2"), destLeg.ItemID)

	// Following the pair back returns the source leg.
	back, err := history.Related(ctx, destLeg.ID)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.Equal(t, sourceID, back.ID)
}

func TestHistory_Related_NilForUnpairedTransaction(t *testing.T) {
	history, _ := seedHistory(t)
	ctx := context.Background()

	page, err := history.ForItem(ctx, "item-1", inventory.HistoryFilter{Type: inventory.MovementIn})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)

	related, err := history.Related(ctx, page.Transactions[0].ID)
	require.NoError(t, err)
	assert.Nil(t, related)
}

func TestHistory_Get_MissingTransaction_NotFound(t *testing.T) {
	history, _ := seedHistory(t)

	_, err := history.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, inventory.ErrTransactionNotFound)
}
