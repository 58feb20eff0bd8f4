package eventstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/internal/eventstore"
)

func sampleEvent(t *testing.T, block uint64, logIndex uint32, eventType string, keys []string) domain.IndexedEvent {
	t.Helper()
	txHash := "0x" + eventType
	return domain.IndexedEvent{
		ID:              domain.EventID(txHash, logIndex),
		ContractAddress: addr.MustNormalize("0x1"),
		EventType:       eventType,
		BlockNumber:     block,
		TransactionHash: txHash,
		LogIndex:        logIndex,
		Timestamp:       time.Unix(int64(1000+block), 0).UTC(),
		DecodedData:     map[string]interface{}{"value": "100"},
		DecodedFields:   []string{"value"},
		RawKeys:         keys,
		RawData:         []string{"0x64"},
	}
}

func TestUpsertEventsAdvancesCursorAtomically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	contract := addr.MustNormalize("0x1")

	events := []domain.IndexedEvent{sampleEvent(t, 10, 0, "Transfer", []string{"0xabc"})}
	require.NoError(t, store.UpsertEvents(ctx, contract, events, 10))

	cursor, ok, err := store.Cursor(ctx, contract)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), cursor)

	conn, err := store.Query(ctx, eventstore.Filter{}, eventstore.Pagination{}, eventstore.BlockNumberAsc)
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	require.EqualValues(t, 1, conn.TotalCount)
	require.Equal(t, "Transfer", conn.Edges[0].Node.EventType)
}

func TestUpsertEventsIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	contract := addr.MustNormalize("0x1")

	evt := sampleEvent(t, 10, 0, "Transfer", []string{"0xabc"})
	require.NoError(t, store.UpsertEvents(ctx, contract, []domain.IndexedEvent{evt}, 10))
	require.NoError(t, store.UpsertEvents(ctx, contract, []domain.IndexedEvent{evt}, 10))

	conn, err := store.Query(ctx, eventstore.Filter{}, eventstore.Pagination{}, eventstore.BlockNumberAsc)
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
}

func TestCursorAdvanceNeverMovesBackwards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	contract := addr.MustNormalize("0x1")

	require.NoError(t, store.UpsertEvents(ctx, contract, nil, 50))
	require.NoError(t, store.UpsertEvents(ctx, contract, nil, 20))

	cursor, ok, err := store.Cursor(ctx, contract)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(50), cursor)
}

func TestQueryPaginatesWithCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	contract := addr.MustNormalize("0x1")

	var events []domain.IndexedEvent
	for i := uint64(0); i < 5; i++ {
		events = append(events, sampleEvent(t, i, uint32(i), "Transfer", []string{"0xabc"}))
	}
	require.NoError(t, store.UpsertEvents(ctx, contract, events, 4))

	page1, err := store.Query(ctx, eventstore.Filter{}, eventstore.Pagination{First: 2}, eventstore.BlockNumberAsc)
	require.NoError(t, err)
	require.Len(t, page1.Edges, 2)
	require.True(t, page1.PageInfo.HasNext)
	require.Equal(t, uint64(0), page1.Edges[0].Node.BlockNumber)
	require.Equal(t, uint64(1), page1.Edges[1].Node.BlockNumber)
	require.EqualValues(t, 5, page1.TotalCount)

	page2, err := store.Query(ctx, eventstore.Filter{}, eventstore.Pagination{First: 2, After: page1.PageInfo.EndCursor}, eventstore.BlockNumberAsc)
	require.NoError(t, err)
	require.Len(t, page2.Edges, 2)
	require.Equal(t, uint64(2), page2.Edges[0].Node.BlockNumber)
	require.Equal(t, uint64(3), page2.Edges[1].Node.BlockNumber)

	page3, err := store.Query(ctx, eventstore.Filter{}, eventstore.Pagination{First: 2, After: page2.PageInfo.EndCursor}, eventstore.BlockNumberAsc)
	require.NoError(t, err)
	require.Len(t, page3.Edges, 1)
	require.False(t, page3.PageInfo.HasNext)
	require.Equal(t, uint64(4), page3.Edges[0].Node.BlockNumber)
}

func TestQueryDescendingOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	contract := addr.MustNormalize("0x1")

	var events []domain.IndexedEvent
	for i := uint64(0); i < 3; i++ {
		events = append(events, sampleEvent(t, i, uint32(i), "Transfer", nil))
	}
	require.NoError(t, store.UpsertEvents(ctx, contract, events, 2))

	conn, err := store.Query(ctx, eventstore.Filter{}, eventstore.Pagination{}, eventstore.BlockNumberDesc)
	require.NoError(t, err)
	require.Len(t, conn.Edges, 3)
	require.Equal(t, uint64(2), conn.Edges[0].Node.BlockNumber)
	require.Equal(t, uint64(0), conn.Edges[2].Node.BlockNumber)
}

func TestQueryFiltersByEventKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	contract := addr.MustNormalize("0x1")

	events := []domain.IndexedEvent{
		sampleEvent(t, 1, 0, "Transfer", []string{"0xabc"}),
		sampleEvent(t, 2, 0, "Approval", []string{"0xdef"}),
	}
	require.NoError(t, store.UpsertEvents(ctx, contract, events, 2))

	conn, err := store.Query(ctx, eventstore.Filter{EventKeys: []string{"0xdef"}}, eventstore.Pagination{}, eventstore.BlockNumberAsc)
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	require.Equal(t, "Approval", conn.Edges[0].Node.EventType)
}

func TestQueryFiltersByEventType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	contract := addr.MustNormalize("0x1")

	events := []domain.IndexedEvent{
		sampleEvent(t, 1, 0, "Transfer", nil),
		sampleEvent(t, 2, 0, "Approval", nil),
	}
	require.NoError(t, store.UpsertEvents(ctx, contract, events, 2))

	conn, err := store.Query(ctx, eventstore.Filter{EventTypes: []string{"Approval"}}, eventstore.Pagination{}, eventstore.BlockNumberAsc)
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	require.Equal(t, "Approval", conn.Edges[0].Node.EventType)
}

func TestEventStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	contract := addr.MustNormalize("0x1")

	events := []domain.IndexedEvent{
		sampleEvent(t, 1, 0, "Transfer", nil),
		sampleEvent(t, 2, 1, "Transfer", nil),
		sampleEvent(t, 3, 0, "Approval", nil),
	}
	require.NoError(t, store.UpsertEvents(ctx, contract, events, 3))

	stats, err := store.EventStats(ctx, eventstore.Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.EventCount)
	require.EqualValues(t, 2, stats.EventTypeCounts["Transfer"])
	require.EqualValues(t, 1, stats.EventTypeCounts["Approval"])
	require.NotNil(t, stats.FirstBlock)
	require.NotNil(t, stats.LastBlock)
	require.Equal(t, uint64(1), *stats.FirstBlock)
	require.Equal(t, uint64(3), *stats.LastBlock)
}

func TestSyncStatusListsEveryContract(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEvents(ctx, addr.MustNormalize("0x1"), nil, 10))
	require.NoError(t, store.UpsertEvents(ctx, addr.MustNormalize("0x2"), nil, 20))

	statuses, err := store.SyncStatus(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
}

func TestCursorUnknownContract(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Cursor(ctx, addr.MustNormalize("0x99"))
	require.NoError(t, err)
	require.False(t, ok)
}
