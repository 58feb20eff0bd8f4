package eventstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/eventstore"
)

func TestInstrumentedStoreDelegates(t *testing.T) {
	store := newTestStore(t)
	instrumented, err := eventstore.NewInstrumentedStore(store)
	require.NoError(t, err)

	ctx := context.Background()
	contract := addr.MustNormalize("0x1")
	require.NoError(t, instrumented.UpsertEvents(ctx, contract, nil, 5))

	cursor, ok, err := instrumented.Cursor(ctx, contract)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), cursor)

	conn, err := instrumented.Query(ctx, eventstore.Filter{}, eventstore.Pagination{}, eventstore.BlockNumberAsc)
	require.NoError(t, err)
	require.Zero(t, conn.TotalCount)
}
