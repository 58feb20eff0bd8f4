package syncengine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/textileio/starknet-indexer/internal/abiregistry"
	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/internal/eventstore"
	"github.com/textileio/starknet-indexer/internal/realtime"
	"github.com/textileio/starknet-indexer/internal/syncengine"
)

const transferABI = `[
  {
    "type": "event",
    "name": "contracts::token::Transfer",
    "kind": "struct",
    "members": [
      {"name": "from", "type": "core::starknet::ContractAddress", "kind": "key"},
      {"name": "to", "type": "core::starknet::ContractAddress", "kind": "key"},
      {"name": "value", "type": "core::integer::u256", "kind": "data"}
    ]
  }
]`

func mustAddr(t *testing.T, s string) addr.Address {
	t.Helper()
	a, err := addr.Normalize(s)
	require.NoError(t, err)
	return a
}

// fakeChain serves one page of raw events per block range, entirely in
// memory, and reports a fixed latest block.
type fakeChain struct {
	mu     sync.Mutex
	latest uint64
	events []domain.RawEvent // all events across the whole chain, any block
}

func (f *fakeChain) LatestBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeChain) IterateEvents(ctx context.Context, contractAddress addr.Address, fromBlock, toBlock uint64, chunkSize int, each func([]domain.RawEvent) error) error {
	var page []domain.RawEvent
	for _, e := range f.events {
		if e.ContractAddress == contractAddress && e.BlockNumber >= fromBlock && e.BlockNumber <= toBlock {
			page = append(page, e)
		}
	}
	if len(page) == 0 {
		return nil
	}
	return each(page)
}

func (f *fakeChain) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	return time.Unix(int64(blockNumber), 0).UTC(), nil
}

type fakeRegistry struct {
	abi *abiregistry.ContractABI
}

func (r *fakeRegistry) Get(context.Context, addr.Address, uint64) (*abiregistry.ContractABI, error) {
	return r.abi, nil
}

// fakeStore is a minimal in-memory eventstore.EventStore good enough to
// observe what the engine persisted.
type fakeStore struct {
	mu      sync.Mutex
	events  []domain.IndexedEvent
	cursors map[addr.Address]uint64
	failN   int // fail the next N UpsertEvents calls
}

func newFakeStore() *fakeStore {
	return &fakeStore{cursors: make(map[addr.Address]uint64)}
}

func (s *fakeStore) UpsertEvents(ctx context.Context, contractAddress addr.Address, events []domain.IndexedEvent, toBlock uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("injected persistence failure")
	}
	s.events = append(s.events, events...)
	if cur, ok := s.cursors[contractAddress]; !ok || toBlock > cur {
		s.cursors[contractAddress] = toBlock
	}
	return nil
}

func (s *fakeStore) Cursor(ctx context.Context, contractAddress addr.Address) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cursors[contractAddress]
	return v, ok, nil
}

func (s *fakeStore) SyncStatus(context.Context) ([]eventstore.ContractSyncStatus, error) {
	return nil, nil
}

func (s *fakeStore) Query(context.Context, eventstore.Filter, eventstore.Pagination, eventstore.Order) (eventstore.Connection, error) {
	return eventstore.Connection{}, nil
}

func (s *fakeStore) EventStats(context.Context, eventstore.Filter) (eventstore.Stats, error) {
	return eventstore.Stats{}, nil
}

func (s *fakeStore) Close() error { return nil }

var _ eventstore.EventStore = (*fakeStore)(nil)

func TestContractWorkerBackfillsAndAdvancesCursor(t *testing.T) {
	contract := mustAddr(t, "0x1")
	abi, err := abiregistry.ParseABI([]byte(transferABI))
	require.NoError(t, err)
	selector := abi.SortedSelectors()[0]

	chain := &fakeChain{
		latest: 2,
		events: []domain.RawEvent{
			{
				ContractAddress: contract,
				Keys:            []string{selector, mustAddr(t, "0x2").String(), mustAddr(t, "0x3").String()},
				Data:            []string{"0x64", "0x0"},
				BlockNumber:     1,
				TransactionHash: "0xabc",
				LogIndexInTxn:   0,
			},
		},
	}
	store := newFakeStore()
	fabric := realtime.New(8)
	sub := fabric.Subscribe(realtime.Filter{})

	engine := syncengine.New(chain, &fakeRegistry{abi: abi}, store, fabric, zerolog.Nop())

	cfg := domain.ContractConfig{Address: contract, ChunkSize: 10, SyncInterval: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() { _ = engine.Run(ctx, []domain.ContractConfig{cfg}) }()

	select {
	case evt := <-sub.Events:
		require.Equal(t, "Transfer", evt.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}

	require.Eventually(t, func() bool {
		cur, ok, _ := store.Cursor(context.Background(), contract)
		return ok && cur == 2
	}, time.Second, 10*time.Millisecond)
}

func TestContractWorkerAppliesEventTypeAllowFilter(t *testing.T) {
	contract := mustAddr(t, "0x1")
	abi, err := abiregistry.ParseABI([]byte(transferABI))
	require.NoError(t, err)
	selector := abi.SortedSelectors()[0]

	chain := &fakeChain{
		latest: 1,
		events: []domain.RawEvent{
			{
				ContractAddress: contract,
				Keys:            []string{selector, mustAddr(t, "0x2").String(), mustAddr(t, "0x3").String()},
				Data:            []string{"0x64", "0x0"},
				BlockNumber:     1,
				TransactionHash: "0xabc",
			},
		},
	}
	store := newFakeStore()
	fabric := realtime.New(8)

	engine := syncengine.New(chain, &fakeRegistry{abi: abi}, store, fabric, zerolog.Nop())

	cfg := domain.ContractConfig{
		Address:        contract,
		ChunkSize:      10,
		SyncInterval:   time.Hour,
		EventTypeAllow: map[string]struct{}{"Approval": {}}, // Transfer is not allowed
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = engine.Run(ctx, []domain.ContractConfig{cfg})

	cur, ok, _ := store.Cursor(context.Background(), contract)
	require.True(t, ok)
	require.Equal(t, uint64(1), cur)
	require.Empty(t, store.events, "event filtered out post-decode should never be persisted")
}

func TestContractWorkerRetriesPersistenceFailureWithoutSkippingTheChunk(t *testing.T) {
	contract := mustAddr(t, "0x1")
	abi, err := abiregistry.ParseABI([]byte(transferABI))
	require.NoError(t, err)
	selector := abi.SortedSelectors()[0]

	chain := &fakeChain{
		latest: 1,
		events: []domain.RawEvent{
			{
				ContractAddress: contract,
				Keys:            []string{selector, mustAddr(t, "0x2").String(), mustAddr(t, "0x3").String()},
				Data:            []string{"0x64", "0x0"},
				BlockNumber:     1,
				TransactionHash: "0xabc",
			},
		},
	}
	store := newFakeStore()
	store.failN = 1 // first persist attempt fails, second succeeds
	fabric := realtime.New(8)

	engine := syncengine.New(chain, &fakeRegistry{abi: abi}, store, fabric, zerolog.Nop())
	cfg := domain.ContractConfig{Address: contract, ChunkSize: 10, SyncInterval: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = engine.Run(ctx, []domain.ContractConfig{cfg})

	cur, ok, _ := store.Cursor(context.Background(), contract)
	require.True(t, ok)
	require.Equal(t, uint64(1), cur)
	require.Len(t, store.events, 1, "the retried chunk eventually persists exactly once")
}
