package eventstore

import (
	"context"
	"time"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
)

// Order is one of the four sort orders Query supports. Ties within the
// primary sort key always break by id ascending, for a total stable order.
type Order string

const (
	BlockNumberAsc  Order = "BlockNumberAsc"
	BlockNumberDesc Order = "BlockNumberDesc" // default
	TimestampAsc    Order = "TimestampAsc"
	TimestampDesc   Order = "TimestampDesc"
)

// Filter is Query's filter grammar. Every field is optional; an omitted
// field imposes no constraint. Addresses must already be normalized.
type Filter struct {
	ContractAddresses []addr.Address
	EventTypes        []string
	EventKeys         []string
	FromBlock         *uint64
	ToBlock           *uint64
	FromTimestamp     *time.Time
	ToTimestamp       *time.Time
	TransactionHash   string
}

// DefaultPageSize and MaxPageSize bound Pagination.First.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// Pagination is a relay-style cursor page request.
type Pagination struct {
	First int    // page size; 0 means DefaultPageSize
	After string // opaque cursor; "" means start at the beginning
}

// PageInfo describes a Connection's position in the overall result set.
type PageInfo struct {
	HasNext     bool
	HasPrevious bool
	StartCursor string
	EndCursor   string
}

// Edge pairs one decoded event with the opaque cursor pointing at it.
type Edge struct {
	Node   domain.IndexedEvent
	Cursor string
}

// Connection is the relay-style page returned by Query.
type Connection struct {
	Edges      []Edge
	PageInfo   PageInfo
	TotalCount int64
}

// Stats summarizes the events matched by a Filter, for event_stats.
type Stats struct {
	EventCount      int64
	EventTypeCounts map[string]int64
	FirstBlock      *uint64
	LastBlock       *uint64
	FirstTimestamp  *time.Time
	LastTimestamp   *time.Time
}

// ContractSyncStatus reports one contract's current sync position.
type ContractSyncStatus struct {
	ContractAddress addr.Address
	LastSyncedBlock uint64
	UpdatedAt       time.Time
}

// EventStore is the store's interface, satisfied by *Store and by
// *InstrumentedStore. The sync engine and the query API depend on this
// rather than on the concrete type.
type EventStore interface {
	UpsertEvents(ctx context.Context, contractAddress addr.Address, events []domain.IndexedEvent, toBlock uint64) error
	Cursor(ctx context.Context, contractAddress addr.Address) (uint64, bool, error)
	SyncStatus(ctx context.Context) ([]ContractSyncStatus, error)
	Query(ctx context.Context, filter Filter, pagination Pagination, order Order) (Connection, error)
	EventStats(ctx context.Context, filter Filter) (Stats, error)
	Close() error
}
