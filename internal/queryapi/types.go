package queryapi

import (
	"time"

	"github.com/textileio/starknet-indexer/internal/addr"
)

// Filter is query_api's filter grammar: every eventstore.Filter field, plus
// an optional deployment scope. When DeploymentID is set, the effective
// contract set is ContractAddresses intersected with that deployment's
// contracts (an empty ContractAddresses means "every contract in the
// deployment").
type Filter struct {
	ContractAddresses []addr.Address
	EventTypes        []string
	EventKeys         []string
	FromBlock         *uint64
	ToBlock           *uint64
	FromTimestamp     *time.Time
	ToTimestamp       *time.Time
	TransactionHash   string
	DeploymentID      string
}

// EventStats is event_stats's response shape.
type EventStats struct {
	Total       int64
	ByEventType map[string]int64
	BlockRange  *BlockRange
	TimeRange   *TimeRange
}

// BlockRange is an inclusive [Min, Max] block window.
type BlockRange struct {
	Min uint64
	Max uint64
}

// TimeRange is an inclusive [Min, Max] timestamp window.
type TimeRange struct {
	Min time.Time
	Max time.Time
}

// SyncStatus is sync_status's response shape.
type SyncStatus struct {
	LatestChainBlock uint64
	PerContract      []ContractSyncStatus
}

// ContractSyncStatus reports one contract's position relative to the chain head.
type ContractSyncStatus struct {
	Address         addr.Address
	LastSyncedBlock uint64
	BlocksBehind    uint64
	Pct             float64
}
