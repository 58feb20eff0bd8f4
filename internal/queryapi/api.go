// Package queryapi is the query API contract (component C9): the four
// read/subscribe operations external callers use, independent of whatever
// transport or query language eventually sits in front of them.
package queryapi

import (
	"context"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/deploycatalog"
	"github.com/textileio/starknet-indexer/internal/eventstore"
	"github.com/textileio/starknet-indexer/internal/realtime"
)

// ChainHeadReader reports the chain's current block height, for sync_status.
type ChainHeadReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// API implements the four query_api operations over an event store, a
// chain-head reader, a deployment catalog, and a realtime fabric.
type API struct {
	store   eventstore.EventStore
	chain   ChainHeadReader
	catalog deploycatalog.Gateway
	fabric  *realtime.Fabric
}

// New builds an API wiring its four dependencies together.
func New(store eventstore.EventStore, chain ChainHeadReader, catalog deploycatalog.Gateway, fabric *realtime.Fabric) *API {
	return &API{store: store, chain: chain, catalog: catalog, fabric: fabric}
}

// Events answers the events(filter, pagination, order) operation.
func (a *API) Events(ctx context.Context, filter Filter, pagination eventstore.Pagination, order eventstore.Order) (eventstore.Connection, error) {
	storeFilter, empty, err := a.resolve(ctx, filter)
	if err != nil {
		return eventstore.Connection{}, err
	}
	if empty {
		return eventstore.Connection{}, nil
	}
	return a.store.Query(ctx, storeFilter, pagination, order)
}

// EventStats answers the event_stats(filter) operation.
func (a *API) EventStats(ctx context.Context, filter Filter) (EventStats, error) {
	storeFilter, empty, err := a.resolve(ctx, filter)
	if err != nil {
		return EventStats{}, err
	}
	if empty {
		return EventStats{ByEventType: map[string]int64{}}, nil
	}
	raw, err := a.store.EventStats(ctx, storeFilter)
	if err != nil {
		return EventStats{}, err
	}

	out := EventStats{Total: raw.EventCount, ByEventType: raw.EventTypeCounts}
	if raw.FirstBlock != nil && raw.LastBlock != nil {
		out.BlockRange = &BlockRange{Min: *raw.FirstBlock, Max: *raw.LastBlock}
	}
	if raw.FirstTimestamp != nil && raw.LastTimestamp != nil {
		out.TimeRange = &TimeRange{Min: *raw.FirstTimestamp, Max: *raw.LastTimestamp}
	}
	return out, nil
}

// SyncStatus answers the sync_status(contract_address?) operation. When
// contractAddress is nil every synced contract is reported.
func (a *API) SyncStatus(ctx context.Context, contractAddress *addr.Address) (SyncStatus, error) {
	latest, err := a.chain.LatestBlock(ctx)
	if err != nil {
		return SyncStatus{}, err
	}

	all, err := a.store.SyncStatus(ctx)
	if err != nil {
		return SyncStatus{}, err
	}

	out := SyncStatus{LatestChainBlock: latest}
	for _, c := range all {
		if contractAddress != nil && c.ContractAddress != *contractAddress {
			continue
		}
		out.PerContract = append(out.PerContract, contractSyncStatus(c, latest))
	}
	return out, nil
}

func contractSyncStatus(c eventstore.ContractSyncStatus, latest uint64) ContractSyncStatus {
	behind := uint64(0)
	if latest > c.LastSyncedBlock {
		behind = latest - c.LastSyncedBlock
	}
	pct := 100.0
	if latest > 0 {
		pct = float64(c.LastSyncedBlock) / float64(latest) * 100
		if pct > 100 {
			pct = 100
		}
	}
	return ContractSyncStatus{
		Address:         c.ContractAddress,
		LastSyncedBlock: c.LastSyncedBlock,
		BlocksBehind:    behind,
		Pct:             pct,
	}
}

// SubscribeEvents answers the subscribe_events(filter) operation.
func (a *API) SubscribeEvents(ctx context.Context, filter Filter) (*realtime.Subscription, error) {
	contracts, err := a.scopedContracts(ctx, filter)
	if err != nil {
		return nil, err
	}
	return a.fabric.Subscribe(realtime.Filter{
		ContractAddresses: contracts,
		EventTypes:        filter.EventTypes,
		EventKeys:         filter.EventKeys,
		MatchNothing:      filter.DeploymentID != "" && len(contracts) == 0,
	}), nil
}

// resolve turns a Filter into an eventstore.Filter, applying deployment
// scoping when DeploymentID is set. empty is true when deployment scoping
// narrowed the contract set to nothing: a bare eventstore.Filter with a
// nil/empty ContractAddresses means "unconstrained", not "match nothing",
// so callers must short-circuit on empty rather than pass the filter through.
func (a *API) resolve(ctx context.Context, filter Filter) (sf eventstore.Filter, empty bool, err error) {
	contracts, err := a.scopedContracts(ctx, filter)
	if err != nil {
		return eventstore.Filter{}, false, err
	}
	if filter.DeploymentID != "" && len(contracts) == 0 {
		return eventstore.Filter{}, true, nil
	}
	return eventstore.Filter{
		ContractAddresses: contracts,
		EventTypes:        filter.EventTypes,
		EventKeys:         filter.EventKeys,
		FromBlock:         filter.FromBlock,
		ToBlock:           filter.ToBlock,
		FromTimestamp:     filter.FromTimestamp,
		ToTimestamp:       filter.ToTimestamp,
		TransactionHash:   filter.TransactionHash,
	}, false, nil
}

// scopedContracts resolves filter's effective contract set, intersecting
// with the named deployment's contracts when DeploymentID is set. An empty
// intersection is returned as-is, never as an error.
func (a *API) scopedContracts(ctx context.Context, filter Filter) ([]addr.Address, error) {
	if filter.DeploymentID == "" {
		return filter.ContractAddresses, nil
	}
	deployment, err := a.catalog.GetDeployment(ctx, filter.DeploymentID)
	if err != nil {
		return nil, err
	}
	return deploycatalog.IntersectContracts(deployment, filter.ContractAddresses), nil
}
