// Package abiregistry resolves each contract's Starknet class ABI into a
// selector-indexed schema table the event decoder can consume without
// re-parsing JSON on every event (component C3).
package abiregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/pkg/apierrors"
)

// ClassFetcher fetches the raw ABI JSON for a contract's declared class, as
// of a given block. Implemented by internal/rpcclient.Client.
type ClassFetcher interface {
	GetClassAbi(ctx context.Context, contractAddress addr.Address, blockNumber uint64) ([]byte, error)
}

// Registry is a process-wide, per-contract ABI cache. Resolution happens
// once per contract and is reused for every subsequent event, mirroring the
// registered-parsers-by-address shape of a typical chain-indexer parser
// registry, generalized from per-address custom parsers to ABI-driven ones.
type Registry struct {
	mu       sync.RWMutex
	resolved map[addr.Address]*ContractABI
	fetcher  ClassFetcher
}

// New builds a Registry that resolves cache misses through fetcher.
func New(fetcher ClassFetcher) *Registry {
	return &Registry{
		resolved: make(map[addr.Address]*ContractABI),
		fetcher:  fetcher,
	}
}

// Get returns the resolved ABI for contractAddress, fetching and parsing it
// on first use. blockNumber pins the class lookup to the block the event
// being decoded was emitted at, since a contract's class can be upgraded.
func (r *Registry) Get(ctx context.Context, contractAddress addr.Address, blockNumber uint64) (*ContractABI, error) {
	r.mu.RLock()
	abi, ok := r.resolved[contractAddress]
	r.mu.RUnlock()
	if ok {
		return abi, nil
	}

	raw, err := r.fetcher.GetClassAbi(ctx, contractAddress, blockNumber)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.AbiUnavailable,
			fmt.Sprintf("fetching class abi for %s", contractAddress), err)
	}

	parsed, err := ParseABI(raw)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.AbiUnavailable,
			fmt.Sprintf("parsing class abi for %s", contractAddress), err)
	}

	r.mu.Lock()
	// Another goroutine may have resolved the same contract concurrently;
	// keep whichever result landed first so every caller observes the same
	// schema instance.
	if existing, ok := r.resolved[contractAddress]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.resolved[contractAddress] = parsed
	r.mu.Unlock()

	return parsed, nil
}

// Invalidate drops a contract's cached ABI, forcing the next Get to
// re-fetch. Used when a deployment's contract set changes or an operator
// forces a re-sync after a class upgrade.
func (r *Registry) Invalidate(contractAddress addr.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resolved, contractAddress)
}
