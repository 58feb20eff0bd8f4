// Package syncengine is the sync engine (component C6): one ContractWorker
// per configured contract, each pulling events from the node, decoding them,
// persisting them durably, and publishing them to the realtime fabric.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/textileio/starknet-indexer/internal/abiregistry"
	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/decoder"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/internal/eventstore"
	"github.com/textileio/starknet-indexer/internal/realtime"
	"github.com/textileio/starknet-indexer/internal/rpcclient"
	"github.com/textileio/starknet-indexer/pkg/apierrors"
)

// staggerInterval is the per-worker start-up delay multiplier.
const staggerInterval = 2 * time.Second

// chunkPause is the pause between successive chunks within one worker.
const chunkPause = 500 * time.Millisecond

// ChainClient is the subset of rpcclient.Client a worker needs; satisfied by
// *rpcclient.Client, and narrow enough to fake in tests.
type ChainClient interface {
	LatestBlock(ctx context.Context) (uint64, error)
	IterateEvents(ctx context.Context, contractAddress addr.Address, fromBlock, toBlock uint64, chunkSize int, each func([]domain.RawEvent) error) error
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// ClassFetcher resolves a contract's ABI; satisfied by *abiregistry.Registry.
type ClassFetcher interface {
	Get(ctx context.Context, contractAddress addr.Address, blockNumber uint64) (*abiregistry.ContractABI, error)
}

// maxRetriesScoper is implemented by *rpcclient.Client. A worker uses it to
// apply its ContractConfig.MaxRetries override; a ChainClient that doesn't
// implement it (e.g. a test fake) is used unscoped.
type maxRetriesScoper interface {
	WithMaxRetries(n uint64) *rpcclient.Client
}

// Engine supervises one ContractWorker per ContractConfig.
type Engine struct {
	rpc      ChainClient
	registry ClassFetcher
	store    eventstore.EventStore
	fabric   *realtime.Fabric
	log      zerolog.Logger
}

// New builds an Engine wiring together the RPC client, ABI registry, event
// store, and realtime fabric that every worker shares.
func New(rpc ChainClient, registry ClassFetcher, store eventstore.EventStore, fabric *realtime.Fabric, log zerolog.Logger) *Engine {
	return &Engine{rpc: rpc, registry: registry, store: store, fabric: fabric, log: log.With().Str("component", "syncengine").Logger()}
}

// Run starts one worker per config and blocks until ctx is cancelled and
// every worker has returned. A worker's own terminal error (e.g. exhausted
// persistence retries) is logged and kept local to it — it never cancels
// ctx for the other workers, so one contract's failure can't take down a
// peer's sync progress. Run always returns nil.
func (e *Engine) Run(ctx context.Context, configs []domain.ContractConfig) error {
	var wg sync.WaitGroup
	for i, cfg := range configs {
		i, cfg := i, cfg
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := &contractWorker{
				engine: e,
				cfg:    cfg,
				log:    e.log.With().Str("contract", string(cfg.Address)).Logger(),
			}
			if err := w.run(ctx, i); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				w.log.Error().Err(err).Msg("worker stopped")
			}
		}()
	}
	wg.Wait()
	return nil
}

type contractWorker struct {
	engine *Engine
	cfg    domain.ContractConfig
	log    zerolog.Logger
}

// chain returns the ChainClient this worker uses for RPC calls, scoped to
// cfg.MaxRetries when the underlying client supports it.
func (w *contractWorker) chain() ChainClient {
	if w.cfg.MaxRetries <= 0 {
		return w.engine.rpc
	}
	scoper, ok := w.engine.rpc.(maxRetriesScoper)
	if !ok {
		return w.engine.rpc
	}
	return scoper.WithMaxRetries(uint64(w.cfg.MaxRetries))
}

func (w *contractWorker) run(ctx context.Context, index int) error {
	select {
	case <-time.After(time.Duration(index) * staggerInterval):
	case <-ctx.Done():
		return ctx.Err()
	}

	resume, err := w.resumePoint(ctx)
	if err != nil {
		return fmt.Errorf("computing resume point for %s: %w", w.cfg.Address, err)
	}

	if err := w.historicalPhase(ctx, resume); err != nil {
		return err
	}

	return w.tailPhase(ctx)
}

func (w *contractWorker) resumePoint(ctx context.Context) (uint64, error) {
	cursor, ok, err := w.engine.store.Cursor(ctx, w.cfg.Address)
	if err != nil {
		return 0, err
	}

	resume := uint64(0)
	if ok {
		resume = cursor + 1
	}
	if w.cfg.StartBlock != nil && *w.cfg.StartBlock > resume {
		resume = *w.cfg.StartBlock
	}
	return resume, nil
}

// historicalPhase runs chunked backfill from resume up to whatever the chain
// head was at the time each chunk's window is computed.
func (w *contractWorker) historicalPhase(ctx context.Context, resume uint64) error {
	for {
		latest, err := w.chain().LatestBlock(ctx)
		if err != nil {
			return fmt.Errorf("fetching latest block: %w", err)
		}
		if resume > latest {
			return nil
		}

		next, err := w.runChunks(ctx, resume, latest)
		if err != nil {
			return err
		}
		resume = next
	}
}

// tailPhase polls for new blocks every sync_interval once the worker has
// caught up to the chain head.
func (w *contractWorker) tailPhase(ctx context.Context) error {
	interval := w.cfg.SyncInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cursor, ok, err := w.engine.store.Cursor(ctx, w.cfg.Address)
			if err != nil {
				return fmt.Errorf("reading cursor: %w", err)
			}
			resume := uint64(0)
			if ok {
				resume = cursor + 1
			}

			latest, err := w.chain().LatestBlock(ctx)
			if err != nil {
				w.log.Warn().Err(err).Msg("fetching latest block")
				continue
			}
			if resume > latest {
				continue
			}
			if _, err := w.runChunks(ctx, resume, latest); err != nil {
				return err
			}
		}
	}
}

// runChunks processes [resume, latest] in ChunkSize windows and returns the
// next resume point (latest + 1).
func (w *contractWorker) runChunks(ctx context.Context, resume, latest uint64) (uint64, error) {
	chunkSize := w.cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = 2000
	}

	for resume <= latest {
		to := resume + chunkSize - 1
		if to > latest {
			to = latest
		}

		if err := w.processChunk(ctx, resume, to); err != nil {
			return resume, err
		}

		if !w.cfg.BatchMode {
			select {
			case <-time.After(chunkPause):
			case <-ctx.Done():
				return resume, ctx.Err()
			}
		}

		resume = to + 1
	}
	return resume, nil
}

// processChunk pulls, filters, decodes, and persists every event in
// [from, to], retrying the whole chunk on a persistence failure: the cursor
// only advances once the batch durably commits, so progress never skips a
// failed chunk.
func (w *contractWorker) processChunk(ctx context.Context, from, to uint64) error {
	abi, err := w.engine.registry.Get(ctx, w.cfg.Address, to)
	if err != nil {
		if !apierrors.Is(err, apierrors.AbiUnavailable) {
			return fmt.Errorf("resolving abi: %w", err)
		}
		w.log.Warn().Err(err).Msg("abi unavailable, decoding chunk as unknown event type")
		abi = nil
	}

	var batch []domain.IndexedEvent
	pull := func(page []domain.RawEvent) error {
		for _, raw := range page {
			if !w.cfg.AllowsAnyKey(raw.Keys) {
				continue
			}

			evt := decoder.Decode(ctx, raw, abi)
			if !w.cfg.AllowsEventType(evt.EventType) {
				continue
			}

			ts, err := w.chain().GetBlockTimestamp(ctx, raw.BlockNumber)
			if err != nil {
				return fmt.Errorf("resolving block timestamp: %w", err)
			}
			evt.Timestamp = ts

			batch = append(batch, evt)
		}
		return nil
	}

	chunkSize := int(w.cfg.ChunkSize)
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	if err := w.chain().IterateEvents(ctx, w.cfg.Address, from, to, chunkSize, pull); err != nil {
		return fmt.Errorf("iterating events: %w", err)
	}

	return w.persistWithRetry(ctx, batch, to)
}

func (w *contractWorker) persistWithRetry(ctx context.Context, batch []domain.IndexedEvent, to uint64) error {
	policy := persistRetryPolicy()
	eb := policy.backOff()

	for {
		err := w.engine.store.UpsertEvents(ctx, w.cfg.Address, batch, to)
		if err == nil {
			for _, evt := range batch {
				w.engine.fabric.Publish(evt)
			}
			return nil
		}

		wait := eb.NextBackOff()
		if wait == backoffStop {
			return fmt.Errorf("persisting batch for %s up to block %d: %w", w.cfg.Address, to, err)
		}

		w.log.Warn().Err(err).Uint64("to_block", to).Dur("retry_in", wait).Msg("persistence failure, retrying chunk")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
