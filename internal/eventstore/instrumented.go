package eventstore

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/pkg/metrics"
)

// InstrumentedStore wraps a Store with per-method call-count and latency
// metrics.
type InstrumentedStore struct {
	store            EventStore
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
}

var _ EventStore = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps store with call-count and latency metrics.
func NewInstrumentedStore(store EventStore) (*InstrumentedStore, error) {
	meter := global.MeterProvider().Meter("starknet_indexer")
	callCount, err := meter.Int64Counter("starknet_indexer.eventstore.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %w", err)
	}
	latencyHistogram, err := meter.Int64Histogram("starknet_indexer.eventstore.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %w", err)
	}

	return &InstrumentedStore{
		store:            store,
		callCount:        callCount,
		latencyHistogram: latencyHistogram,
	}, nil
}

func (s *InstrumentedStore) record(ctx context.Context, method string, err error, start time.Time) {
	attrs := append([]attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(method)},
		{Key: "success", Value: attribute.BoolValue(err == nil)},
	}, metrics.BaseAttrs...)
	s.callCount.Add(ctx, 1, attrs...)
	s.latencyHistogram.Record(ctx, time.Since(start).Milliseconds(), attrs...)
}

// UpsertEvents records call count and latency around Store.UpsertEvents.
func (s *InstrumentedStore) UpsertEvents(ctx context.Context, contractAddress addr.Address, events []domain.IndexedEvent, toBlock uint64) error {
	start := time.Now()
	err := s.store.UpsertEvents(ctx, contractAddress, events, toBlock)
	s.record(ctx, "UpsertEvents", err, start)
	return err
}

// Cursor records call count and latency around Store.Cursor.
func (s *InstrumentedStore) Cursor(ctx context.Context, contractAddress addr.Address) (uint64, bool, error) {
	start := time.Now()
	v, ok, err := s.store.Cursor(ctx, contractAddress)
	s.record(ctx, "Cursor", err, start)
	return v, ok, err
}

// SyncStatus records call count and latency around Store.SyncStatus.
func (s *InstrumentedStore) SyncStatus(ctx context.Context) ([]ContractSyncStatus, error) {
	start := time.Now()
	v, err := s.store.SyncStatus(ctx)
	s.record(ctx, "SyncStatus", err, start)
	return v, err
}

// Query records call count and latency around Store.Query.
func (s *InstrumentedStore) Query(ctx context.Context, filter Filter, pagination Pagination, order Order) (Connection, error) {
	start := time.Now()
	v, err := s.store.Query(ctx, filter, pagination, order)
	s.record(ctx, "Query", err, start)
	return v, err
}

// EventStats records call count and latency around Store.EventStats.
func (s *InstrumentedStore) EventStats(ctx context.Context, filter Filter) (Stats, error) {
	start := time.Now()
	v, err := s.store.EventStats(ctx, filter)
	s.record(ctx, "EventStats", err, start)
	return v, err
}

// Close closes the wrapped store.
func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}
