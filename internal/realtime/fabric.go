// Package realtime is the in-process event broadcaster (component C7): sync
// workers publish newly-persisted events, and subscribers receive a live
// filtered stream starting strictly after they subscribed.
package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
)

// DefaultBufferSize is a subscription's outbound queue capacity.
const DefaultBufferSize = 1024

// Filter selects which published events a subscription receives. An empty
// field imposes no constraint. Semantics mirror eventstore.Filter's matching
// fields.
type Filter struct {
	ContractAddresses []addr.Address
	EventTypes        []string
	EventKeys         []string

	// MatchNothing forces every event to be rejected. Used by callers that
	// scoped ContractAddresses down to an empty set (e.g. a deployment-scoped
	// subscription whose intersection is empty): an empty ContractAddresses
	// normally means "unconstrained", so this flag distinguishes the two.
	MatchNothing bool
}

func (f Filter) matches(evt domain.IndexedEvent) bool {
	if f.MatchNothing {
		return false
	}
	if len(f.ContractAddresses) > 0 {
		ok := false
		for _, a := range f.ContractAddresses {
			if a == evt.ContractAddress {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.EventTypes) > 0 {
		ok := false
		for _, t := range f.EventTypes {
			if t == evt.EventType {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.EventKeys) > 0 {
		ok := false
		for _, want := range f.EventKeys {
			for _, k := range evt.RawKeys {
				if k == want {
					ok = true
					break
				}
			}
			if ok {
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Subscription is a live, filtered stream of events. Events is closed (and
// Err set) when the subscription is terminated, either by Unsubscribe or by
// SubscriptionLagged overflow.
type Subscription struct {
	ID     string
	Events <-chan domain.IndexedEvent

	fabric *Fabric
	ch     chan domain.IndexedEvent
	filter Filter

	mu     sync.Mutex
	err    error
	closed bool
}

// Err returns the reason the subscription ended, if it has. Safe to call
// after Events closes.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe terminates the subscription and releases its buffer. Safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	s.fabric.remove(s.ID)
}

func (s *Subscription) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

// Fabric is the broadcaster: a registry of live subscriptions, each with its
// own bounded, non-blocking outbound queue.
type Fabric struct {
	bufferSize int

	mu   sync.RWMutex
	subs map[string]*Subscription
}

// New builds a Fabric whose subscriptions use bufferSize as their queue
// capacity (DefaultBufferSize if bufferSize <= 0).
func New(bufferSize int) *Fabric {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Fabric{
		bufferSize: bufferSize,
		subs:       make(map[string]*Subscription),
	}
}

// Subscribe registers a new subscription matching filter. The returned
// stream carries only events published after this call returns.
func (f *Fabric) Subscribe(filter Filter) *Subscription {
	ch := make(chan domain.IndexedEvent, f.bufferSize)
	sub := &Subscription{
		ID:     uuid.NewString(),
		Events: ch,
		fabric: f,
		ch:     ch,
		filter: filter,
	}

	f.mu.Lock()
	f.subs[sub.ID] = sub
	f.mu.Unlock()

	return sub
}

func (f *Fabric) remove(id string) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	if ok {
		delete(f.subs, id)
	}
	f.mu.Unlock()
	if ok {
		sub.terminate(nil)
	}
}

// Publish delivers evt to every matching live subscription. A subscription
// whose buffer is full is terminated with SubscriptionLagged rather than
// blocking the publisher; Publish itself never blocks.
func (f *Fabric) Publish(evt domain.IndexedEvent) {
	f.mu.RLock()
	targets := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.filter.matches(evt) {
			targets = append(targets, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- evt:
		default:
			// Drop it from the registry directly rather than via remove, which
			// would terminate it with a nil error before the lag is recorded.
			f.mu.Lock()
			delete(f.subs, sub.ID)
			f.mu.Unlock()
			sub.terminate(ErrSubscriptionLagged)
		}
	}
}

// SubscriptionCount reports how many subscriptions are currently live, for
// diagnostics.
func (f *Fabric) SubscriptionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
