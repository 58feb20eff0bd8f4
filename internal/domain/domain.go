// Package domain holds the core entities shared across the indexer: contract
// configuration, sync cursors, raw and decoded events, ABI schemas, and
// deployment views. See spec §3 for the authoritative definitions.
package domain

import (
	"time"

	"github.com/textileio/starknet-indexer/internal/addr"
)

// ContractConfig describes one contract to sync. Immutable for the life of a
// sync session.
type ContractConfig struct {
	Address        addr.Address
	StartBlock     *uint64
	EventTypeAllow map[string]struct{} // nil means no filter
	EventKeyAllow  map[string]struct{} // canonical 0x keys; nil means no filter
	MaxRetries     int
	ChunkSize      uint64
	SyncInterval   time.Duration
	BatchMode      bool // skip the inter-chunk pause: fewer, larger commits
}

// AllowsEventType reports whether an event of the given type passes this
// config's event-type allow-list, or whether no such list is configured.
func (c ContractConfig) AllowsEventType(eventType string) bool {
	if len(c.EventTypeAllow) == 0 {
		return true
	}
	_, ok := c.EventTypeAllow[eventType]
	return ok
}

// AllowsAnyKey reports whether any of rawKeys appears in the key allow-list,
// or whether there's no key filter configured at all. EventKeyAllow is
// keyed by canonical 0x-hex form, and node-sourced rawKeys aren't always
// zero-padded the same way, so each key is normalized before the lookup;
// a key that fails to parse as a felt (not every key is an address-shaped
// value) falls back to a raw, un-normalized comparison.
func (c ContractConfig) AllowsAnyKey(rawKeys []string) bool {
	if len(c.EventKeyAllow) == 0 {
		return true
	}
	for _, k := range rawKeys {
		lookup := k
		if normalized, err := addr.Normalize(k); err == nil {
			lookup = normalized.String()
		}
		if _, ok := c.EventKeyAllow[lookup]; ok {
			return true
		}
	}
	return false
}

// RawEvent is the ephemeral representation of a log as returned by the node.
type RawEvent struct {
	ContractAddress    addr.Address
	Keys               []string // 0x-hex
	Data               []string // 0x-hex
	BlockNumber        uint64
	TransactionHash    string // 0x-hex
	LogIndexInTxn      uint32
}

// IndexedEvent is the durable, decoded record of a single on-chain event.
type IndexedEvent struct {
	ID              string // canonical "transaction_hash:log_index"
	ContractAddress addr.Address
	EventType       string // ABI event name, "Unknown" if no ABI match
	BlockNumber     uint64
	TransactionHash string
	LogIndex        uint32
	Timestamp       time.Time
	DecodedData     map[string]interface{} // field order kept in DecodedFields
	DecodedFields   []string                // field name order, mirrors the ABI schema
	RawKeys         []string
	RawData         []string
}

// EventID builds the canonical IndexedEvent.ID from a transaction hash and log index.
func EventID(txHash string, logIndex uint32) string {
	return txHash + ":" + itoa(logIndex)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// AbiField describes a single field of an ABI event.
type AbiField struct {
	Name   string
	Type   string
	IsKey  bool
}

// AbiEventSchema is a parsed ABI event definition.
type AbiEventSchema struct {
	Name   string
	Fields []AbiField
}

// DeploymentStatus is the lifecycle state of a deployment as reported by the catalog.
type DeploymentStatus string

const (
	// DeploymentActive means the deployment's contracts should be actively synced.
	DeploymentActive DeploymentStatus = "active"
	// DeploymentPaused means the deployment exists but isn't actively synced.
	DeploymentPaused DeploymentStatus = "paused"
)

// Deployment is a read-only view of one deployment's contract set.
type Deployment struct {
	ID        string
	Status    DeploymentStatus
	Contracts map[addr.Address]struct{}
}
