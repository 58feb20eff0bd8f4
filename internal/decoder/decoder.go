// Package decoder implements the event decoder (component C4): given a raw
// on-chain event and a contract's resolved ABI, it resolves the event's
// name and typed schema and materializes its fields into JSON-ready values.
package decoder

import (
	"context"
	"sort"

	"github.com/textileio/starknet-indexer/internal/abiregistry"
	"github.com/textileio/starknet-indexer/internal/domain"
)

// UnknownEventType is the event_type recorded when no ABI candidate
// consumes the event's felts cleanly.
const UnknownEventType = "Unknown"

// candidateResult is one schema's decode attempt, kept only when it
// succeeded (both streams fully consumed).
type candidateResult struct {
	schema domain.AbiEventSchema
	fields *orderedObject
}

// Decode resolves raw's event type against abi and materializes its fields.
// It never returns an error: an event whose selector or shape matches
// nothing decodes to UnknownEventType with empty decoded data, per spec.
func Decode(_ context.Context, raw domain.RawEvent, abi *abiregistry.ContractABI) domain.IndexedEvent {
	evt := domain.IndexedEvent{
		ID:              domain.EventID(raw.TransactionHash, raw.LogIndexInTxn),
		ContractAddress: raw.ContractAddress,
		EventType:       UnknownEventType,
		BlockNumber:     raw.BlockNumber,
		TransactionHash: raw.TransactionHash,
		LogIndex:        raw.LogIndexInTxn,
		DecodedData:     map[string]interface{}{},
		RawKeys:         raw.Keys,
		RawData:         raw.Data,
	}

	if abi == nil || len(raw.Keys) == 0 {
		return evt
	}

	selector, err := abiregistry.CanonicalFelt(raw.Keys[0])
	if err != nil {
		return evt
	}

	candidates := abi.SelectorToSchemas[selector]
	if len(candidates) == 0 {
		return evt
	}

	var succeeded []candidateResult
	for _, schema := range candidates {
		fields, ok := tryDecode(schema, raw, abi)
		if ok {
			succeeded = append(succeeded, candidateResult{schema: schema, fields: fields})
		}
	}
	if len(succeeded) == 0 {
		return evt
	}

	best := pickBest(succeeded)
	evt.EventType = best.schema.Name
	evt.DecodedData = best.fields.asMap()
	evt.DecodedFields = make([]string, len(best.fields.keys))
	copy(evt.DecodedFields, best.fields.keys)
	return evt
}

// tryDecode attempts one schema against raw's key/data streams, succeeding
// only when both streams are fully consumed with no remainder.
func tryDecode(schema domain.AbiEventSchema, raw domain.RawEvent, abi *abiregistry.ContractABI) (*orderedObject, bool) {
	keysCur := newCursor(raw.Keys[1:])
	dataCur := newCursor(raw.Data)

	obj := newOrderedObject(len(schema.Fields))
	for _, f := range schema.Fields {
		node, ok := abi.FieldTypes[f.Type]
		if !ok {
			return nil, false
		}
		cur := dataCur
		if f.IsKey {
			cur = keysCur
		}
		v, err := decodeValue(node, cur)
		if err != nil {
			return nil, false
		}
		obj.set(f.Name, v)
	}

	if keysCur.Remaining() != 0 || dataCur.Remaining() != 0 {
		return nil, false
	}
	return obj, true
}

// pickBest applies the tie-break order: greater field count, then more
// is_key fields, then lexicographic event name.
func pickBest(candidates []candidateResult) candidateResult {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].schema, candidates[j].schema
		if len(a.Fields) != len(b.Fields) {
			return len(a.Fields) > len(b.Fields)
		}
		ak, bk := countKeys(a), countKeys(b)
		if ak != bk {
			return ak > bk
		}
		return a.Name < b.Name
	})
	return candidates[0]
}

func countKeys(schema domain.AbiEventSchema) int {
	n := 0
	for _, f := range schema.Fields {
		if f.IsKey {
			n++
		}
	}
	return n
}
