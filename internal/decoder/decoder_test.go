package decoder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/textileio/starknet-indexer/internal/abiregistry"
	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/decoder"
	"github.com/textileio/starknet-indexer/internal/domain"
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

func TestDecodeStraightEvent(t *testing.T) {
	abi, err := abiregistry.ParseABI([]byte(transferABI))
	require.NoError(t, err)

	selector := abi.SortedSelectors()[0]
	raw := domain.RawEvent{
		ContractAddress: mustAddr(t, "0x1"),
		Keys:            []string{selector, "0x2", "0x3"},
		Data:            []string{"0x64", "0x0"}, // u256 value = 100
		BlockNumber:     10,
		TransactionHash: "0xabc",
		LogIndexInTxn:   0,
	}

	evt := decoder.Decode(context.Background(), raw, abi)
	require.Equal(t, "Transfer", evt.EventType)
	require.Equal(t, []string{"from", "to", "value"}, evt.DecodedFields)
	require.Equal(t, "100", evt.DecodedData["value"])
	require.Equal(t, mustAddr(t, "0x2").String(), evt.DecodedData["from"])
}

func TestDecodeUnknownSelector(t *testing.T) {
	abi, err := abiregistry.ParseABI([]byte(transferABI))
	require.NoError(t, err)

	raw := domain.RawEvent{
		ContractAddress: mustAddr(t, "0x1"),
		Keys:            []string{"0xdeadbeef"},
		Data:            []string{},
		TransactionHash: "0xabc",
	}
	evt := decoder.Decode(context.Background(), raw, abi)
	require.Equal(t, decoder.UnknownEventType, evt.EventType)
	require.Empty(t, evt.DecodedData)
}

func TestDecodeEmptyKeysNeverAttemptsMatch(t *testing.T) {
	abi, err := abiregistry.ParseABI([]byte(transferABI))
	require.NoError(t, err)

	raw := domain.RawEvent{ContractAddress: mustAddr(t, "0x1"), Keys: nil, TransactionHash: "0xabc"}
	evt := decoder.Decode(context.Background(), raw, abi)
	require.Equal(t, decoder.UnknownEventType, evt.EventType)
}

// TestDecodeDisambiguatesBySelectorCollisionShape mirrors the spec's
// disambiguation scenario: two events share a selector (same short name,
// different module), one taking a single u256 data field, the other taking
// three. A raw event's data length picks the right one unambiguously.
func TestDecodeDisambiguatesBySelectorCollisionShape(t *testing.T) {
	const collidingABI = `[
	  {
	    "type": "event",
	    "name": "contracts::moduleA::Transfer",
	    "kind": "struct",
	    "members": [
	      {"name": "value", "type": "core::integer::u256", "kind": "data"}
	    ]
	  },
	  {
	    "type": "event",
	    "name": "contracts::moduleB::Transfer",
	    "kind": "struct",
	    "members": [
	      {"name": "from", "type": "core::starknet::ContractAddress", "kind": "key"},
	      {"name": "to", "type": "core::starknet::ContractAddress", "kind": "key"},
	      {"name": "value", "type": "core::integer::u256", "kind": "data"},
	      {"name": "memo", "type": "core::felt252", "kind": "data"},
	      {"name": "fee", "type": "core::integer::u256", "kind": "data"}
	    ]
	  }
	]`
	abi, err := abiregistry.ParseABI([]byte(collidingABI))
	require.NoError(t, err)
	selector := abi.SortedSelectors()[0]

	// Shape of moduleA::Transfer: no keys beyond selector, data = [value_lo, value_hi].
	shortEvt := decoder.Decode(context.Background(), domain.RawEvent{
		ContractAddress: mustAddr(t, "0x1"),
		Keys:            []string{selector},
		Data:            []string{"0x5", "0x0"},
		TransactionHash: "0x1",
	}, abi)
	require.Len(t, shortEvt.DecodedFields, 1)

	// Shape of moduleB::Transfer: keys = [selector, from, to], data = [value_lo, value_hi, memo, fee_lo, fee_hi].
	longEvt := decoder.Decode(context.Background(), domain.RawEvent{
		ContractAddress: mustAddr(t, "0x1"),
		Keys:            []string{selector, "0x2", "0x3"},
		Data:            []string{"0x5", "0x0", "0x68656c6c6f", "0x1", "0x0"},
		TransactionHash: "0x2",
	}, abi)
	require.Len(t, longEvt.DecodedFields, 5)
	require.Equal(t, "hello", longEvt.DecodedData["memo"])
}
