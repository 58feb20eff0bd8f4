package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/textileio/starknet-indexer/internal/abiregistry"
	"github.com/textileio/starknet-indexer/internal/addr"
)

// maxSafeUint is the largest integer value materialized as a JSON number
// rather than a decimal string, matching the "safely representable" rule
// for small uints (JS/JSON number precision is exact up to 2^53-1).
const maxSafeUint = 1<<53 - 1

// decodeValue consumes exactly the felts node requires from cur and returns
// its materialized JSON-ready value.
func decodeValue(node *abiregistry.AbiTypeNode, cur *cursor) (interface{}, error) {
	switch node.Kind {
	case abiregistry.Primitive:
		return decodePrimitive(node.PrimitiveName, cur)
	case abiregistry.Composite:
		return decodeComposite(node, cur)
	case abiregistry.Variant:
		return decodeVariant(node, cur)
	case abiregistry.Optional:
		return decodeOptional(node, cur)
	default:
		return nil, fmt.Errorf("unhandled type node kind %q", node.Kind)
	}
}

func decodePrimitive(name string, cur *cursor) (interface{}, error) {
	if name == "core::integer::u256" {
		felts, err := cur.Take(2)
		if err != nil {
			return nil, err
		}
		low, err := parseFelt(felts[0])
		if err != nil {
			return nil, err
		}
		high, err := parseFelt(felts[1])
		if err != nil {
			return nil, err
		}
		var v big.Int
		v.Lsh(high, 128)
		v.Add(&v, low)
		return v.String(), nil
	}

	felts, err := cur.Take(1)
	if err != nil {
		return nil, err
	}
	raw := felts[0]

	switch name {
	case "core::bool":
		v, err := parseFelt(raw)
		if err != nil {
			return nil, err
		}
		return v.Sign() != 0, nil

	case "core::starknet::ContractAddress", "core::starknet::ClassHash", "core::starknet::EthAddress":
		canonical, err := addr.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		return canonical.String(), nil

	case "core::integer::u8", "core::integer::u16", "core::integer::u32",
		"core::integer::u64", "core::integer::u128":
		v, err := parseFelt(raw)
		if err != nil {
			return nil, err
		}
		if v.IsUint64() && v.Uint64() <= maxSafeUint {
			return v.Uint64(), nil
		}
		return v.String(), nil

	case "core::felt252":
		return materializeFelt252(raw)

	default:
		// Opaque/unknown primitive (a type the ABI never materialized): fall
		// back to the felt252 rule rather than rejecting the event outright.
		return materializeFelt252(raw)
	}
}

func decodeComposite(node *abiregistry.AbiTypeNode, cur *cursor) (interface{}, error) {
	obj := newOrderedObject(len(node.Fields))
	for _, f := range node.Fields {
		v, err := decodeValue(f.Type, cur)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		obj.set(f.Name, v)
	}
	return obj, nil
}

func decodeVariant(node *abiregistry.AbiTypeNode, cur *cursor) (interface{}, error) {
	tagFelts, err := cur.Take(1)
	if err != nil {
		return nil, err
	}
	tag, err := parseFelt(tagFelts[0])
	if err != nil {
		return nil, err
	}
	idx := tag.Uint64()

	for _, opt := range node.Options {
		if opt.Index != idx {
			continue
		}
		var payload interface{}
		if opt.Type != nil {
			payload, err = decodeValue(opt.Type, cur)
			if err != nil {
				return nil, fmt.Errorf("variant %s: %w", opt.Name, err)
			}
		}
		obj := newOrderedObject(1)
		obj.set(opt.Name, payload)
		return obj, nil
	}
	return nil, fmt.Errorf("unknown variant tag %d", idx)
}

func decodeOptional(node *abiregistry.AbiTypeNode, cur *cursor) (interface{}, error) {
	tagFelts, err := cur.Take(1)
	if err != nil {
		return nil, err
	}
	tag, err := parseFelt(tagFelts[0])
	if err != nil {
		return nil, err
	}
	if tag.Sign() != 0 {
		// None: Cairo's Option encodes Some at tag 0, None at tag 1.
		return nil, nil
	}
	return decodeValue(node.Inner, cur)
}

func parseFelt(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid felt %q", s)
	}
	return v, nil
}

// materializeFelt252 applies the felt252 string-vs-hex rule: if every byte
// after the leading zero bytes is printable ASCII, decode it as a
// short-string; otherwise return the lowercase 0x-hex form without leading
// zeros (not padded to 64 digits).
func materializeFelt252(raw string) (string, error) {
	v, err := parseFelt(raw)
	if err != nil {
		return "", err
	}
	b := v.Bytes() // big.Int.Bytes() already strips leading zero bytes

	if len(b) > 0 && isPrintableASCII(b) {
		return string(b), nil
	}
	return "0x" + v.Text(16), nil
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
