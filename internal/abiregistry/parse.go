package abiregistry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/textileio/starknet-indexer/internal/domain"
)

// maxTypeDepth bounds the recursion used to resolve event enums and a
// field's type tree. A contract ABI is static and author-controlled, but a
// hostile or malformed one could still declare a self-referencing struct or
// event; that becomes a parse error instead of a stack overflow (a type cycle
// is caught by resolveType's placeholder, deep nesting by this bound).
const maxTypeDepth = 64

// rawAbiItem mirrors one entry of a Starknet contract class's ABI array.
// Only the fields event/struct/enum resolution actually needs are kept.
type rawAbiItem struct {
	Type    string          `json:"type"`
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	Members json.RawMessage `json:"members"`
	Variants json.RawMessage `json:"variants"`
}

type rawMember struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Kind string `json:"kind"` // "key" or "data", on an event's own members
}

type rawVariant struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ParseABI resolves a contract class's raw ABI JSON into a ContractABI ready
// for event decoding.
func ParseABI(abiJSON []byte) (*ContractABI, error) {
	var items []rawAbiItem
	if err := json.Unmarshal(abiJSON, &items); err != nil {
		return nil, fmt.Errorf("parsing abi: %w", err)
	}

	byName := make(map[string]rawAbiItem, len(items))
	for _, it := range items {
		if it.Name != "" {
			byName[it.Name] = it
		}
	}

	resolved := &ContractABI{
		SelectorToSchemas: make(map[string][]domain.AbiEventSchema),
		NameToSchema:      make(map[string]domain.AbiEventSchema),
		FieldTypes:        make(map[string]*AbiTypeNode),
	}
	typeCache := make(map[string]*AbiTypeNode)

	for _, it := range items {
		if it.Type != "event" {
			continue
		}
		if err := resolveEvent(it, byName, resolved, typeCache, 0); err != nil {
			return nil, fmt.Errorf("event %s: %w", it.Name, err)
		}
	}

	return resolved, nil
}

// resolveEvent walks one top-level "event" ABI item. A Cairo event with
// kind "struct" is a leaf: it gets its own schema, registered under the
// selector of its own short name. A Cairo event with kind "enum" is the
// generated dispatch wrapper Cairo emits for contracts with more than one
// #[event] variant; it contributes no schema of its own and instead recurses
// into each variant, since the on-chain selector is always derived from the
// leaf event's name, never the wrapper's.
func resolveEvent(
	it rawAbiItem,
	byName map[string]rawAbiItem,
	out *ContractABI,
	typeCache map[string]*AbiTypeNode,
	depth int,
) error {
	if depth > maxTypeDepth {
		return fmt.Errorf("event nesting exceeds depth %d, possible cycle", maxTypeDepth)
	}

	switch it.Kind {
	case "struct":
		fields, err := parseMembers(it.Members)
		if err != nil {
			return err
		}
		schema := domain.AbiEventSchema{Name: shortName(it.Name)}
		for _, m := range fields {
			node, err := resolveType(m.Type, byName, typeCache, depth+1)
			if err != nil {
				return fmt.Errorf("field %s: %w", m.Name, err)
			}
			out.FieldTypes[m.Type] = node
			schema.Fields = append(schema.Fields, domain.AbiField{
				Name:  m.Name,
				Type:  m.Type,
				IsKey: m.Kind == "key",
			})
		}
		sel := eventSelector(schema.Name)
		// A leaf event is reached both as its own top-level ABI item and
		// through its enum wrapper; register each distinct schema only once.
		for _, existing := range out.SelectorToSchemas[sel] {
			if existing.Name != schema.Name || len(existing.Fields) != len(schema.Fields) {
				continue
			}
			same := true
			for i := range existing.Fields {
				if existing.Fields[i] != schema.Fields[i] {
					same = false
					break
				}
			}
			if same {
				return nil
			}
		}
		out.SelectorToSchemas[sel] = append(out.SelectorToSchemas[sel], schema)
		out.NameToSchema[schema.Name] = schema
		return nil

	case "enum":
		variants, err := parseVariants(it.Variants)
		if err != nil {
			return err
		}
		for _, v := range variants {
			leaf, ok := byName[v.Type]
			if !ok || leaf.Type != "event" {
				// A variant typed as a plain struct/enum rather than another
				// #[event] item carries no selector of its own; skip it.
				continue
			}
			if err := resolveEvent(leaf, byName, out, typeCache, depth+1); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported event kind %q", it.Kind)
	}
}

// resolveType resolves an ABI type string to its AbiTypeNode, memoizing on
// the type string so repeated references (e.g. every event uses u256) share
// one node.
func resolveType(
	typeName string,
	byName map[string]rawAbiItem,
	cache map[string]*AbiTypeNode,
	depth int,
) (*AbiTypeNode, error) {
	if depth > maxTypeDepth {
		return nil, fmt.Errorf("type %q nesting exceeds depth %d, possible cycle", typeName, maxTypeDepth)
	}
	if node, ok := cache[typeName]; ok {
		if node.Kind == "" {
			return nil, fmt.Errorf("type %q refers to itself, cycle rejected", typeName)
		}
		return node, nil
	}

	if node := primitiveNode(typeName); node != nil {
		cache[typeName] = node
		return node, nil
	}

	item, ok := byName[typeName]
	if !ok {
		// An unresolvable type (e.g. a generic the ABI never materializes) is
		// treated as an opaque primitive; the decoder will still consume one
		// felt for it rather than fail the whole contract's registration.
		node := &AbiTypeNode{Kind: Primitive, PrimitiveName: typeName}
		cache[typeName] = node
		return node, nil
	}

	// Reserve a placeholder (Kind still unset) before recursing, so a type
	// that reaches itself again while being resolved is reported as a cycle
	// instead of recursing forever.
	placeholder := &AbiTypeNode{}
	cache[typeName] = placeholder

	switch item.Type {
	case "struct":
		members, err := parseMembers(item.Members)
		if err != nil {
			return nil, err
		}
		var fields []CompositeField
		for _, m := range members {
			ft, err := resolveType(m.Type, byName, cache, depth+1)
			if err != nil {
				return nil, err
			}
			fields = append(fields, CompositeField{Name: m.Name, Type: ft})
		}
		*placeholder = AbiTypeNode{Kind: Composite, Fields: fields}
		return placeholder, nil

	case "enum":
		variants, err := parseVariants(item.Variants)
		if err != nil {
			return nil, err
		}
		if isOption(typeName, variants) {
			inner, err := resolveType(variants[0].Type, byName, cache, depth+1)
			if err != nil {
				return nil, err
			}
			*placeholder = AbiTypeNode{Kind: Optional, Inner: inner}
			return placeholder, nil
		}
		var opts []VariantOption
		for i, v := range variants {
			var vt *AbiTypeNode
			if v.Type != "" && v.Type != "()" {
				vt, err = resolveType(v.Type, byName, cache, depth+1)
				if err != nil {
					return nil, err
				}
			}
			opts = append(opts, VariantOption{Index: uint64(i), Name: v.Name, Type: vt})
		}
		*placeholder = AbiTypeNode{Kind: Variant, Options: opts}
		return placeholder, nil

	default:
		node := &AbiTypeNode{Kind: Primitive, PrimitiveName: typeName}
		*placeholder = *node
		return placeholder, nil
	}
}

// isOption reports whether typeName is Cairo's core::option::Option<T>,
// recognized by its canonical two-variant Some/None shape rather than by
// string-matching the generic parameter.
func isOption(typeName string, variants []rawVariant) bool {
	if !strings.HasPrefix(typeName, "core::option::Option::") {
		return false
	}
	return len(variants) == 2 && variants[0].Name == "Some" && variants[1].Name == "None"
}

var primitiveNames = map[string]struct{}{
	"core::felt252":                {},
	"core::bool":                   {},
	"core::integer::u8":            {},
	"core::integer::u16":           {},
	"core::integer::u32":           {},
	"core::integer::u64":           {},
	"core::integer::u128":          {},
	"core::integer::u256":          {}, // width-2: decoder special-cases (low, high) -> decimal string
	"core::starknet::ContractAddress": {},
	"core::starknet::ClassHash":    {},
	"core::starknet::EthAddress":   {},
}

func primitiveNode(typeName string) *AbiTypeNode {
	if _, ok := primitiveNames[typeName]; ok {
		return &AbiTypeNode{Kind: Primitive, PrimitiveName: typeName}
	}
	return nil
}

func parseMembers(raw json.RawMessage) ([]rawMember, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var members []rawMember
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("parsing members: %w", err)
	}
	return members, nil
}

func parseVariants(raw json.RawMessage) ([]rawVariant, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var variants []rawVariant
	if err := json.Unmarshal(raw, &variants); err != nil {
		return nil, fmt.Errorf("parsing variants: %w", err)
	}
	return variants, nil
}

// shortName returns the last "::"-separated segment of a fully-qualified
// Cairo path, which is what get_selector_from_name actually hashes.
func shortName(qualified string) string {
	parts := strings.Split(qualified, "::")
	return parts[len(parts)-1]
}

// SortedSelectors returns every registered selector in a ContractABI, sorted,
// for diagnostic logging.
func (c *ContractABI) SortedSelectors() []string {
	out := make([]string, 0, len(c.SelectorToSchemas))
	for s := range c.SelectorToSchemas {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
