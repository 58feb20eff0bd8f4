package abiregistry

import "github.com/textileio/starknet-indexer/internal/domain"

// NodeKind tags the shape of an AbiTypeNode.
type NodeKind string

const (
	// Primitive is a leaf scalar: felt252, a sized integer, bool, or ContractAddress.
	Primitive NodeKind = "Primitive"
	// Composite is a Cairo struct: an ordered list of named fields.
	Composite NodeKind = "Composite"
	// Variant is a Cairo enum: a tagged union of named options.
	Variant NodeKind = "Variant"
	// Optional is Cairo's core::option::Option<T>, a Variant of exactly Some(T)/None
	// promoted to its own kind so the decoder can special-case nil.
	Optional NodeKind = "Optional"
)

// AbiTypeNode is one node of the type tree built from a contract's ABI. Struct
// and enum definitions are resolved into a tree up front so the decoder never
// has to re-walk the raw ABI JSON while consuming the felt cursor.
type AbiTypeNode struct {
	Kind NodeKind

	// Primitive
	PrimitiveName string // full ABI type string, e.g. "core::felt252", "core::integer::u256"

	// Composite
	Fields []CompositeField

	// Variant / Optional
	Options []VariantOption

	// Optional only: the wrapped type. Nil for every other Kind.
	Inner *AbiTypeNode
}

// CompositeField is one member of a Composite node.
type CompositeField struct {
	Name string
	Type *AbiTypeNode
}

// VariantOption is one arm of a Variant node, tagged by its on-chain discriminant index.
type VariantOption struct {
	Index uint64
	Name  string
	Type  *AbiTypeNode // nil for a unit variant (e.g. Option::None)
}

// ContractABI is the fully resolved, ready-to-decode form of one contract's ABI.
type ContractABI struct {
	// SelectorToSchemas maps a hex event selector to every candidate schema that
	// selector could mean. Most selectors have exactly one candidate; a
	// selector collision (two differently-scoped events sharing a short name)
	// produces more than one, and the decoder disambiguates by shape.
	SelectorToSchemas map[string][]domain.AbiEventSchema

	// NameToSchema maps an event's short name directly to its schema, for
	// operator-facing lookups (event type allow-lists) that never go through
	// a selector.
	NameToSchema map[string]domain.AbiEventSchema

	// FieldTypes maps a field's declared ABI type string (e.g.
	// "core::integer::u256") to its resolved type tree, for both Composite
	// fields and any field typed directly as a struct or enum.
	FieldTypes map[string]*AbiTypeNode
}
