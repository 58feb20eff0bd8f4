package abiregistry

import (
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"golang.org/x/crypto/sha3"
)

// eventSelector computes the felt252 selector Starknet derives from an
// event's short name: the low 250 bits of keccak256(name), matching
// get_selector_from_name. Two events declared under different scopes but
// sharing a short name hash to the same selector; the decoder resolves that
// collision by shape, not by name.
func eventSelector(name string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	sum := h.Sum(nil)

	// Starknet selectors live in [0, 2**250): clear the top 6 bits of the
	// 32-byte big-endian digest so it always fits a felt.
	sum[0] &= 0x03

	return fmt.Sprintf("0x%x", sum)
}

// CanonicalFelt normalizes any hex felt (selector, event key, or data word)
// to the same fixed-width "0x" + 64-lowercase-hex form eventSelector
// produces, so a raw_keys[0] pulled off the wire can be looked up in
// SelectorToSchemas directly.
func CanonicalFelt(s string) (string, error) {
	var f felt.Felt
	if _, err := f.SetString(s); err != nil {
		return "", fmt.Errorf("invalid felt %q: %w", s, err)
	}
	b := f.Bytes()
	return fmt.Sprintf("0x%064x", b[:]), nil
}
