// Package addr implements canonical Starknet address normalization (component C2).
//
// Canonical form is "0x" followed by exactly 64 lowercase hex characters,
// left-padded with zeros. All public surfaces (config, queries, filters,
// subscriptions) accept any hex form and normalize at this boundary; no
// downstream component should normalize again.
package addr

import (
	"fmt"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
)

// Address is a canonical Starknet contract address.
type Address string

// hexDigits is the canonical width of an address, in hex characters, after the 0x prefix.
const hexDigits = 64

// Normalize validates s and returns its canonical form.
//
// s must start with "0x", contain only hex digits afterwards, and fit within
// a felt (at most 64 hex digits once parsed, since a canonical address is
// left-padded to that width).
func Normalize(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return "", fmt.Errorf("invalid address %q: missing 0x prefix", s)
	}
	hexPart := trimmed[2:]
	if hexPart == "" {
		return "", fmt.Errorf("invalid address %q: empty hex body", s)
	}
	if len(hexPart) > hexDigits {
		return "", fmt.Errorf("invalid address %q: longer than %d hex characters", s, hexDigits)
	}

	var f felt.Felt
	if _, err := f.SetString(trimmed); err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}

	b := f.Bytes()
	canonical := fmt.Sprintf("0x%064x", b[:])
	return Address(canonical), nil
}

// MustNormalize is like Normalize but panics on error; only use with trusted,
// already-validated literals (e.g. tests).
func MustNormalize(s string) Address {
	a, err := Normalize(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Equals reports whether two addresses are equal once both are normalized.
func Equals(a, b string) (bool, error) {
	na, err := Normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := Normalize(b)
	if err != nil {
		return false, err
	}
	return na == nb, nil
}

// String returns the canonical string form.
func (a Address) String() string {
	return string(a)
}
