package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
)

func mustAddr(t *testing.T, s string) addr.Address {
	t.Helper()
	a, err := addr.Normalize(s)
	require.NoError(t, err)
	return a
}

func TestAllowsAnyKeyWithNoFilter(t *testing.T) {
	cfg := domain.ContractConfig{}
	require.True(t, cfg.AllowsAnyKey([]string{"0x2"}))
	require.True(t, cfg.AllowsAnyKey(nil))
}

func TestAllowsAnyKeyNormalizesRawKeys(t *testing.T) {
	canonical := mustAddr(t, "0x2").String()
	cfg := domain.ContractConfig{
		EventKeyAllow: map[string]struct{}{canonical: {}},
	}

	// Node-sourced keys aren't always zero-padded to the canonical 64-hex
	// form; the allow-list must still match them.
	require.True(t, cfg.AllowsAnyKey([]string{"0x2"}))
	require.True(t, cfg.AllowsAnyKey([]string{"0x02"}))
	require.False(t, cfg.AllowsAnyKey([]string{"0x3"}))
}

func TestAllowsAnyKeyFallsBackToRawOnUnparsableKey(t *testing.T) {
	cfg := domain.ContractConfig{
		EventKeyAllow: map[string]struct{}{"not-a-felt": {}},
	}
	require.True(t, cfg.AllowsAnyKey([]string{"not-a-felt"}))
	require.False(t, cfg.AllowsAnyKey([]string{"still-not-a-felt"}))
}

func TestAllowsEventType(t *testing.T) {
	cfg := domain.ContractConfig{
		EventTypeAllow: map[string]struct{}{"Transfer": {}},
	}
	require.True(t, cfg.AllowsEventType("Transfer"))
	require.False(t, cfg.AllowsEventType("Approval"))

	unfiltered := domain.ContractConfig{}
	require.True(t, unfiltered.AllowsEventType("Anything"))
}
