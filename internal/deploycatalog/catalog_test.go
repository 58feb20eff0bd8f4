package deploycatalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/deploycatalog"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/pkg/apierrors"
)

func TestListAndGetDeployment(t *testing.T) {
	a := addr.MustNormalize("0x1")
	dep := domain.Deployment{ID: "prod", Status: domain.DeploymentActive, Contracts: map[addr.Address]struct{}{a: {}}}
	cat := deploycatalog.New([]domain.Deployment{dep})

	list, err := cat.ListDeployments(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := cat.GetDeployment(context.Background(), "prod")
	require.NoError(t, err)
	require.Equal(t, dep.ID, got.ID)
}

func TestGetUnknownDeploymentIsNotFound(t *testing.T) {
	cat := deploycatalog.New(nil)
	_, err := cat.GetDeployment(context.Background(), "missing")
	require.True(t, apierrors.Is(err, apierrors.NotFound))
}

func TestIntersectContractsEmptyCandidatesReturnsWholeDeployment(t *testing.T) {
	a := addr.MustNormalize("0x1")
	b := addr.MustNormalize("0x2")
	dep := domain.Deployment{ID: "prod", Contracts: map[addr.Address]struct{}{a: {}, b: {}}}

	got := deploycatalog.IntersectContracts(dep, nil)
	require.ElementsMatch(t, []addr.Address{a, b}, got)
}

func TestIntersectContractsNarrowsToDeploymentMembers(t *testing.T) {
	a := addr.MustNormalize("0x1")
	b := addr.MustNormalize("0x2")
	c := addr.MustNormalize("0x3")
	dep := domain.Deployment{ID: "prod", Contracts: map[addr.Address]struct{}{a: {}}}

	got := deploycatalog.IntersectContracts(dep, []addr.Address{a, b, c})
	require.Equal(t, []addr.Address{a}, got)
}

func TestIntersectContractsDisjointIsEmptyNotError(t *testing.T) {
	a := addr.MustNormalize("0x1")
	b := addr.MustNormalize("0x2")
	dep := domain.Deployment{ID: "prod", Contracts: map[addr.Address]struct{}{a: {}}}

	got := deploycatalog.IntersectContracts(dep, []addr.Address{b})
	require.Empty(t, got)
}
