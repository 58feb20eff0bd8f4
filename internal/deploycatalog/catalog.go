// Package deploycatalog is the deployment catalog gateway (component C8): a
// read-only lookup from deployment id to its contract set, used to scope
// queries and subscriptions to a named deployment.
package deploycatalog

import (
	"context"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/pkg/apierrors"
)

// Gateway is the read-only interface the core depends on.
type Gateway interface {
	ListDeployments(ctx context.Context) ([]domain.Deployment, error)
	GetDeployment(ctx context.Context, id string) (domain.Deployment, error)
}

// StaticCatalog is a Gateway backed by a fixed, in-memory deployment set,
// assembled once at startup from configuration.
type StaticCatalog struct {
	deployments map[string]domain.Deployment
}

var _ Gateway = (*StaticCatalog)(nil)

// New builds a StaticCatalog from deployments, keyed by their ID. Later
// entries with a duplicate ID overwrite earlier ones.
func New(deployments []domain.Deployment) *StaticCatalog {
	m := make(map[string]domain.Deployment, len(deployments))
	for _, d := range deployments {
		m[d.ID] = d
	}
	return &StaticCatalog{deployments: m}
}

// ListDeployments returns every configured deployment.
func (c *StaticCatalog) ListDeployments(context.Context) ([]domain.Deployment, error) {
	out := make([]domain.Deployment, 0, len(c.deployments))
	for _, d := range c.deployments {
		out = append(out, d)
	}
	return out, nil
}

// GetDeployment returns the deployment with the given id, or NotFound.
func (c *StaticCatalog) GetDeployment(_ context.Context, id string) (domain.Deployment, error) {
	d, ok := c.deployments[id]
	if !ok {
		return domain.Deployment{}, apierrors.New(apierrors.NotFound, "unknown deployment id "+id)
	}
	return d, nil
}

// IntersectContracts returns the subset of candidates that belong to
// deployment, preserving candidates' order. When candidates is empty it
// returns every contract of the deployment, in no particular order. An empty
// result is valid and not an error (spec: empty intersection never errors).
func IntersectContracts(deployment domain.Deployment, candidates []addr.Address) []addr.Address {
	if len(candidates) == 0 {
		out := make([]addr.Address, 0, len(deployment.Contracts))
		for a := range deployment.Contracts {
			out = append(out, a)
		}
		return out
	}
	var out []addr.Address
	for _, a := range candidates {
		if _, ok := deployment.Contracts[a]; ok {
			out = append(out, a)
		}
	}
	return out
}
