package adapter

import (
	apperrors "github.com/portfolio-sentinel/internal/errors"
	"github.com/portfolio-sentinel/internal/types"
)

// Registry holds one adapter per configured chain
type Registry struct {
	adapters map[types.ChainID]ChainAdapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[types.ChainID]ChainAdapter)}
}

// Register adds an adapter for its chain
func (r *Registry) Register(a ChainAdapter) {
	r.adapters[a.ChainID()] = a
}

// Get returns the adapter for a chain. A chain without an adapter is a
// configuration error, not a transient one.
func (r *Registry) Get(chainID types.ChainID) (ChainAdapter, error) {
	a, ok := r.adapters[chainID]
	if !ok {
		return nil, apperrors.NewMissingChainEndpoint(uint64(chainID))
	}
	return a, nil
}

// Chains returns the chain ids with a registered adapter
func (r *Registry) Chains() []types.ChainID {
	chains := make([]types.ChainID, 0, len(r.adapters))
	for chainID := range r.adapters {
		chains = append(chains, chainID)
	}
	return chains
}
