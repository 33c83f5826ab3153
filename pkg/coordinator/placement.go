package coordinator

import (
	"errors"
	"fmt"
	"sync/atomic"

	"flatstore/pkg/types"

	"github.com/cespare/xxhash/v2"
)

// ErrNoStorageNodes is returned when no node can take a new path.
var ErrNoStorageNodes = errors.New("no storage nodes registered")

// PlacementPolicy picks the owner of a path that has no mapping yet.
type PlacementPolicy interface {
	Name() string
	Place(path string, candidates []types.NodeAddress, reg *Registry) (types.NodeAddress, error)
}

const (
	PlacementFirstAvailable = "first-available"
	PlacementRoundRobin     = "round-robin"
	PlacementLeastLoaded    = "least-loaded"
	PlacementHash           = "hash"
)

// NewPlacementPolicy resolves a policy by its config name. An empty name
// selects first-available.
func NewPlacementPolicy(name string) (PlacementPolicy, error) {
	switch name {
	case "", PlacementFirstAvailable:
		return FirstAvailable{}, nil
	case PlacementRoundRobin:
		return &RoundRobin{}, nil
	case PlacementLeastLoaded:
		return LeastLoaded{}, nil
	case PlacementHash:
		return Hashed{}, nil
	}
	return nil, fmt.Errorf("unknown placement policy %q", name)
}

// Candidates returns the nodes eligible for placement: those not marked
// unreachable, or every registered node when all of them are marked.
func Candidates(reg *Registry) []types.NodeAddress {
	if nodes := reg.ReachableNodes(); len(nodes) > 0 {
		return nodes
	}
	return reg.Nodes()
}

// FirstAvailable always picks the first candidate in registration order.
// It does no load balancing.
type FirstAvailable struct{}

func (FirstAvailable) Name() string { return PlacementFirstAvailable }

func (FirstAvailable) Place(_ string, candidates []types.NodeAddress, _ *Registry) (types.NodeAddress, error) {
	if len(candidates) == 0 {
		return types.NodeAddress{}, ErrNoStorageNodes
	}
	return candidates[0], nil
}

// RoundRobin rotates through the candidates.
type RoundRobin struct {
	next atomic.Uint64
}

func (*RoundRobin) Name() string { return PlacementRoundRobin }

func (p *RoundRobin) Place(_ string, candidates []types.NodeAddress, _ *Registry) (types.NodeAddress, error) {
	if len(candidates) == 0 {
		return types.NodeAddress{}, ErrNoStorageNodes
	}
	i := p.next.Add(1) - 1
	return candidates[i%uint64(len(candidates))], nil
}

// LeastLoaded picks the candidate owning the fewest paths. Ties go to the
// earlier candidate.
type LeastLoaded struct{}

func (LeastLoaded) Name() string { return PlacementLeastLoaded }

func (LeastLoaded) Place(_ string, candidates []types.NodeAddress, reg *Registry) (types.NodeAddress, error) {
	if len(candidates) == 0 {
		return types.NodeAddress{}, ErrNoStorageNodes
	}
	counts := reg.FileCounts()
	best := candidates[0]
	for _, c := range candidates[1:] {
		if counts[c] < counts[best] {
			best = c
		}
	}
	return best, nil
}

// Hashed picks a candidate by hashing the path.
type Hashed struct{}

func (Hashed) Name() string { return PlacementHash }

func (Hashed) Place(path string, candidates []types.NodeAddress, _ *Registry) (types.NodeAddress, error) {
	if len(candidates) == 0 {
		return types.NodeAddress{}, ErrNoStorageNodes
	}
	return candidates[xxhash.Sum64String(path)%uint64(len(candidates))], nil
}
