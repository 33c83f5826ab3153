package coordinator

import (
	"sort"
	"sync"

	"flatstore/pkg/types"
)

// Registry is the coordinator's in-memory view of storage nodes and file
// ownership. Nodes and files have separate locks; neither is held across
// network I/O.
type Registry struct {
	dedupe bool

	// Node management
	nodes       []types.NodeAddress
	unreachable map[types.NodeAddress]struct{}
	nodeMutex   sync.Mutex

	// File metadata
	files     map[string]types.FileLocation
	fileMutex sync.Mutex
}

// RegistryStats summarizes registry contents.
type RegistryStats struct {
	Nodes       int
	Unreachable int
	Files       int
}

// NewRegistry returns an empty registry. With dedupe set, re-registering a
// known address does not add a second entry.
func NewRegistry(dedupe bool) *Registry {
	return &Registry{
		dedupe:      dedupe,
		unreachable: make(map[types.NodeAddress]struct{}),
		files:       make(map[string]types.FileLocation),
	}
}

// RegisterNode appends addr to the node list and clears any unreachable mark.
// It reports whether a new entry was added.
func (r *Registry) RegisterNode(addr types.NodeAddress) bool {
	r.nodeMutex.Lock()
	defer r.nodeMutex.Unlock()

	delete(r.unreachable, addr)
	if r.dedupe {
		for _, n := range r.nodes {
			if n == addr {
				return false
			}
		}
	}
	r.nodes = append(r.nodes, addr)
	return true
}

// Nodes returns a snapshot of the node list in registration order.
func (r *Registry) Nodes() []types.NodeAddress {
	r.nodeMutex.Lock()
	defer r.nodeMutex.Unlock()

	nodes := make([]types.NodeAddress, len(r.nodes))
	copy(nodes, r.nodes)
	return nodes
}

// ReachableNodes returns registered nodes without an unreachable mark, in
// registration order.
func (r *Registry) ReachableNodes() []types.NodeAddress {
	r.nodeMutex.Lock()
	defer r.nodeMutex.Unlock()

	nodes := make([]types.NodeAddress, 0, len(r.nodes))
	for _, n := range r.nodes {
		if _, down := r.unreachable[n]; !down {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// MarkUnreachable records that a routed connection to addr failed.
func (r *Registry) MarkUnreachable(addr types.NodeAddress) {
	r.nodeMutex.Lock()
	defer r.nodeMutex.Unlock()
	r.unreachable[addr] = struct{}{}
}

// MarkReachable clears the unreachable mark for addr.
func (r *Registry) MarkReachable(addr types.NodeAddress) {
	r.nodeMutex.Lock()
	defer r.nodeMutex.Unlock()
	delete(r.unreachable, addr)
}

func (r *Registry) Reachable(addr types.NodeAddress) bool {
	r.nodeMutex.Lock()
	defer r.nodeMutex.Unlock()
	_, down := r.unreachable[addr]
	return !down
}

// ImportFileList maps every path to addr, replacing existing owners.
func (r *Registry) ImportFileList(addr types.NodeAddress, paths []string) int {
	r.fileMutex.Lock()
	defer r.fileMutex.Unlock()

	imported := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		r.files[p] = types.FileLocation{Path: p, Owner: addr}
		imported++
	}
	return imported
}

// Upsert creates or replaces the mapping for path.
func (r *Registry) Upsert(path string, addr types.NodeAddress) {
	r.fileMutex.Lock()
	defer r.fileMutex.Unlock()
	r.files[path] = types.FileLocation{Path: path, Owner: addr}
}

// Locate returns the owner of path.
func (r *Registry) Locate(path string) (types.NodeAddress, bool) {
	r.fileMutex.Lock()
	defer r.fileMutex.Unlock()

	loc, ok := r.files[path]
	return loc.Owner, ok
}

// Files returns every mapping sorted by path.
func (r *Registry) Files() []types.FileLocation {
	r.fileMutex.Lock()
	files := make([]types.FileLocation, 0, len(r.files))
	for _, loc := range r.files {
		files = append(files, loc)
	}
	r.fileMutex.Unlock()

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// FileCounts returns how many paths each node owns.
func (r *Registry) FileCounts() map[types.NodeAddress]int {
	r.fileMutex.Lock()
	defer r.fileMutex.Unlock()

	counts := make(map[types.NodeAddress]int)
	for _, loc := range r.files {
		counts[loc.Owner]++
	}
	return counts
}

func (r *Registry) Stats() RegistryStats {
	r.nodeMutex.Lock()
	stats := RegistryStats{Nodes: len(r.nodes), Unreachable: len(r.unreachable)}
	r.nodeMutex.Unlock()

	r.fileMutex.Lock()
	stats.Files = len(r.files)
	r.fileMutex.Unlock()
	return stats
}
