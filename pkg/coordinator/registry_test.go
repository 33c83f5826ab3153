package coordinator

import (
	"fmt"
	"sync"
	"testing"

	"flatstore/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	nodeA = types.NodeAddress{Host: "127.0.0.1", Port: 9101}
	nodeB = types.NodeAddress{Host: "127.0.0.1", Port: 9102}
	nodeC = types.NodeAddress{Host: "127.0.0.1", Port: 9103}
)

func TestRegisterNode(t *testing.T) {
	t.Run("DuplicatesByDefault", func(t *testing.T) {
		r := NewRegistry(false)
		assert.True(t, r.RegisterNode(nodeA))
		assert.True(t, r.RegisterNode(nodeB))
		assert.True(t, r.RegisterNode(nodeA))
		assert.Equal(t, []types.NodeAddress{nodeA, nodeB, nodeA}, r.Nodes())
	})

	t.Run("Dedupe", func(t *testing.T) {
		r := NewRegistry(true)
		assert.True(t, r.RegisterNode(nodeA))
		assert.False(t, r.RegisterNode(nodeA))
		assert.Equal(t, []types.NodeAddress{nodeA}, r.Nodes())
	})

	t.Run("ReRegistrationClearsUnreachable", func(t *testing.T) {
		r := NewRegistry(true)
		r.RegisterNode(nodeA)
		r.MarkUnreachable(nodeA)
		assert.False(t, r.Reachable(nodeA))
		r.RegisterNode(nodeA)
		assert.True(t, r.Reachable(nodeA))
	})
}

func TestNodesSnapshot(t *testing.T) {
	r := NewRegistry(false)
	r.RegisterNode(nodeA)

	nodes := r.Nodes()
	nodes[0] = nodeC
	assert.Equal(t, nodeA, r.Nodes()[0], "snapshot must not alias registry state")
}

func TestReachability(t *testing.T) {
	r := NewRegistry(false)
	r.RegisterNode(nodeA)
	r.RegisterNode(nodeB)
	r.RegisterNode(nodeC)

	r.MarkUnreachable(nodeB)
	assert.Equal(t, []types.NodeAddress{nodeA, nodeC}, r.ReachableNodes())
	assert.Equal(t, 1, r.Stats().Unreachable)
	assert.Len(t, r.Nodes(), 3, "unreachable nodes stay known")

	r.MarkReachable(nodeB)
	assert.Equal(t, []types.NodeAddress{nodeA, nodeB, nodeC}, r.ReachableNodes())
}

func TestImportFileList(t *testing.T) {
	r := NewRegistry(false)

	n := r.ImportFileList(nodeA, []string{"/a", "/b", "", "/c"})
	assert.Equal(t, 3, n)

	r.ImportFileList(nodeB, []string{"/b"})

	owner, ok := r.Locate("/b")
	require.True(t, ok)
	assert.Equal(t, nodeB, owner, "last writer wins")

	owner, ok = r.Locate("/a")
	require.True(t, ok)
	assert.Equal(t, nodeA, owner)

	_, ok = r.Locate("/missing")
	assert.False(t, ok)

	assert.Equal(t, []types.FileLocation{
		{Path: "/a", Owner: nodeA},
		{Path: "/b", Owner: nodeB},
		{Path: "/c", Owner: nodeA},
	}, r.Files())
	assert.Equal(t, map[types.NodeAddress]int{nodeA: 2, nodeB: 1}, r.FileCounts())
}

func TestLocateExactMatch(t *testing.T) {
	r := NewRegistry(false)
	r.Upsert("/notes.txt", nodeA)

	_, ok := r.Locate("notes.txt")
	assert.False(t, ok)
	_, ok = r.Locate("/notes.txt")
	assert.True(t, ok)
}

func TestUpsertSingleOwner(t *testing.T) {
	r := NewRegistry(false)
	r.Upsert("/x", nodeA)
	r.Upsert("/x", nodeB)
	r.Upsert("/x", nodeB)

	assert.Len(t, r.Files(), 1)
	owner, _ := r.Locate("/x")
	assert.Equal(t, nodeB, owner)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(false)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			addr := types.NodeAddress{Host: "127.0.0.1", Port: 10000 + id}
			r.RegisterNode(addr)
			for j := 0; j < 50; j++ {
				path := fmt.Sprintf("/f%d", j)
				r.Upsert(path, addr)
				r.Locate(path)
				r.Nodes()
			}
		}(i)
	}
	wg.Wait()

	stats := r.Stats()
	assert.Equal(t, 20, stats.Nodes)
	assert.Equal(t, 50, stats.Files)
}
