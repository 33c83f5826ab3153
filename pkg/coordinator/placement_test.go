package coordinator

import (
	"testing"

	"flatstore/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlacementPolicy(t *testing.T) {
	for _, name := range []string{"", PlacementFirstAvailable, PlacementRoundRobin, PlacementLeastLoaded, PlacementHash} {
		p, err := NewPlacementPolicy(name)
		require.NoError(t, err, name)
		if name != "" {
			assert.Equal(t, name, p.Name())
		}
	}

	_, err := NewPlacementPolicy("random")
	assert.Error(t, err)
}

func TestPlacementEmptyCandidates(t *testing.T) {
	r := NewRegistry(false)
	policies := []PlacementPolicy{FirstAvailable{}, &RoundRobin{}, LeastLoaded{}, Hashed{}}
	for _, p := range policies {
		t.Run(p.Name(), func(t *testing.T) {
			_, err := p.Place("/x", nil, r)
			assert.ErrorIs(t, err, ErrNoStorageNodes)
		})
	}
}

func TestFirstAvailable(t *testing.T) {
	r := NewRegistry(false)
	candidates := []types.NodeAddress{nodeA, nodeB}

	for _, path := range []string{"/a", "/b", "/c", "/d"} {
		got, err := FirstAvailable{}.Place(path, candidates, r)
		require.NoError(t, err)
		assert.Equal(t, nodeA, got)
	}
}

func TestRoundRobin(t *testing.T) {
	r := NewRegistry(false)
	p := &RoundRobin{}
	candidates := []types.NodeAddress{nodeA, nodeB, nodeC}

	var got []types.NodeAddress
	for i := 0; i < 4; i++ {
		n, err := p.Place("/x", candidates, r)
		require.NoError(t, err)
		got = append(got, n)
	}
	assert.Equal(t, []types.NodeAddress{nodeA, nodeB, nodeC, nodeA}, got)
}

func TestLeastLoaded(t *testing.T) {
	r := NewRegistry(false)
	r.ImportFileList(nodeA, []string{"/1", "/2"})
	r.ImportFileList(nodeB, []string{"/3"})

	got, err := LeastLoaded{}.Place("/new", []types.NodeAddress{nodeA, nodeB, nodeC}, r)
	require.NoError(t, err)
	assert.Equal(t, nodeC, got)

	got, err = LeastLoaded{}.Place("/new", []types.NodeAddress{nodeA, nodeB}, r)
	require.NoError(t, err)
	assert.Equal(t, nodeB, got)

	empty := NewRegistry(false)
	got, err = LeastLoaded{}.Place("/new", []types.NodeAddress{nodeB, nodeA}, empty)
	require.NoError(t, err)
	assert.Equal(t, nodeB, got, "ties go to the earlier candidate")
}

func TestHashedIsDeterministic(t *testing.T) {
	r := NewRegistry(false)
	candidates := []types.NodeAddress{nodeA, nodeB, nodeC}

	first, err := Hashed{}.Place("/movies/a.mkv", candidates, r)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Hashed{}.Place("/movies/a.mkv", candidates, r)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCandidates(t *testing.T) {
	r := NewRegistry(false)
	assert.Empty(t, Candidates(r))

	r.RegisterNode(nodeA)
	r.RegisterNode(nodeB)
	r.MarkUnreachable(nodeA)
	assert.Equal(t, []types.NodeAddress{nodeB}, Candidates(r))

	r.MarkUnreachable(nodeB)
	assert.Equal(t, []types.NodeAddress{nodeA, nodeB}, Candidates(r), "all known nodes when none is reachable")
}
