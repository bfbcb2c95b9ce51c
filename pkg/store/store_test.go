package store

import (
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRoot(t *testing.T, leaves ...string) *merkle.Node {
	t.Helper()
	return merkle.NewDefaultMerkleTree().BuildFromStrings(leaves)
}

func TestRootStore_Empty(t *testing.T) {
	rs := NewRootStore()
	assert.Nil(t, rs.Get())
	assert.Equal(t, 0, rs.Generation())
}

func TestRootStore_Replace(t *testing.T) {
	rs := NewRootStore()

	first := NewSnapshot(buildRoot(t, "aaa", "bbb"), 2, time.Now())
	previous := rs.Replace(first)
	assert.Nil(t, previous)
	require.Same(t, first, rs.Get())

	second := NewSnapshot(buildRoot(t, "aaa", "bbb", "ccc"), 3, time.Now())
	previous = rs.Replace(second)
	require.Same(t, first, previous)
	require.Same(t, second, rs.Get())
	assert.Equal(t, 2, rs.Generation())

	// The replaced snapshot is untouched
	assert.Equal(t, 2, first.LeafCount)
	assert.NotEqual(t, first.RootHex(), second.RootHex())
}

func TestNewSnapshot(t *testing.T) {
	builtAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	root := buildRoot(t, "aaa")

	a := NewSnapshot(root, 1, builtAt)
	b := NewSnapshot(root, 1, builtAt)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.BuiltAt.Location())
	assert.True(t, builtAt.Equal(a.BuiltAt))
	assert.Equal(t, root.HexHash(), a.RootHex())
}

func TestSnapshot_RootHexEmpty(t *testing.T) {
	var nilSnapshot *Snapshot
	assert.Equal(t, "", nilSnapshot.RootHex())
	assert.Equal(t, "", (&Snapshot{}).RootHex())
}

func TestRootStore_ConcurrentAccess(t *testing.T) {
	rs := NewRootStore()
	root := buildRoot(t, "aaa", "bbb", "ccc")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			rs.Replace(NewSnapshot(root, 3, time.Now()))
		}()
		go func() {
			defer wg.Done()
			if s := rs.Get(); s != nil {
				assert.Equal(t, root.HexHash(), s.RootHex())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, rs.Generation())
}
