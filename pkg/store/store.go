package store

import (
	"sync"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"github.com/google/uuid"
)

// Snapshot is one built merkle tree. A stored snapshot is never mutated; a
// rebuild produces a new snapshot and replaces the old one.
type Snapshot struct {
	ID        uuid.UUID
	Root      *merkle.Node
	LeafCount int
	BuiltAt   time.Time
}

// NewSnapshot wraps a freshly built root in a snapshot with a new random ID.
func NewSnapshot(root *merkle.Node, leafCount int, builtAt time.Time) *Snapshot {
	return &Snapshot{
		ID:        uuid.New(),
		Root:      root,
		LeafCount: leafCount,
		BuiltAt:   builtAt.UTC(),
	}
}

// RootHex returns the lowercase hex of the root hash, or "" for an empty snapshot.
func (s *Snapshot) RootHex() string {
	if s == nil || s.Root == nil {
		return ""
	}
	return s.Root.HexHash()
}

// RootStore holds the currently published snapshot and provides thread-safe access
type RootStore struct {
	mu sync.RWMutex

	current  *Snapshot
	replaced int
}

// NewRootStore creates an empty root store
func NewRootStore() *RootStore {
	return &RootStore{}
}

// Get returns the current snapshot, or nil if no root was ever built
func (rs *RootStore) Get() *Snapshot {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.current
}

// Replace publishes a new snapshot and returns the one it replaced.
// Readers holding the previous snapshot keep a consistent view of it.
func (rs *RootStore) Replace(snapshot *Snapshot) *Snapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	previous := rs.current
	rs.current = snapshot
	rs.replaced++
	return previous
}

// Generation returns how many times the snapshot has been replaced
func (rs *RootStore) Generation() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return rs.replaced
}
