package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IReservePersistence.
// This implementation is intended for TESTING and local demos.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// User records: userID -> record
	records map[int64]*types.UserRecord

	// Published roots in insertion order
	roots []*types.RootSnapshotMeta

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set RESERVE_PERSISTENCE_TYPE=badger for production")

	return &MemoryPersistence{
		records: make(map[int64]*types.UserRecord),
		roots:   make([]*types.RootSnapshotMeta, 0),
	}
}

// SaveRecord upserts a user record.
func (m *MemoryPersistence) SaveRecord(record *types.UserRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil UserRecord")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	copied := *record
	m.records[record.UserID] = &copied
	return nil
}

// SaveRecords upserts a batch of user records.
func (m *MemoryPersistence) SaveRecords(records []*types.UserRecord) error {
	for _, record := range records {
		if record == nil {
			return fmt.Errorf("cannot save nil UserRecord")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	for _, record := range records {
		copied := *record
		m.records[record.UserID] = &copied
	}
	return nil
}

// LoadRecord retrieves a user record by id.
func (m *MemoryPersistence) LoadRecord(userID int64) (*types.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	record, exists := m.records[userID]
	if !exists {
		return nil, nil // Not found is not an error
	}

	copied := *record
	return &copied, nil
}

// ListRecords returns all records sorted by UserID.
func (m *MemoryPersistence) ListRecords() ([]*types.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})

	result := make([]*types.UserRecord, 0, len(ids))
	for _, id := range ids {
		copied := *m.records[id]
		result = append(result, &copied)
	}
	return result, nil
}

// DeleteRecord removes a user record.
func (m *MemoryPersistence) DeleteRecord(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.records, userID)
	return nil
}

// SaveRootSnapshot appends a published root.
func (m *MemoryPersistence) SaveRootSnapshot(meta *types.RootSnapshotMeta) error {
	if meta == nil {
		return fmt.Errorf("cannot save nil RootSnapshotMeta")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	copied := *meta
	m.roots = append(m.roots, &copied)
	return nil
}

// LoadLatestRootSnapshot returns the most recently saved root.
func (m *MemoryPersistence) LoadLatestRootSnapshot() (*types.RootSnapshotMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	if len(m.roots) == 0 {
		return nil, nil
	}

	copied := *m.roots[len(m.roots)-1]
	return &copied, nil
}

// ListRootSnapshots returns all published roots sorted by BuiltAt.
func (m *MemoryPersistence) ListRootSnapshots() ([]*types.RootSnapshotMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*types.RootSnapshotMeta, 0, len(m.roots))
	for _, meta := range m.roots {
		copied := *meta
		result = append(result, &copied)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].BuiltAt < result[j].BuiltAt
	})
	return result, nil
}

// Close shuts down the persistence layer.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}
