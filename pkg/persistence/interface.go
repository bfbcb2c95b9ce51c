package persistence

import "github.com/Layr-Labs/proof-of-reserve-go/pkg/types"

// IReservePersistence is the data source for proof of reserve builds and the
// publication log of built roots. All implementations must be thread-safe: the
// scheduler, the HTTP handlers and admin rebuilds use it concurrently.
//
// The interface supports:
// - User record management (save, load, list, delete)
// - Root snapshot history (save, latest, list)
// - Lifecycle management (close, health check)
type IReservePersistence interface {
	// User Records

	// SaveRecord upserts a single user record keyed by UserID.
	SaveRecord(record *types.UserRecord) error

	// SaveRecords upserts a batch of user records. The batch is applied atomically
	// where the backend supports it.
	SaveRecords(records []*types.UserRecord) error

	// LoadRecord retrieves a user record by id.
	// Returns nil if the record doesn't exist, error only on storage failure.
	LoadRecord(userID int64) (*types.UserRecord, error)

	// ListRecords returns all records sorted by UserID (ascending).
	// This order is the leaf order of the merkle tree, so it must be stable.
	// Returns empty slice if no records exist, error only on storage failure.
	ListRecords() ([]*types.UserRecord, error)

	// DeleteRecord removes a user record.
	// Idempotent - returns nil if the record doesn't exist.
	DeleteRecord(userID int64) error

	// Root Snapshots

	// SaveRootSnapshot appends a published root to the history.
	SaveRootSnapshot(meta *types.RootSnapshotMeta) error

	// LoadLatestRootSnapshot returns the most recently saved root.
	// Returns nil if no root has been published yet.
	LoadLatestRootSnapshot() (*types.RootSnapshotMeta, error)

	// ListRootSnapshots returns all published roots sorted by BuiltAt (ascending).
	ListRootSnapshots() ([]*types.RootSnapshotMeta, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
