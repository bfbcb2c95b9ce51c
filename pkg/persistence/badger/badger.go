package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixRecord      = "record:"
	keyPrefixRoot        = "root:"
	keyRootCounter       = "metadata:root_counter"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a durable persistence implementation using Badger.
// Records are keyed so that badger's sorted key order equals UserID order,
// which makes ListRecords a single prefix scan in leaf order.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	rootMu   sync.Mutex // serializes root counter updates
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newZapBadgerLogger(logger)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func recordKey(userID int64) []byte {
	return []byte(persistence.RecordKey(keyPrefixRecord, userID))
}

// SaveRecord upserts a user record
func (b *BadgerPersistence) SaveRecord(record *types.UserRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil UserRecord")
	}
	return b.SaveRecords([]*types.UserRecord{record})
}

// SaveRecords upserts a batch of user records in a single transaction
func (b *BadgerPersistence) SaveRecords(records []*types.UserRecord) error {
	encoded := make(map[string][]byte, len(records))
	for _, record := range records {
		if record == nil {
			return fmt.Errorf("cannot save nil UserRecord")
		}
		data, err := persistence.MarshalUserRecord(record)
		if err != nil {
			return fmt.Errorf("failed to marshal UserRecord: %w", err)
		}
		encoded[string(recordKey(record.UserID))] = data
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		for key, data := range encoded {
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadRecord retrieves a user record
func (b *BadgerPersistence) LoadRecord(userID int64) (*types.UserRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := b.get(recordKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load UserRecord: %w", err)
	}
	if data == nil {
		return nil, nil // Not found
	}

	record, err := persistence.UnmarshalUserRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal UserRecord: %w", err)
	}
	return record, nil
}

// ListRecords returns all user records sorted by UserID
func (b *BadgerPersistence) ListRecords() ([]*types.UserRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	records := make([]*types.UserRecord, 0)
	err := b.scanPrefix([]byte(keyPrefixRecord), func(key, val []byte) error {
		record, err := persistence.UnmarshalUserRecord(val)
		if err != nil {
			// every stored record must reach the tree
			return fmt.Errorf("failed to unmarshal UserRecord at key %s: %w", string(key), err)
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list UserRecords: %w", err)
	}

	return records, nil
}

// DeleteRecord removes a user record
func (b *BadgerPersistence) DeleteRecord(userID int64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(recordKey(userID))
	})
}

// SaveRootSnapshot appends a published root under the next sequence number
func (b *BadgerPersistence) SaveRootSnapshot(meta *types.RootSnapshotMeta) error {
	if meta == nil {
		return fmt.Errorf("cannot save nil RootSnapshotMeta")
	}

	data, err := persistence.MarshalRootSnapshotMeta(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal RootSnapshotMeta: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	b.rootMu.Lock()
	defer b.rootMu.Unlock()

	return b.db.Update(func(txn *badgerdb.Txn) error {
		var counter uint64
		item, err := txn.Get([]byte(keyRootCounter))
		switch {
		case err == badgerdb.ErrKeyNotFound:
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("invalid root counter length: %d", len(val))
				}
				counter = binary.BigEndian.Uint64(val)
				return nil
			})
			if err != nil {
				return err
			}
		}

		counter++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, counter)
		if err := txn.Set([]byte(keyRootCounter), buf); err != nil {
			return err
		}

		key := fmt.Sprintf("%s%020d", keyPrefixRoot, counter)
		return txn.Set([]byte(key), data)
	})
}

// LoadLatestRootSnapshot returns the root saved last
func (b *BadgerPersistence) LoadLatestRootSnapshot() (*types.RootSnapshotMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefixRoot)

		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration must seek past the last key of the prefix
		it.Seek(append([]byte(keyPrefixRoot), 0xFF))
		if !it.Valid() {
			return nil
		}

		return it.Item().Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load latest RootSnapshotMeta: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	meta, err := persistence.UnmarshalRootSnapshotMeta(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal RootSnapshotMeta: %w", err)
	}
	return meta, nil
}

// ListRootSnapshots returns all published roots sorted by BuiltAt
func (b *BadgerPersistence) ListRootSnapshots() ([]*types.RootSnapshotMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	roots := make([]*types.RootSnapshotMeta, 0)
	err := b.scanPrefix([]byte(keyPrefixRoot), func(key, val []byte) error {
		meta, err := persistence.UnmarshalRootSnapshotMeta(val)
		if err != nil {
			b.logger.Sugar().Warnw("Failed to unmarshal RootSnapshotMeta, skipping", "key", string(key), "error", err)
			return nil
		}
		roots = append(roots, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list RootSnapshotMetas: %w", err)
	}

	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].BuiltAt < roots[j].BuiltAt
	})
	return roots, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}

// get returns a copy of the value at key, or nil when the key is absent
func (b *BadgerPersistence) get(key []byte) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	return data, err
}

// scanPrefix visits every key under prefix in ascending key order, stopping at
// the first error returned by visit
func (b *BadgerPersistence) scanPrefix(prefix []byte, visit func(key, val []byte) error) error {
	return b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			if err := visit(item.KeyCopy(nil), data); err != nil {
				return err
			}
		}
		return nil
	})
}
