package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixRecord      = "reserve:record:"
	keyRoots             = "reserve:roots"
	keySchemaVersion     = "reserve:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Sorted set of padded record ids. All scores are 0, so ZRANGE returns
	// members in lexicographic order, which equals UserID order.
	keyIndexRecords = "reserve:records:index"
)

// RedisPersistence is a persistence implementation using Redis, suitable when
// several reserve servers share one record source.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// If set, "myapp:" results in keys like "myapp:reserve:record:...".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) recordKey(member string) string {
	return r.prefixKey(keyPrefixRecord + member)
}

func recordMember(userID int64) string {
	return persistence.RecordKey("", userID)
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveRecord upserts a user record
func (r *RedisPersistence) SaveRecord(record *types.UserRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil UserRecord")
	}
	return r.SaveRecords([]*types.UserRecord{record})
}

// SaveRecords upserts a batch of user records in one MULTI/EXEC transaction
func (r *RedisPersistence) SaveRecords(records []*types.UserRecord) error {
	for _, record := range records {
		if record == nil {
			return fmt.Errorf("cannot save nil UserRecord")
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	indexKey := r.prefixKey(keyIndexRecords)

	pipe := r.client.TxPipeline()
	for _, record := range records {
		data, err := persistence.MarshalUserRecord(record)
		if err != nil {
			return fmt.Errorf("failed to marshal UserRecord: %w", err)
		}
		member := recordMember(record.UserID)
		pipe.Set(ctx, r.recordKey(member), data, 0)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: 0, Member: member})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save UserRecords: %w", err)
	}
	return nil
}

// LoadRecord retrieves a user record
func (r *RedisPersistence) LoadRecord(userID int64) (*types.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	data, err := r.client.Get(ctx, r.recordKey(recordMember(userID))).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load UserRecord: %w", err)
	}

	record, err := persistence.UnmarshalUserRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal UserRecord: %w", err)
	}
	return record, nil
}

// ListRecords returns all user records sorted by UserID
func (r *RedisPersistence) ListRecords() ([]*types.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	indexKey := r.prefixKey(keyIndexRecords)

	members, err := r.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list UserRecord ids: %w", err)
	}

	records := make([]*types.UserRecord, 0, len(members))
	if len(members) == 0 {
		return records, nil
	}

	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = r.recordKey(member)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch UserRecords: %w", err)
	}

	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			if err := r.client.ZRem(ctx, indexKey, members[i]).Err(); err != nil {
				r.logger.Sugar().Warnw("Failed to remove stale UserRecord index entry", "member", members[i], "error", err)
			}
			continue
		}

		data, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T for UserRecord at key %s", val, keys[i])
		}

		record, err := persistence.UnmarshalUserRecord([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal UserRecord at key %s: %w", keys[i], err)
		}
		records = append(records, record)
	}

	return records, nil
}

// DeleteRecord removes a user record
func (r *RedisPersistence) DeleteRecord(userID int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	member := recordMember(userID)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.recordKey(member))
	pipe.ZRem(ctx, r.prefixKey(keyIndexRecords), member)

	_, err := pipe.Exec(ctx)
	return err
}

// SaveRootSnapshot appends a published root to the history list
func (r *RedisPersistence) SaveRootSnapshot(meta *types.RootSnapshotMeta) error {
	if meta == nil {
		return fmt.Errorf("cannot save nil RootSnapshotMeta")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalRootSnapshotMeta(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal RootSnapshotMeta: %w", err)
	}

	ctx := context.Background()
	if err := r.client.RPush(ctx, r.prefixKey(keyRoots), data).Err(); err != nil {
		return fmt.Errorf("failed to save RootSnapshotMeta: %w", err)
	}
	return nil
}

// LoadLatestRootSnapshot returns the root pushed last
func (r *RedisPersistence) LoadLatestRootSnapshot() (*types.RootSnapshotMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	data, err := r.client.LIndex(ctx, r.prefixKey(keyRoots), -1).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest RootSnapshotMeta: %w", err)
	}

	meta, err := persistence.UnmarshalRootSnapshotMeta(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal RootSnapshotMeta: %w", err)
	}
	return meta, nil
}

// ListRootSnapshots returns all published roots sorted by BuiltAt
func (r *RedisPersistence) ListRootSnapshots() ([]*types.RootSnapshotMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	values, err := r.client.LRange(ctx, r.prefixKey(keyRoots), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list RootSnapshotMetas: %w", err)
	}

	roots := make([]*types.RootSnapshotMeta, 0, len(values))
	for _, val := range values {
		meta, err := persistence.UnmarshalRootSnapshotMeta([]byte(val))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal RootSnapshotMeta, skipping", "error", err)
			continue
		}
		roots = append(roots, meta)
	}

	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].BuiltAt < roots[j].BuiltAt
	})
	return roots, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}

// purge removes every key written under this instance's prefix. Used by tests.
func (r *RedisPersistence) purge(ctx context.Context) error {
	var cursor uint64
	pattern := r.prefixKey("reserve:*")
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
