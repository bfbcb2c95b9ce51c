package redis

import (
	"context"
	"os"
	"testing"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/logger"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence/persistencetest"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ persistence.IReservePersistence = (*RedisPersistence)(nil)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not reachable. Every instance gets a
// unique key prefix so tests never see each other's data.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: "test-" + uuid.NewString() + ":",
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	t.Cleanup(func() {
		if !rp.closed {
			_ = rp.purge(context.Background())
		}
		_ = rp.Close()
	})
	return rp
}

func TestRedisPersistence(t *testing.T) {
	persistencetest.RunConformanceSuite(t, func(t *testing.T) persistence.IReservePersistence {
		return requireRedis(t)
	})
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
	require.Contains(t, err.Error(), "address cannot be empty")
}

func TestRedisPersistence_ListRecordsFailsOnCorruptRecord(t *testing.T) {
	rp := requireRedis(t)
	ctx := context.Background()

	require.NoError(t, rp.SaveRecords([]*types.UserRecord{
		{UserID: 1, Balance: 1111},
		{UserID: 2, Balance: 2222},
		{UserID: 3, Balance: 3333},
	}))
	require.NoError(t, rp.client.Set(ctx, rp.recordKey(recordMember(2)), "{not json", 0).Err())

	records, err := rp.ListRecords()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal UserRecord")
	assert.Nil(t, records)
}

func TestRedisPersistence_ListRecordsDropsStaleIndexEntries(t *testing.T) {
	rp := requireRedis(t)
	ctx := context.Background()

	require.NoError(t, rp.SaveRecords([]*types.UserRecord{
		{UserID: 1, Balance: 1111},
		{UserID: 2, Balance: 2222},
	}))
	require.NoError(t, rp.client.Del(ctx, rp.recordKey(recordMember(2))).Err())

	records, err := rp.ListRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].UserID)

	members, err := rp.client.ZRange(ctx, rp.prefixKey(keyIndexRecords), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{recordMember(1)}, members)
}
