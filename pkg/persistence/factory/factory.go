package factory

import (
	"fmt"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/config"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence/badger"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence/memory"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence/redis"
	"go.uber.org/zap"
)

// NewPersistence opens the record store selected by cfg
func NewPersistence(cfg config.PersistenceConfig, logger *zap.Logger) (persistence.IReservePersistence, error) {
	switch cfg.Type {
	case config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceTypeBadger:
		return badger.NewBadgerPersistence(cfg.BadgerDir, logger)
	case config.PersistenceTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported persistence type %q, supported: %s", cfg.Type, config.GetSupportedPersistenceTypesString())
	}
}
