// Package factory builds the metadata store selected by configuration.
package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/config"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore/badger"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore/memory"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore/redis"
)

// NewStore validates cfg and opens the store it selects.
func NewStore(cfg *config.StoreConfig, logger *zap.Logger) (metadatastore.IMetadataStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	switch cfg.Type {
	case config.StoreTypeMemory:
		return memory.NewMemoryStore(logger), nil
	case config.StoreTypeBadger:
		store, err := badger.NewBadgerStore(cfg.DataPath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreTypeRedis:
		store, err := redis.NewRedisStore(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
