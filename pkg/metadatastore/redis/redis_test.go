package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/config"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore/storetest"
)

// getTestRedisAddress uses REDIS_TEST_ADDRESS if set, otherwise localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not reachable. Every store gets its own key prefix in
// DB 15 so subtests do not see each other's records.
func requireRedis(t *testing.T) *RedisStore {
	t.Helper()

	cfg := &config.RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15,
		KeyPrefix: fmt.Sprintf("test-%d:", time.Now().UnixNano()),
	}

	rs, err := NewRedisStore(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}
	t.Cleanup(func() { cleanupRedis(cfg) })
	return rs
}

func cleanupRedis(cfg *config.RedisConfig) {
	client, err := NewRedisStore(cfg, nil)
	if err != nil {
		return
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	keys, err := client.client.Keys(ctx, cfg.KeyPrefix+"*").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	client.client.Del(ctx, keys...)
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metadatastore.IMetadataStore {
		return requireRedis(t)
	})
}

func TestRedisStore_StaleIndexEntry(t *testing.T) {
	rs := requireRedis(t)
	defer func() { _ = rs.Close() }()

	require.NoError(t, rs.SaveMetadata(storetest.Record(10)))
	require.NoError(t, rs.SaveMetadata(storetest.Record(11)))

	// drop the record but leave the index entry behind
	ctx := context.Background()
	require.NoError(t, rs.client.Del(ctx, rs.metadataKey(11)).Err())

	latest, err := rs.LatestMetadata()
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, uint32(10), latest.SpecVersion)

	list, err := rs.ListMetadata()
	require.NoError(t, err)
	require.Len(t, list, 1)

	// listing prunes the stale entry from the index
	indexed, err := rs.client.SIsMember(ctx, rs.prefixKey(keySetMetadata), 11).Result()
	require.NoError(t, err)
	require.False(t, indexed)
	indexed, err = rs.client.SIsMember(ctx, rs.prefixKey(keySetMetadata), 10).Result()
	require.NoError(t, err)
	require.True(t, indexed)
}

func TestNewRedisStore_InvalidConfig(t *testing.T) {
	_, err := NewRedisStore(nil, nil)
	require.Error(t, err)
	_, err = NewRedisStore(&config.RedisConfig{}, nil)
	require.Error(t, err)
}
