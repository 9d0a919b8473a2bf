package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/config"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore"
)

const (
	keyPrefixMetadata    = "txwrapper:metadata:"
	keySchemaVersion     = "txwrapper:store:schema_version"
	currentSchemaVersion = "v1"

	// Redis has no prefix iteration, so spec versions are tracked in a set
	keySetMetadata = "txwrapper:metadata:index"

	operationTimeout = 5 * time.Second
)

// RedisStore shares fetched metadata between online hosts.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ metadatastore.IMetadataStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and pings it before returning.
func NewRedisStore(cfg *config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis metadata store initialized", "address", cfg.Address, "db", cfg.DB, "keyPrefix", cfg.KeyPrefix)

	return rs, nil
}

func (r *RedisStore) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisStore) metadataKey(specVersion uint32) string {
	return r.prefixKey(fmt.Sprintf("%s%d", keyPrefixMetadata, specVersion))
}

func (r *RedisStore) initSchema(ctx context.Context) error {
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

// SaveMetadata stores the record and adds its spec version to the index in one transaction.
func (r *RedisStore) SaveMetadata(record *metadatastore.MetadataRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("cannot save MetadataRecord: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return metadatastore.ErrClosed
	}

	data, err := metadatastore.MarshalMetadataRecord(record)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.metadataKey(record.SpecVersion), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetMetadata), record.SpecVersion)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save MetadataRecord: %w", err)
	}
	return nil
}

// LoadMetadata retrieves the record for specVersion.
func (r *RedisStore) LoadMetadata(specVersion uint32) (*metadatastore.MetadataRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, metadatastore.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	return r.load(ctx, specVersion)
}

func (r *RedisStore) load(ctx context.Context, specVersion uint32) (*metadatastore.MetadataRecord, error) {
	data, err := r.client.Get(ctx, r.metadataKey(specVersion)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load MetadataRecord: %w", err)
	}
	return metadatastore.UnmarshalMetadataRecord(data)
}

func (r *RedisStore) specVersions(ctx context.Context) ([]uint32, error) {
	members, err := r.client.SMembers(ctx, r.prefixKey(keySetMetadata)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list spec versions: %w", err)
	}

	versions := make([]uint32, 0, len(members))
	for _, m := range members {
		v, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			r.logger.Sugar().Warnw("Invalid spec version in index, skipping", "member", m, "error", err)
			continue
		}
		versions = append(versions, uint32(v))
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// LatestMetadata returns the record with the highest indexed spec version that still exists.
func (r *RedisStore) LatestMetadata() (*metadatastore.MetadataRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, metadatastore.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	versions, err := r.specVersions(ctx)
	if err != nil {
		return nil, err
	}
	// walk down past index entries whose record has expired or been removed
	for i := len(versions) - 1; i >= 0; i-- {
		record, err := r.load(ctx, versions[i])
		if err != nil {
			return nil, err
		}
		if record != nil {
			return record, nil
		}
	}
	return nil, nil
}

// ListMetadata returns all records sorted by spec version.
func (r *RedisStore) ListMetadata() ([]*metadatastore.MetadataRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, metadatastore.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	versions, err := r.specVersions(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return []*metadatastore.MetadataRecord{}, nil
	}

	keys := make([]string, len(versions))
	for i, v := range versions {
		keys[i] = r.metadataKey(v)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MetadataRecords: %w", err)
	}

	records := make([]*metadatastore.MetadataRecord, 0, len(values))
	var stale []interface{}
	for i, val := range values {
		if val == nil {
			stale = append(stale, versions[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for MetadataRecord", "key", keys[i])
			continue
		}

		record, err := metadatastore.UnmarshalMetadataRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal MetadataRecord, skipping",
				"key", keys[i], "error", err)
			continue
		}
		records = append(records, record)
	}

	r.pruneIndex(ctx, stale)
	return records, nil
}

// pruneIndex drops index entries whose record has expired or been removed. Failing to prune
// only leaves the stale entries for the next listing.
func (r *RedisStore) pruneIndex(ctx context.Context, versions []interface{}) {
	if len(versions) == 0 {
		return
	}
	if err := r.client.SRem(ctx, r.prefixKey(keySetMetadata), versions...).Err(); err != nil {
		r.logger.Sugar().Warnw("Failed to prune stale spec versions from index",
			"versions", versions, "error", err)
		return
	}
	r.logger.Sugar().Debugw("Pruned stale spec versions from index", "versions", versions)
}

// DeleteMetadata removes a record and its index entry.
func (r *RedisStore) DeleteMetadata(specVersion uint32) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return metadatastore.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.metadataKey(specVersion))
	pipe.SRem(ctx, r.prefixKey(keySetMetadata), specVersion)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete MetadataRecord: %w", err)
	}
	return nil
}

// Close closes the Redis client. Safe to call more than once.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis metadata store closed")
	return nil
}

// HealthCheck pings Redis.
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return metadatastore.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
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
