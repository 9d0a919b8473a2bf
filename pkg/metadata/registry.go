package metadata

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

const DefaultCacheSize = 8

// RegistryConfig tunes a Registry. A nil config uses the defaults.
type RegistryConfig struct {
	// CacheSize is the number of decoded schemas kept around for reinstallation. Defaults to 8.
	CacheSize int
}

// Registry is the caller-owned decoding context. Installing metadata is an idempotent
// "ensure this blob is active" operation keyed by the blob hash; previously decoded blobs are
// served from an LRU so switching between chains does not re-decode.
//
// All methods are safe for concurrent use. With holds the lock for the whole callback, so
// concurrent signing flows sharing one Registry are serialized.
type Registry struct {
	mu     sync.Mutex
	active *Schema
	cache  *lru.Cache[[32]byte, *Schema]
	logger *zap.Logger
}

// NewRegistry creates an empty Registry. Nothing is installed until the first Install or With.
func NewRegistry(cfg *RegistryConfig, logger *zap.Logger) (*Registry, error) {
	size := DefaultCacheSize
	if cfg != nil && cfg.CacheSize > 0 {
		size = cfg.CacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[[32]byte, *Schema](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache: %w", err)
	}
	return &Registry{
		cache:  cache,
		logger: logger,
	}, nil
}

// Install makes blob the active metadata and returns its Schema.
func (r *Registry) Install(blob []byte) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installLocked(blob)
}

// InstallHex is Install for the 0x hex form returned by state_getMetadata.
func (r *Registry) InstallHex(metadataHex string) (*Schema, error) {
	blob, err := DecodeMetadataHex(metadataHex)
	if err != nil {
		return nil, err
	}
	return r.Install(blob)
}

// With installs blob and runs fn with the resulting Schema while holding the registry lock.
func (r *Registry) With(blob []byte, fn func(schema *Schema) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schema, err := r.installLocked(blob)
	if err != nil {
		return err
	}
	return fn(schema)
}

// Active returns the currently installed Schema, or nil.
func (r *Registry) Active() *Schema {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Registry) installLocked(blob []byte) (*Schema, error) {
	hash := blake2b.Sum256(blob)
	if r.active != nil && r.active.hash == hash {
		return r.active, nil
	}

	if schema, ok := r.cache.Get(hash); ok {
		r.logger.Sugar().Debugw("Reinstalling cached metadata", "hash", util.EncodePrefixedHex(hash[:]))
		r.active = schema
		return schema, nil
	}

	schema, err := parseMetadata(blob, hash)
	if err != nil {
		return nil, err
	}
	r.cache.Add(hash, schema)
	r.active = schema

	fields := []interface{}{
		"hash", schema.HashHex(),
		"pallets", len(schema.pallets),
		"types", len(schema.types),
		"extrinsicVersion", schema.ExtrinsicVersion(),
	}
	if rv, ok := schema.RuntimeVersion(); ok {
		fields = append(fields, "specName", rv.SpecName, "specVersion", rv.SpecVersion)
	}
	r.logger.Sugar().Debugw("Installed metadata", fields...)
	return schema, nil
}
