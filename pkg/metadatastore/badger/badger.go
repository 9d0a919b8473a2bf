package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore"
)

const (
	keyPrefixMetadata    = "metadata:"
	keySchemaVersion     = "store:schema_version"
	currentSchemaVersion = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerStore keeps metadata on local disk. It is the store for an offline signing device.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ metadatastore.IMetadataStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the database at dataPath with SyncWrites enabled and starts
// a background value log GC.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger metadata store initialized", "path", absPath)

	return bs, nil
}

func (b *BadgerStore) initSchema() error {
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

func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// metadataKey zero pads the spec version so keys sort numerically.
func metadataKey(specVersion uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d", keyPrefixMetadata, specVersion))
}

// SaveMetadata persists a record, replacing any record with the same spec version.
func (b *BadgerStore) SaveMetadata(record *metadatastore.MetadataRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("cannot save MetadataRecord: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return metadatastore.ErrClosed
	}

	data, err := metadatastore.MarshalMetadataRecord(record)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(metadataKey(record.SpecVersion), data)
	})
}

// LoadMetadata retrieves the record for specVersion.
func (b *BadgerStore) LoadMetadata(specVersion uint32) (*metadatastore.MetadataRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, metadatastore.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(metadataKey(specVersion))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load MetadataRecord: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	return metadatastore.UnmarshalMetadataRecord(data)
}

// LatestMetadata returns the record with the highest spec version.
func (b *BadgerStore) LatestMetadata() (*metadatastore.MetadataRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, metadatastore.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		prefix := []byte(keyPrefixMetadata)
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(append([]byte{}, prefix...), 0xff))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		var err error
		data, err = it.Item().ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load latest MetadataRecord: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	return metadatastore.UnmarshalMetadataRecord(data)
}

// ListMetadata returns all records sorted by spec version.
func (b *BadgerStore) ListMetadata() ([]*metadatastore.MetadataRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, metadatastore.ErrClosed
	}

	records := []*metadatastore.MetadataRecord{}
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixMetadata)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := metadatastore.UnmarshalMetadataRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal MetadataRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list MetadataRecords: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SpecVersion < records[j].SpecVersion
	})
	return records, nil
}

// DeleteMetadata removes a record.
func (b *BadgerStore) DeleteMetadata(specVersion uint32) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return metadatastore.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(metadataKey(specVersion))
	})
}

// Close stops the GC goroutine and closes the database. Safe to call more than once.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
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

	b.logger.Sugar().Info("Badger metadata store closed")
	return nil
}

// HealthCheck verifies the database is open and carries a schema version.
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return metadatastore.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
