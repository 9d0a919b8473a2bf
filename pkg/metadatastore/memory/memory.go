package memory

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore"
)

// MemoryStore is an in-memory implementation of IMetadataStore.
// All data is lost when the process exits. Records are copied in and out to prevent external
// mutation.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uint32]*metadatastore.MetadataRecord
	closed  bool
}

var _ metadatastore.IMetadataStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-process store. Records are lost when the process exits.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory metadata store - fetched metadata will be lost on exit")
	}
	return &MemoryStore{
		records: make(map[uint32]*metadatastore.MetadataRecord),
	}
}

// SaveMetadata stores a copy of the record.
func (m *MemoryStore) SaveMetadata(record *metadatastore.MetadataRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("cannot save MetadataRecord: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return metadatastore.ErrClosed
	}

	m.records[record.SpecVersion] = record.Copy()
	return nil
}

// LoadMetadata retrieves a copy of the record for specVersion.
func (m *MemoryStore) LoadMetadata(specVersion uint32) (*metadatastore.MetadataRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, metadatastore.ErrClosed
	}

	return m.records[specVersion].Copy(), nil
}

// LatestMetadata returns the record with the highest spec version.
func (m *MemoryStore) LatestMetadata() (*metadatastore.MetadataRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, metadatastore.ErrClosed
	}

	var latest *metadatastore.MetadataRecord
	for _, r := range m.records {
		if latest == nil || r.SpecVersion > latest.SpecVersion {
			latest = r
		}
	}
	return latest.Copy(), nil
}

// ListMetadata returns copies of all records sorted by spec version.
func (m *MemoryStore) ListMetadata() ([]*metadatastore.MetadataRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, metadatastore.ErrClosed
	}

	records := make([]*metadatastore.MetadataRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r.Copy())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].SpecVersion < records[j].SpecVersion
	})
	return records, nil
}

// DeleteMetadata removes a record.
func (m *MemoryStore) DeleteMetadata(specVersion uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return metadatastore.ErrClosed
	}

	delete(m.records, specVersion)
	return nil
}

// Close marks the store closed and drops its records.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}

// HealthCheck fails once the store is closed.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return metadatastore.ErrClosed
	}
	return nil
}
