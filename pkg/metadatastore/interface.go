package metadatastore

// IMetadataStore persists runtime metadata blobs fetched from a node so an offline signer can
// use them without network access. Records are keyed by runtime spec version.
// All implementations must be thread-safe.
type IMetadataStore interface {
	// SaveMetadata stores a record, replacing any record with the same spec version.
	SaveMetadata(record *MetadataRecord) error

	// LoadMetadata returns the record for specVersion, or nil if none exists.
	// Returns error only on storage failure.
	LoadMetadata(specVersion uint32) (*MetadataRecord, error)

	// LatestMetadata returns the record with the highest spec version, or nil if the store is
	// empty.
	LatestMetadata() (*MetadataRecord, error)

	// ListMetadata returns all records sorted by spec version (ascending).
	// Returns empty slice if no records exist.
	ListMetadata() ([]*MetadataRecord, error)

	// DeleteMetadata removes the record for specVersion.
	// Idempotent - returns nil if the record doesn't exist.
	DeleteMetadata(specVersion uint32) error

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return ErrClosed.
	Close() error

	// HealthCheck verifies the store is operational.
	HealthCheck() error
}
