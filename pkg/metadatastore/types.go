// Package metadatastore defines the storage contract for fetched runtime metadata and the record
// type shared by its memory, badger and redis implementations.
package metadatastore

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("metadata store is closed")

// MetadataRecord is one runtime's metadata as served by state_getMetadata.
type MetadataRecord struct {
	SpecName           string `json:"specName"`
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
	// Hash is the 0x hex blake2b-256 of the raw blob
	Hash string `json:"hash"`
	// Metadata is the 0x hex SCALE encoded blob
	Metadata  string `json:"metadata"`
	FetchedAt int64  `json:"fetchedAt"`
}

// NewMetadataRecord hex encodes blob and records its blake2b-256 hash.
func NewMetadataRecord(specName string, specVersion, transactionVersion uint32, blob []byte, fetchedAt time.Time) *MetadataRecord {
	hash := blake2b.Sum256(blob)
	return &MetadataRecord{
		SpecName:           specName,
		SpecVersion:        specVersion,
		TransactionVersion: transactionVersion,
		Hash:               util.EncodePrefixedHex(hash[:]),
		Metadata:           util.EncodePrefixedHex(blob),
		FetchedAt:          fetchedAt.Unix(),
	}
}

// Blob decodes the stored metadata and checks it against Hash.
func (r *MetadataRecord) Blob() ([]byte, error) {
	blob, err := util.DecodePrefixedHex(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata of spec version %d: %w", r.SpecVersion, err)
	}
	if r.Hash != "" {
		hash := blake2b.Sum256(blob)
		if got := util.EncodePrefixedHex(hash[:]); got != r.Hash {
			return nil, fmt.Errorf("metadata hash mismatch for spec version %d: stored %s, computed %s", r.SpecVersion, r.Hash, got)
		}
	}
	return blob, nil
}

// Validate checks that the record can be stored.
func (r *MetadataRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("metadata record is nil")
	}
	if r.SpecVersion == 0 {
		return fmt.Errorf("metadata record has no spec version")
	}
	if r.Metadata == "" {
		return fmt.Errorf("metadata record for spec version %d has no metadata", r.SpecVersion)
	}
	return nil
}

// Copy returns a deep copy of the record.
func (r *MetadataRecord) Copy() *MetadataRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
