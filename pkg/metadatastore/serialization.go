package metadatastore

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalMetadataRecord serializes a MetadataRecord to JSON bytes.
func MarshalMetadataRecord(record *MetadataRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil MetadataRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal MetadataRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalMetadataRecord deserializes a MetadataRecord from JSON bytes.
func UnmarshalMetadataRecord(data []byte) (*MetadataRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record MetadataRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to MetadataRecord: %w", err)
	}

	return &record, nil
}
