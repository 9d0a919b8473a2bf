// Package storetest is a behavioral test suite shared by every IMetadataStore implementation.
package storetest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore"
)

// Record builds a small record for specVersion.
func Record(specVersion uint32) *metadatastore.MetadataRecord {
	blob := []byte{0x6d, 0x65, 0x74, 0x61, 0x0e, byte(specVersion), byte(specVersion >> 8)}
	return metadatastore.NewMetadataRecord("westend", specVersion, 22, blob, time.Unix(1700000000, 0))
}

// Run exercises store. newStore must return an empty, open store.
func Run(t *testing.T, newStore func(t *testing.T) metadatastore.IMetadataStore) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		record := Record(9430)
		require.NoError(t, s.SaveMetadata(record))

		loaded, err := s.LoadMetadata(9430)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, record, loaded)

		blob, err := loaded.Blob()
		require.NoError(t, err)
		assert.NotEmpty(t, blob)
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		loaded, err := s.LoadMetadata(1)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		latest, err := s.LatestMetadata()
		require.NoError(t, err)
		assert.Nil(t, latest)

		list, err := s.ListMetadata()
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		first := Record(100)
		require.NoError(t, s.SaveMetadata(first))
		second := Record(100)
		second.TransactionVersion = 23
		require.NoError(t, s.SaveMetadata(second))

		loaded, err := s.LoadMetadata(100)
		require.NoError(t, err)
		assert.Equal(t, uint32(23), loaded.TransactionVersion)

		list, err := s.ListMetadata()
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("ListSortedAndLatest", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		for _, v := range []uint32{9430, 9, 1000000, 9431} {
			require.NoError(t, s.SaveMetadata(Record(v)))
		}

		list, err := s.ListMetadata()
		require.NoError(t, err)
		require.Len(t, list, 4)
		var versions []uint32
		for _, r := range list {
			versions = append(versions, r.SpecVersion)
		}
		assert.Equal(t, []uint32{9, 9430, 9431, 1000000}, versions)

		latest, err := s.LatestMetadata()
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, uint32(1000000), latest.SpecVersion)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.SaveMetadata(Record(5)))
		require.NoError(t, s.DeleteMetadata(5))
		require.NoError(t, s.DeleteMetadata(5))

		loaded, err := s.LoadMetadata(5)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("RejectsInvalidRecord", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		assert.Error(t, s.SaveMetadata(nil))
		assert.Error(t, s.SaveMetadata(&metadatastore.MetadataRecord{SpecVersion: 1}))
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		record := Record(7)
		require.NoError(t, s.SaveMetadata(record))
		record.SpecName = "mutated"

		loaded, err := s.LoadMetadata(7)
		require.NoError(t, err)
		assert.Equal(t, "westend", loaded.SpecName)
		loaded.SpecName = "mutated"

		again, err := s.LoadMetadata(7)
		require.NoError(t, err)
		assert.Equal(t, "westend", again.SpecName)
	})

	t.Run("Close", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.HealthCheck())

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.HealthCheck(), metadatastore.ErrClosed)
		assert.ErrorIs(t, s.SaveMetadata(Record(1)), metadatastore.ErrClosed)
		_, err := s.LoadMetadata(1)
		assert.ErrorIs(t, err, metadatastore.ErrClosed)
		_, err = s.LatestMetadata()
		assert.ErrorIs(t, err, metadatastore.ErrClosed)
		_, err = s.ListMetadata()
		assert.ErrorIs(t, err, metadatastore.ErrClosed)
		assert.ErrorIs(t, s.DeleteMetadata(1), metadatastore.ErrClosed)
	})

	t.Run("Concurrent", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(v uint32) {
				defer wg.Done()
				assert.NoError(t, s.SaveMetadata(Record(v)))
				_, err := s.LoadMetadata(v)
				assert.NoError(t, err)
				_, err = s.ListMetadata()
				assert.NoError(t, err)
			}(uint32(i + 1))
		}
		wg.Wait()

		list, err := s.ListMetadata()
		require.NoError(t, err)
		assert.Len(t, list, 16)
	})
}
